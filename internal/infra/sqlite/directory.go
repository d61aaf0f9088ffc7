package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Account Directory ──────────────────────────────────────────────────────
// Identities are registered here by administrators; the ledger only reads them.

// NormalizeEmail trims and lower-cases an email for matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertProfile registers or updates an identity.
func (d *DB) UpsertProfile(ctx context.Context, p domain.Profile) error {
	if p.AccountID == "" {
		return errors.New("profile needs an account id")
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO profiles (account_id, email, email_norm, full_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			email      = excluded.email,
			email_norm = excluded.email_norm,
			full_name  = excluded.full_name
	`, p.AccountID, strings.TrimSpace(p.Email), NormalizeEmail(p.Email), p.FullName, time.Now().UnixNano())
	return err
}

// Get returns a profile by account ID.
func (d *DB) Get(ctx context.Context, accountID string) (domain.Profile, error) {
	var p domain.Profile
	err := d.db.QueryRowContext(ctx, `
		SELECT account_id, email, full_name FROM profiles WHERE account_id = ?
	`, accountID).Scan(&p.AccountID, &p.Email, &p.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return p, err
}

// ResolveByEmail returns every profile registered under email, oldest first.
// Emails are not unique in the directory.
func (d *DB) ResolveByEmail(ctx context.Context, email string) ([]domain.Profile, error) {
	norm := NormalizeEmail(email)
	rows, err := d.db.QueryContext(ctx, `
		SELECT account_id, email, full_name FROM profiles
		WHERE email_norm = ?
		ORDER BY created_at, account_id
	`, norm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.AccountID, &p.Email, &p.FullName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, norm)
	}
	return out, nil
}
