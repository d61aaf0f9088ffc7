package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Account Summary Operations ─────────────────────────────────────────────

const selectAccount = `
	SELECT m.account_id, m.is_member, m.tier, m.balance, m.total_credits, m.total_debits,
	       m.qualifying_count, m.member_since, m.last_credit_at, m.version, m.updated_at,
	       COALESCE(p.email, ''), COALESCE(p.full_name, '')
	FROM member_accounts m
	LEFT JOIN profiles p ON p.account_id = m.account_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.MemberAccount, error) {
	var (
		a           domain.MemberAccount
		isMember    int
		tier        string
		memberSince sql.NullInt64
		lastCredit  sql.NullInt64
		updatedAt   int64
	)
	err := row.Scan(&a.AccountID, &isMember, &tier, &a.Balance, &a.TotalCredits, &a.TotalDebits,
		&a.QualifyingActivityCount, &memberSince, &lastCredit, &a.Version, &updatedAt,
		&a.Email, &a.FullName)
	if err != nil {
		return domain.MemberAccount{}, err
	}
	a.IsMember = isMember == 1
	a.Tier = domain.Tier(tier)
	a.MemberSince = timePtr(memberSince)
	a.LastCreditAt = timePtr(lastCredit)
	a.UpdatedAt = fromUnixNano(updatedAt)
	return a, nil
}

// GetAccount returns the stored summary or domain.ErrAccountNotFound.
func (d *DB) GetAccount(ctx context.Context, accountID string) (domain.MemberAccount, error) {
	a, err := scanAccount(d.db.QueryRowContext(ctx, selectAccount+` WHERE m.account_id = ?`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MemberAccount{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return a, err
}

// EnsureAccount inserts seed if the account has no summary yet, then returns
// whatever is stored.
func (d *DB) EnsureAccount(ctx context.Context, seed domain.MemberAccount) (domain.MemberAccount, error) {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO member_accounts (account_id, is_member, tier, balance, total_credits, total_debits,
			qualifying_count, member_since, last_credit_at, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(account_id) DO NOTHING
	`, seed.AccountID, boolInt(seed.IsMember), string(seed.Tier), seed.Balance, seed.TotalCredits, seed.TotalDebits,
		seed.QualifyingActivityCount, nullableTime(seed.MemberSince), nullableTime(seed.LastCreditAt),
		unixNano(seed.UpdatedAt))
	if err != nil {
		return domain.MemberAccount{}, err
	}
	return d.GetAccount(ctx, seed.AccountID)
}

// Mutate runs fn against the current summary inside one SQL transaction and
// persists the edited summary plus the returned transaction, if any.
func (d *DB) Mutate(ctx context.Context, accountID string, fn domain.MutateFunc) (domain.MemberAccount, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.MemberAccount{}, err
	}
	defer tx.Rollback()

	acct, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+` WHERE m.account_id = ?`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MemberAccount{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return domain.MemberAccount{}, err
	}

	rec, err := fn(&acct)
	if err != nil {
		return domain.MemberAccount{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE member_accounts SET
			is_member        = ?,
			tier             = ?,
			balance          = ?,
			total_credits    = ?,
			total_debits     = ?,
			qualifying_count = ?,
			member_since     = ?,
			last_credit_at   = ?,
			version          = version + 1,
			updated_at       = ?
		WHERE account_id = ?
	`, boolInt(acct.IsMember), string(acct.Tier), acct.Balance, acct.TotalCredits, acct.TotalDebits,
		acct.QualifyingActivityCount, nullableTime(acct.MemberSince), nullableTime(acct.LastCreditAt),
		unixNano(acct.UpdatedAt), accountID)
	if err != nil {
		return domain.MemberAccount{}, fmt.Errorf("update summary: %w", err)
	}
	acct.Version++

	if rec != nil {
		rec.AccountID = accountID
		if err := insertTransaction(ctx, tx, *rec, "account_id"); err != nil {
			return domain.MemberAccount{}, fmt.Errorf("append transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.MemberAccount{}, err
	}
	return acct, nil
}

// ListMembers returns all active members ordered by name.
func (d *DB) ListMembers(ctx context.Context) ([]domain.MemberAccount, error) {
	rows, err := d.db.QueryContext(ctx, selectAccount+`
		WHERE m.is_member = 1
		ORDER BY COALESCE(p.full_name, '') COLLATE NOCASE, m.account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MemberAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Transaction History ────────────────────────────────────────────────────

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, ex execer, t domain.Transaction, ownerColumn string) error {
	base, cashback := t.BaseAmount, t.CashbackAmount
	if t.Kind == domain.KindDebit {
		base, cashback = decimal.Zero, decimal.Zero
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO club_transactions (id, `+ownerColumn+`, kind, amount, base_amount, cashback_amount,
			is_qualifying, description, source, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AccountID, string(t.Kind), t.Amount, base, cashback,
		boolInt(t.IsQualifying), t.Description, string(t.Source), t.CreatedBy, unixNano(t.CreatedAt))
	return err
}

// ImportLegacyTransaction back-fills a history row exported by an older
// client, which recorded the owner under the deprecated column.
func (d *DB) ImportLegacyTransaction(ctx context.Context, t domain.Transaction) error {
	return insertTransaction(ctx, d.db, t, "legacy_owner_id")
}

// ListTransactions returns one page of an account's history, newest first,
// ties broken by id descending.
func (d *DB) ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	col := "account_id"
	if q.Owner == domain.OwnerLegacy {
		col = "legacy_owner_id"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, amount, base_amount, cashback_amount, is_qualifying,
		       description, source, created_by, created_at
		FROM club_transactions
		WHERE ` + col + ` = ?`
	args := []any{q.AccountID}
	if q.After != nil {
		at := unixNano(q.After.CreatedAt)
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, at, at, q.After.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var (
			t          domain.Transaction
			kind       string
			qualifying int
			source     string
			createdAt  int64
		)
		if err := rows.Scan(&t.ID, &kind, &t.Amount, &t.BaseAmount, &t.CashbackAmount, &qualifying,
			&t.Description, &source, &t.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		t.AccountID = q.AccountID
		t.Kind = domain.TransactionKind(kind)
		t.IsQualifying = qualifying == 1
		t.Source = domain.Source(source)
		t.CreatedAt = fromUnixNano(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
