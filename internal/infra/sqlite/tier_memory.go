package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Tier Memory ────────────────────────────────────────────────────────────

// LastKnownTier returns the tier last announced for an account.
func (d *DB) LastKnownTier(ctx context.Context, accountID string) (domain.Tier, bool, error) {
	var tier string
	err := d.db.QueryRowContext(ctx, `
		SELECT tier FROM tier_memory WHERE account_id = ?
	`, accountID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.Tier(tier), true, nil
}

// SwapTier advances the remembered tier with compare-and-swap semantics.
func (d *DB) SwapTier(ctx context.Context, accountID string, old domain.Tier, hadOld bool, next domain.Tier) (bool, error) {
	now := time.Now().UnixNano()
	var (
		res sql.Result
		err error
	)
	if !hadOld {
		res, err = d.db.ExecContext(ctx, `
			INSERT INTO tier_memory (account_id, tier, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(account_id) DO NOTHING
		`, accountID, string(next), now)
	} else {
		res, err = d.db.ExecContext(ctx, `
			UPDATE tier_memory SET tier = ?, updated_at = ?
			WHERE account_id = ? AND tier = ?
		`, string(next), now, accountID, string(old))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
