package store

import (
	"database/sql"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

func scanRateLimitRow(row interface{ Scan(...any) error }) (*models.RateLimitState, error) {
	var r models.RateLimitState
	var limitType sql.NullString
	var rateLimitedAt, resetAt sql.NullTime

	if err := row.Scan(
		&r.IsRateLimited, &limitType, &rateLimitedAt, &resetAt,
		&r.Usage5hPct, &r.Usage7dPct, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if limitType.Valid {
		lt := models.LimitType(limitType.String)
		r.LimitType = &lt
	}
	if rateLimitedAt.Valid {
		r.RateLimitedAt = &rateLimitedAt.Time
	}
	if resetAt.Valid {
		r.ResetAt = &resetAt.Time
	}
	return &r, nil
}

// GetRateLimitState reads the singleton rate limit row.
func GetRateLimitState(db *sql.DB) (*models.RateLimitState, error) {
	row := db.QueryRow(`
		SELECT is_rate_limited, limit_type, rate_limited_at, reset_at, usage_5h_pct, usage_7d_pct, updated_at
		FROM rate_limit_state WHERE id = 1
	`)
	return scanRateLimitRow(row)
}

// SetRateLimited marks the singleton rate_limited with a window type and
// reset time, in a single UPDATE (spec §4.1 op 3).
func SetRateLimited(db *sql.DB, limitType models.LimitType, resetAt sql.NullTime) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE rate_limit_state
			SET is_rate_limited = 1, limit_type = ?, rate_limited_at = CURRENT_TIMESTAMP,
				reset_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = 1
		`, limitType, resetAt)
		if err != nil {
			return fmt.Errorf("set rate limited: %w", err)
		}
		return nil
	})
}

// ClearRateLimit resets the singleton back to not-rate-limited, in a single
// UPDATE (spec §4.1 op 3).
func ClearRateLimit(db *sql.DB) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE rate_limit_state
			SET is_rate_limited = 0, limit_type = NULL, rate_limited_at = NULL, reset_at = NULL,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("clear rate limit: %w", err)
		}
		return nil
	})
}

// UpdateUsageWindows records the latest 5h/7d usage percentages without
// touching the is_rate_limited flag (spec §4.1 op 3).
func UpdateUsageWindows(db *sql.DB, usage5hPct, usage7dPct float64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE rate_limit_state SET usage_5h_pct = ?, usage_7d_pct = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = 1
		`, usage5hPct, usage7dPct)
		if err != nil {
			return fmt.Errorf("update usage windows: %w", err)
		}
		return nil
	})
}
