package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
)

const (
	getUsageCountSQL = `SELECT usage_count FROM coupon_usage
		WHERE user_id = $1 AND coupon_code = $2`

	// Single-statement upsert keeps the increment atomic relative to
	// concurrent reads, so racing requests cannot exceed a usage limit.
	incrementUsageSQL = `INSERT INTO coupon_usage (user_id, coupon_code, usage_count, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id, coupon_code)
		DO UPDATE SET usage_count = coupon_usage.usage_count + 1, updated_at = NOW()
		RETURNING user_id, coupon_code, usage_count, updated_at`
)

var _ coupon.UsageStore = (*UsageRepository)(nil)

// UsageRepository implements coupon.UsageStore backed by PostgreSQL.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Count returns how many times the user has redeemed the coupon, 0 when no
// record exists.
func (r *UsageRepository) Count(ctx context.Context, userID, code string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, getUsageCountSQL, userID, code).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("usage count for user %q coupon %q: %w", userID, code, err)
	}
	return count, nil
}

// Increment creates or bumps the usage record for (userID, code) and returns
// the updated row.
func (r *UsageRepository) Increment(ctx context.Context, userID, code string) (*coupon.Usage, error) {
	var u coupon.Usage
	err := r.pool.QueryRow(ctx, incrementUsageSQL, userID, code).
		Scan(&u.UserID, &u.CouponCode, &u.UsageCount, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("incrementing usage for user %q coupon %q: %w", userID, code, err)
	}
	return &u, nil
}
