package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
)

const (
	insertCouponSQL = `INSERT INTO coupons
		(code, description, discount_type, discount_value, max_discount_amount,
		 start_date, end_date, usage_limit_per_user, eligibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING code, description, discount_type, discount_value, max_discount_amount,
			start_date, end_date, usage_limit_per_user, eligibility, created_at`

	listCouponsSQL = `SELECT code, description, discount_type, discount_value, max_discount_amount,
		start_date, end_date, usage_limit_per_user, eligibility, created_at
		FROM coupons ORDER BY created_at DESC`

	findCouponSQL = `SELECT code, description, discount_type, discount_value, max_discount_amount,
		start_date, end_date, usage_limit_per_user, eligibility, created_at
		FROM coupons WHERE code = $1`

	importCouponSQL = `INSERT INTO coupons
		(code, description, discount_type, discount_value, max_discount_amount,
		 start_date, end_date, usage_limit_per_user, eligibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO NOTHING`
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create inserts a new coupon and returns the stored row. A duplicate code
// maps to coupon.ErrDuplicateCode so callers can report a conflict.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	eligibilityJSON, err := json.Marshal(c.Eligibility)
	if err != nil {
		return nil, fmt.Errorf("marshaling eligibility for coupon %q: %w", c.Code, err)
	}

	rows, err := r.pool.Query(ctx, insertCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue,
		c.MaxDiscountAmount, c.StartDate, c.EndDate, c.UsageLimitPerUser,
		eligibilityJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}

	created, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, coupon.ErrDuplicateCode
		}
		return nil, fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return &created, nil
}

// List returns the full catalog, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// FindByCode looks up a single coupon by its code.
// Returns coupon.ErrNotFound when no row matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Import bulk-inserts coupons in a single batch round trip, skipping codes
// that already exist. It returns the number of rows actually inserted.
func (r *CouponRepository) Import(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	b := &pgx.Batch{}
	for i := range coupons {
		c := &coupons[i]

		eligibilityJSON, err := json.Marshal(c.Eligibility)
		if err != nil {
			return 0, fmt.Errorf("marshaling eligibility for coupon %q: %w", c.Code, err)
		}
		b.Queue(importCouponSQL,
			c.Code, c.Description, string(c.DiscountType), c.DiscountValue,
			c.MaxDiscountAmount, c.StartDate, c.EndDate, c.UsageLimitPerUser,
			eligibilityJSON,
		)
	}

	br := r.pool.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var inserted int64
	for range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("importing coupon batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c               coupon.Coupon
		discountType    string
		maxDiscount     *decimal.Decimal
		usageLimit      *int32
		eligibilityJSON []byte
		createdAt       time.Time
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue, &maxDiscount,
		&c.StartDate, &c.EndDate, &usageLimit, &eligibilityJSON, &createdAt,
	)
	if err != nil {
		return coupon.Coupon{}, err
	}

	c.DiscountType = coupon.DiscountType(discountType)
	c.MaxDiscountAmount = maxDiscount
	c.CreatedAt = createdAt
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimitPerUser = &limit
	}
	if len(eligibilityJSON) > 0 {
		if err := json.Unmarshal(eligibilityJSON, &c.Eligibility); err != nil {
			return coupon.Coupon{}, fmt.Errorf("decoding eligibility for coupon %q: %w", c.Code, err)
		}
	}
	return c, nil
}
