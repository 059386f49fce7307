package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFlat subtracts an absolute currency amount.
	DiscountFlat DiscountType = "FLAT"
	// DiscountPercent applies a percentage of the cart value, optionally
	// capped by MaxDiscountAmount.
	DiscountPercent DiscountType = "PERCENT"
)

var (
	// ErrDuplicateCode is returned when creating a coupon whose code
	// already exists. Callers branch on it to report a conflict.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrNotFound is returned when a coupon code does not exist.
	ErrNotFound = errors.New("coupon not found")
)

// Coupon is a discount offer identified by a unique code. Coupons are created
// once through the administrative insert and immutable thereafter.
type Coupon struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	UsageLimitPerUser *int
	Eligibility       Eligibility
	CreatedAt         time.Time
}

// ActiveAt reports whether the coupon's validity window contains the given
// instant. Both window boundaries are inclusive.
func (c Coupon) ActiveAt(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Usage is a persisted count of how many times a user redeemed a coupon.
type Usage struct {
	UserID     string
	CouponCode string
	UsageCount int
	UpdatedAt  time.Time
}

// Repository provides catalog persistence. List order is newest first; the
// selection engine ranks candidates itself and does not depend on it.
type Repository interface {
	Create(ctx context.Context, c *Coupon) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// UsageStore tracks per-user redemption counts. Increment must be atomic
// relative to concurrent Count reads so racing requests cannot push a user
// past a coupon's usage limit.
type UsageStore interface {
	Count(ctx context.Context, userID, code string) (int, error)
	Increment(ctx context.Context, userID, code string) (*Usage, error)
}
