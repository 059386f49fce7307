// Package selection implements the best-coupon decision engine: it filters a
// coupon catalog by validity window, per-user usage limit and eligibility,
// prices every surviving candidate, and deterministically picks a winner.
package selection

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-picker/internal/domain/cart"
	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/domain/shopper"
)

// CatalogProvider supplies the full coupon catalog. Order is unspecified.
type CatalogProvider interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
}

// UsageProvider reads the current redemption count for a (user, coupon) pair,
// returning 0 when no record exists. The engine never mutates usage.
type UsageProvider interface {
	Count(ctx context.Context, userID, code string) (int, error)
}

// Candidate is a coupon that survived all filters for one request, paired
// with its computed discount. Candidates are discarded after the response
// is built.
type Candidate struct {
	Coupon   coupon.Coupon
	Discount decimal.Decimal
}

// Engine evaluates and ranks coupons for a (user, cart) pair. It holds no
// per-request state; a single Engine serves concurrent requests.
type Engine struct {
	catalog CatalogProvider
	usage   UsageProvider
	now     func() time.Time
}

// NewEngine creates an Engine backed by the given catalog and usage providers.
func NewEngine(catalog CatalogProvider, usage UsageProvider) *Engine {
	return &Engine{catalog: catalog, usage: usage, now: time.Now}
}

// SelectBest returns the single best-applicable coupon for the user and cart,
// or nil when no coupon applies.
//
// The clock is read once at entry and reused for every coupon, so a selection
// pass is internally consistent even when it straddles a window boundary.
// A data error on one coupon (for example an unknown discount type) is logged
// and that coupon skipped; it never aborts evaluation of the rest of the
// catalog. Provider failures are propagated.
//
// Ranking: highest discount wins; ties go to the earliest end date (coupons
// closer to expiry are preferred), then to the lexicographically smallest
// code. The order is total, so the winner is deterministic.
func (e *Engine) SelectBest(ctx context.Context, user shopper.Profile, c cart.Cart) (*Candidate, error) {
	coupons, err := e.catalog.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	now := e.now()
	cartValue := c.Value()
	lg := zctx.From(ctx)

	var candidates []Candidate
	for _, cp := range coupons {
		if !cp.ActiveAt(now) {
			continue
		}

		if cp.UsageLimitPerUser != nil {
			used, err := e.usage.Count(ctx, user.UserID, cp.Code)
			if err != nil {
				return nil, errors.Wrapf(err, "usage count for coupon %q", cp.Code)
			}
			if used >= *cp.UsageLimitPerUser {
				continue
			}
		}

		if ok, _ := cp.Eligibility.Evaluate(user, c); !ok {
			continue
		}

		discount, err := coupon.ComputeDiscount(cp, cartValue)
		if err != nil {
			// One corrupt row must not take down the whole decision.
			lg.Warn("Skipping coupon",
				zap.String("code", cp.Code),
				zap.Error(err),
			)
			continue
		}

		if !discount.IsPositive() {
			continue
		}

		candidates = append(candidates, Candidate{Coupon: cp, Discount: discount})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Discount.Equal(b.Discount) {
			return a.Discount.GreaterThan(b.Discount)
		}
		if !a.Coupon.EndDate.Equal(b.Coupon.EndDate) {
			return a.Coupon.EndDate.Before(b.Coupon.EndDate)
		}
		return a.Coupon.Code < b.Coupon.Code
	})

	winner := candidates[0]
	return &winner, nil
}
