package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount calculates the monetary discount the coupon yields against
// the given cart value.
//
// FLAT coupons return DiscountValue verbatim, ignoring the cart value.
// PERCENT coupons return value/100 * cartValue, bounded by MaxDiscountAmount
// when a cap is present. The result is not clamped at zero; discarding
// non-positive discounts is the selection engine's job.
func ComputeDiscount(c Coupon, cartValue decimal.Decimal) (decimal.Decimal, error) {
	switch c.DiscountType {
	case DiscountFlat:
		return c.DiscountValue, nil
	case DiscountPercent:
		amount := c.DiscountValue.Mul(cartValue).Div(hundred)
		if c.MaxDiscountAmount != nil {
			amount = decimal.Min(amount, *c.MaxDiscountAmount)
		}
		return amount, nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}
