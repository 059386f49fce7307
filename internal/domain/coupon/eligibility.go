package coupon

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-picker/internal/domain/cart"
	"github.com/xenking/coupon-picker/internal/domain/shopper"
)

// Eligibility is a conjunction of independently-optional constraints over a
// user profile and a cart. Nil / empty fields impose no constraint, so the
// zero value is satisfied by every (user, cart). The JSON shape doubles as
// the persisted JSONB column and the public API representation.
type Eligibility struct {
	AllowedUserTiers     []string         `json:"allowedUserTiers,omitempty"`
	MinLifetimeSpend     *decimal.Decimal `json:"minLifetimeSpend,omitempty"`
	MinOrdersPlaced      *int             `json:"minOrdersPlaced,omitempty"`
	FirstOrderOnly       bool             `json:"firstOrderOnly,omitempty"`
	AllowedCountries     []string         `json:"allowedCountries,omitempty"`
	MinCartValue         *decimal.Decimal `json:"minCartValue,omitempty"`
	ApplicableCategories []string         `json:"applicableCategories,omitempty"`
	ExcludedCategories   []string         `json:"excludedCategories,omitempty"`
	MinItemsCount        *int             `json:"minItemsCount,omitempty"`
}

// Evaluate checks the ruleset against the user and cart. Predicates run in a
// fixed order and short-circuit: the first failure determines the reason.
// A negative outcome is a regular result, not an error.
func (e Eligibility) Evaluate(user shopper.Profile, c cart.Cart) (ok bool, reason string) {
	if len(e.AllowedUserTiers) > 0 && !slices.Contains(e.AllowedUserTiers, user.UserTier) {
		return false, "User tier not allowed"
	}
	if e.MinLifetimeSpend != nil && user.LifetimeSpend.LessThan(*e.MinLifetimeSpend) {
		return false, "Lifetime spend below required threshold"
	}
	if e.MinOrdersPlaced != nil && user.OrdersPlaced < *e.MinOrdersPlaced {
		return false, "Not enough past orders"
	}
	if e.FirstOrderOnly && user.OrdersPlaced > 0 {
		return false, "Not a first-time buyer"
	}
	if len(e.AllowedCountries) > 0 && !slices.Contains(e.AllowedCountries, user.Country) {
		return false, "Country not allowed"
	}
	if e.MinCartValue != nil && c.Value().LessThan(*e.MinCartValue) {
		return false, "Cart value too low"
	}
	if len(e.ApplicableCategories) > 0 && !c.HasCategory(e.ApplicableCategories) {
		return false, "No applicable categories in cart"
	}
	if len(e.ExcludedCategories) > 0 && c.HasCategory(e.ExcludedCategories) {
		return false, "Cart contains excluded categories"
	}
	if e.MinItemsCount != nil && c.TotalQuantity() < *e.MinItemsCount {
		return false, "Not enough items in cart"
	}
	return true, ""
}
