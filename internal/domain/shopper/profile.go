// Package shopper holds the transient user profile supplied with each
// best-coupon request. Profiles are never persisted by this service.
package shopper

import "github.com/shopspring/decimal"

// Profile describes the requesting user for eligibility purposes.
type Profile struct {
	UserID        string
	UserTier      string
	Country       string
	LifetimeSpend decimal.Decimal
	OrdersPlaced  int
}
