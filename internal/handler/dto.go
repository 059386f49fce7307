package handler

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-picker/internal/domain/cart"
	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/domain/shopper"
)

// createCouponRequest is the administrative insert payload.
type createCouponRequest struct {
	Code              string              `json:"code"              validate:"required,max=100"`
	Description       string              `json:"description"`
	DiscountType      string              `json:"discountType"      validate:"required,oneof=FLAT PERCENT"`
	DiscountValue     decimal.Decimal     `json:"discountValue"     validate:"gt=0"`
	MaxDiscountAmount *decimal.Decimal    `json:"maxDiscountAmount" validate:"omitempty,gt=0"`
	StartDate         time.Time           `json:"startDate"         validate:"required"`
	EndDate           time.Time           `json:"endDate"           validate:"required,gtefield=StartDate"`
	UsageLimitPerUser *int                `json:"usageLimitPerUser" validate:"omitempty,min=1"`
	Eligibility       *coupon.Eligibility `json:"eligibility"`
}

func (r createCouponRequest) toDomain() *coupon.Coupon {
	c := &coupon.Coupon{
		Code:              r.Code,
		Description:       r.Description,
		DiscountType:      coupon.DiscountType(r.DiscountType),
		DiscountValue:     r.DiscountValue,
		MaxDiscountAmount: r.MaxDiscountAmount,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		UsageLimitPerUser: r.UsageLimitPerUser,
	}
	if r.Eligibility != nil {
		c.Eligibility = *r.Eligibility
	}
	return c
}

// bestCouponRequest carries the user profile and cart for one selection pass.
type bestCouponRequest struct {
	User userPayload `json:"user" validate:"required"`
	Cart cartPayload `json:"cart" validate:"required"`
}

type userPayload struct {
	UserID        string          `json:"userId"        validate:"required"`
	UserTier      string          `json:"userTier"      validate:"required"`
	Country       string          `json:"country"       validate:"required"`
	LifetimeSpend decimal.Decimal `json:"lifetimeSpend" validate:"gte=0"`
	OrdersPlaced  int             `json:"ordersPlaced"  validate:"gte=0"`
}

type cartPayload struct {
	Items []cartItemPayload `json:"items" validate:"required,dive"`
}

type cartItemPayload struct {
	ProductID string          `json:"productId" validate:"required"`
	Category  string          `json:"category"  validate:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Quantity  int             `json:"quantity"  validate:"min=1"`
}

func (r bestCouponRequest) toDomain() (shopper.Profile, cart.Cart) {
	user := shopper.Profile{
		UserID:        r.User.UserID,
		UserTier:      r.User.UserTier,
		Country:       r.User.Country,
		LifetimeSpend: r.User.LifetimeSpend,
		OrdersPlaced:  r.User.OrdersPlaced,
	}
	items := make([]cart.Item, len(r.Cart.Items))
	for i, it := range r.Cart.Items {
		items[i] = cart.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return user, cart.Cart{Items: items}
}

// markUsedRequest is the body of POST /coupons/use/{code}.
type markUsedRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// couponPayload is the public coupon projection: persistence-internal fields
// (created_at) are excluded.
type couponPayload struct {
	Code              string             `json:"code"`
	Description       string             `json:"description,omitempty"`
	DiscountType      string             `json:"discountType"`
	DiscountValue     float64            `json:"discountValue"`
	MaxDiscountAmount *float64           `json:"maxDiscountAmount,omitempty"`
	StartDate         time.Time          `json:"startDate"`
	EndDate           time.Time          `json:"endDate"`
	UsageLimitPerUser *int               `json:"usageLimitPerUser,omitempty"`
	Eligibility       coupon.Eligibility `json:"eligibility"`
}

func toCouponPayload(c coupon.Coupon) couponPayload {
	p := couponPayload{
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue.InexactFloat64(),
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		UsageLimitPerUser: c.UsageLimitPerUser,
		Eligibility:       c.Eligibility,
	}
	if c.MaxDiscountAmount != nil {
		v := c.MaxDiscountAmount.InexactFloat64()
		p.MaxDiscountAmount = &v
	}
	return p
}

type usagePayload struct {
	UserID     string    `json:"userId"`
	CouponCode string    `json:"couponCode"`
	UsageCount int       `json:"usageCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type bestCouponResponse struct {
	BestCoupon *couponPayload `json:"bestCoupon"`
	Discount   float64        `json:"discount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newValidator builds the request validator: decimal fields validate as
// numbers, and error messages name fields by their JSON tags.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Percentage discounts cannot exceed 100; flat amounts are unbounded.
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(createCouponRequest)
		if req.DiscountType == string(coupon.DiscountPercent) &&
			req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			sl.ReportError(req.DiscountValue, "discountValue", "DiscountValue", "lte", "100")
		}
	}, createCouponRequest{})

	return v
}

// validationMessage flattens validator errors into one human-readable
// aggregated message, one clause per violation.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fieldMessage(fe)
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
