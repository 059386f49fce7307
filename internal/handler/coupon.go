package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
)

// CreateCoupon handles POST /coupons: the administrative insert. Duplicate
// codes are reported as a conflict, distinguishable from generic failures.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.coupons.Create(r.Context(), req.toDomain())
	if err != nil {
		if errors.Is(err, coupon.ErrDuplicateCode) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "Coupon code already exists"})
			return
		}
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Coupon couponPayload `json:"coupon"`
	}{Coupon: toCouponPayload(*created)})
}

// ListCoupons handles GET /coupons: the full catalog, newest first.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}

	out := make([]couponPayload, len(coupons))
	for i, c := range coupons {
		out[i] = toCouponPayload(c)
	}
	writeJSON(w, http.StatusOK, struct {
		Coupons []couponPayload `json:"coupons"`
	}{Coupons: out})
}

// BestCoupon handles POST /coupons/best: runs one selection pass for the
// given user and cart. "No winner" is an explicit null, never an error.
func (h *Handler) BestCoupon(w http.ResponseWriter, r *http.Request) {
	var req bestCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, c := req.toDomain()
	winner, err := h.engine.SelectBest(r.Context(), user, c)
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := bestCouponResponse{Discount: 0}
	if winner != nil {
		payload := toCouponPayload(winner.Coupon)
		resp.BestCoupon = &payload
		resp.Discount = winner.Discount.InexactFloat64()
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkCouponUsed handles POST /coupons/use/{code}: increments the usage
// record for the requesting user. Selection never calls this; it exists so
// redemptions (and tests) can exercise usage limits.
func (h *Handler) MarkCouponUsed(w http.ResponseWriter, r *http.Request) {
	var req markUsedRequest
	if !h.decode(w, r, &req) {
		return
	}

	code := chi.URLParam(r, "code")
	if _, err := h.coupons.FindByCode(r.Context(), code); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Coupon not found"})
			return
		}
		internalError(w, r, err)
		return
	}

	usage, err := h.usage.Increment(r.Context(), req.UserID, code)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Usage usagePayload `json:"usage"`
	}{Usage: usagePayload{
		UserID:     usage.UserID,
		CouponCode: usage.CouponCode,
		UsageCount: usage.UsageCount,
		UpdatedAt:  usage.UpdatedAt,
	}})
}
