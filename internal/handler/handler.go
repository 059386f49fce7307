// Package handler exposes the coupon API over HTTP: administrative catalog
// inserts, catalog listing, best-coupon selection, and the mark-used helper.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/domain/selection"
)

// Handler serves the /api/coupons routes, delegating business logic to the
// selection engine and the injected repositories.
type Handler struct {
	coupons  coupon.Repository
	usage    coupon.UsageStore
	engine   *selection.Engine
	validate *validator.Validate
}

// New constructs a Handler with the required domain dependencies.
func New(coupons coupon.Repository, usage coupon.UsageStore, engine *selection.Engine) *Handler {
	return &Handler{
		coupons:  coupons,
		usage:    usage,
		engine:   engine,
		validate: newValidator(),
	}
}

// Routes mounts the coupon API on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Post("/best", h.BestCoupon)
		r.Post("/use/{code}", h.MarkCouponUsed)
	})
	return r
}

// decode parses and validates a JSON request body into dst. On failure it
// writes a 400 response with an aggregated message and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

// internalError logs the cause and responds with a generic 500. Collaborator
// failures surface here; they are never exposed verbatim to clients.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
