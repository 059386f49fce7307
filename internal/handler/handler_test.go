package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/domain/selection"
)

// --- Mock implementations ---

type mockCouponRepo struct {
	coupons   []coupon.Coupon
	created   *coupon.Coupon
	createErr error
	listErr   error
}

func (m *mockCouponRepo) Create(_ context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *c
	stored.CreatedAt = time.Now()
	m.created = &stored
	return &stored, nil
}

func (m *mockCouponRepo) List(_ context.Context) ([]coupon.Coupon, error) {
	return m.coupons, m.listErr
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for i := range m.coupons {
		if m.coupons[i].Code == code {
			return &m.coupons[i], nil
		}
	}
	return nil, coupon.ErrNotFound
}

type mockUsageStore struct {
	counts map[string]int
	err    error
}

func (m *mockUsageStore) Count(_ context.Context, _, code string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.counts[code], nil
}

func (m *mockUsageStore) Increment(_ context.Context, userID, code string) (*coupon.Usage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[code]++
	return &coupon.Usage{
		UserID:     userID,
		CouponCode: code,
		UsageCount: m.counts[code],
		UpdatedAt:  time.Now(),
	}, nil
}

// --- Helpers ---

func newTestHandler(repo *mockCouponRepo, usage *mockUsageStore) http.Handler {
	engine := selection.NewEngine(repo, usage)
	return New(repo, usage, engine).Routes()
}

// activeCoupon is valid from 2020 through 2120.
func activeCoupon(code string, typ coupon.DiscountType, value string) coupon.Coupon {
	return coupon.Coupon{
		Code:          code,
		DiscountType:  typ,
		DiscountValue: decimal.RequireFromString(value),
		StartDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2120, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func validCreateBody() map[string]any {
	return map[string]any{
		"code":          "SAVE20",
		"description":   "$20 off",
		"discountType":  "FLAT",
		"discountValue": 20,
		"startDate":     "2026-01-01T00:00:00Z",
		"endDate":       "2026-12-31T23:59:59Z",
	}
}

func bestBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"user": map[string]any{
			"userId":        "u1",
			"userTier":      "gold",
			"country":       "US",
			"lifetimeSpend": 1000,
			"ordersPlaced":  5,
		},
		"cart": map[string]any{"items": items},
	}
}

func cartItem(id, category string, price float64, qty int) map[string]any {
	return map[string]any{
		"productId": id,
		"category":  category,
		"unitPrice": price,
		"quantity":  qty,
	}
}

// --- Tests ---

func TestCreateCoupon(t *testing.T) {
	repo := &mockCouponRepo{}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Coupon couponPayload `json:"coupon"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "SAVE20", resp.Coupon.Code)
	assert.Equal(t, "FLAT", resp.Coupon.DiscountType)
	assert.Equal(t, float64(20), resp.Coupon.DiscountValue)

	require.NotNil(t, repo.created)
	assert.Equal(t, "SAVE20", repo.created.Code)
}

func TestCreateCoupon_InvalidJSON(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	req := httptest.NewRequest(http.MethodPost, "/coupons/", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid JSON body", resp.Error)
}

func TestCreateCoupon_ValidationErrors(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	body := validCreateBody()
	delete(body, "code")
	body["discountType"] = "BOGO"
	body["discountValue"] = 0

	rec := doJSON(t, h, http.MethodPost, "/coupons/", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "code is required")
	assert.Contains(t, resp.Error, "discountType must be one of")
	assert.Contains(t, resp.Error, "discountValue must be greater than 0")
}

func TestCreateCoupon_PercentOver100(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	body := validCreateBody()
	body["discountType"] = "PERCENT"
	body["discountValue"] = 150

	rec := doJSON(t, h, http.MethodPost, "/coupons/", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "discountValue must be at most 100")
}

func TestCreateCoupon_EndBeforeStart(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	body := validCreateBody()
	body["startDate"] = "2026-12-31T00:00:00Z"
	body["endDate"] = "2026-01-01T00:00:00Z"

	rec := doJSON(t, h, http.MethodPost, "/coupons/", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "endDate")
}

func TestCreateCoupon_DuplicateCode(t *testing.T) {
	repo := &mockCouponRepo{createErr: coupon.ErrDuplicateCode}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/", validCreateBody())
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Coupon code already exists", resp.Error)
}

func TestCreateCoupon_RepoError(t *testing.T) {
	repo := &mockCouponRepo{createErr: errors.New("db down")}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/", validCreateBody())
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Internal Server Error", resp.Error)
}

func TestListCoupons(t *testing.T) {
	repo := &mockCouponRepo{coupons: []coupon.Coupon{
		activeCoupon("A", coupon.DiscountFlat, "5"),
		activeCoupon("B", coupon.DiscountPercent, "10"),
	}}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodGet, "/coupons/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Coupons []couponPayload `json:"coupons"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Coupons, 2)
	assert.Equal(t, "A", resp.Coupons[0].Code)
	assert.Equal(t, "B", resp.Coupons[1].Code)
}

func TestListCoupons_Empty(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodGet, "/coupons/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"coupons":[]}`, rec.Body.String())
}

func TestBestCoupon(t *testing.T) {
	repo := &mockCouponRepo{coupons: []coupon.Coupon{
		activeCoupon("SMALL", coupon.DiscountFlat, "5"),
		activeCoupon("BIG", coupon.DiscountPercent, "20"),
	}}
	h := newTestHandler(repo, &mockUsageStore{})

	// 20% of 200 = 40 beats the $5 flat coupon.
	rec := doJSON(t, h, http.MethodPost, "/coupons/best",
		bestBody(cartItem("p1", "electronics", 100, 2)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bestCouponResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.BestCoupon)
	assert.Equal(t, "BIG", resp.BestCoupon.Code)
	assert.Equal(t, float64(40), resp.Discount)
}

func TestBestCoupon_NoWinner(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/best",
		bestBody(cartItem("p1", "books", 10, 1)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bestCouponResponse
	decodeBody(t, rec, &resp)
	assert.Nil(t, resp.BestCoupon)
	assert.Zero(t, resp.Discount)

	// The winner must serialize as an explicit null, not be omitted.
	assert.Contains(t, rec.Body.String(), `"bestCoupon":null`)
}

func TestBestCoupon_ValidationErrors(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	body := bestBody(cartItem("p1", "books", 10, 0))
	rec := doJSON(t, h, http.MethodPost, "/coupons/best", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "quantity")
}

func TestBestCoupon_EngineError(t *testing.T) {
	repo := &mockCouponRepo{listErr: errors.New("db down")}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/best",
		bestBody(cartItem("p1", "books", 10, 1)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMarkCouponUsed(t *testing.T) {
	repo := &mockCouponRepo{coupons: []coupon.Coupon{
		activeCoupon("SAVE20", coupon.DiscountFlat, "20"),
	}}
	usage := &mockUsageStore{}
	h := newTestHandler(repo, usage)

	rec := doJSON(t, h, http.MethodPost, "/coupons/use/SAVE20",
		map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Usage usagePayload `json:"usage"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "u1", resp.Usage.UserID)
	assert.Equal(t, "SAVE20", resp.Usage.CouponCode)
	assert.Equal(t, 1, resp.Usage.UsageCount)

	rec = doJSON(t, h, http.MethodPost, "/coupons/use/SAVE20",
		map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Usage.UsageCount)
}

func TestMarkCouponUsed_NotFound(t *testing.T) {
	h := newTestHandler(&mockCouponRepo{}, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/use/MISSING",
		map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Coupon not found", resp.Error)
}

func TestMarkCouponUsed_MissingUserID(t *testing.T) {
	repo := &mockCouponRepo{coupons: []coupon.Coupon{
		activeCoupon("SAVE20", coupon.DiscountFlat, "20"),
	}}
	h := newTestHandler(repo, &mockUsageStore{})

	rec := doJSON(t, h, http.MethodPost, "/coupons/use/SAVE20", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "userId is required")
}

func TestBestCoupon_UsageLimitExcludesExhausted(t *testing.T) {
	limit := 1
	limited := activeCoupon("ONCE", coupon.DiscountFlat, "50")
	limited.UsageLimitPerUser = &limit

	repo := &mockCouponRepo{coupons: []coupon.Coupon{
		limited,
		activeCoupon("OPEN", coupon.DiscountFlat, "10"),
	}}
	usage := &mockUsageStore{counts: map[string]int{"ONCE": 1}}
	h := newTestHandler(repo, usage)

	rec := doJSON(t, h, http.MethodPost, "/coupons/best",
		bestBody(cartItem("p1", "books", 100, 1)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bestCouponResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.BestCoupon)
	assert.Equal(t, "OPEN", resp.BestCoupon.Code)
}
