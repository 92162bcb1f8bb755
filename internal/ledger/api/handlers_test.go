package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonapi "paygate/internal/common/api"
	"paygate/internal/common/events"
	"paygate/internal/common/middleware"
	"paygate/internal/common/sequence"
	"paygate/internal/ledger"
	"paygate/internal/ledger/api"
	"paygate/internal/ledger/store"
	"paygate/internal/merchant"
)

type discardEmitter struct{}

func (discardEmitter) Emit(_ events.Type, _ string, _ any) {}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory(250)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seq := sequence.NewCounter(0)
	reg := merchant.NewRegistry(mem, seq, logger)
	svc := ledger.NewService(mem, reg, seq, discardEmitter{}, "operator", logger)
	routes := api.NewHandler(svc, logger).Routes()
	return middleware.Principal(routes)
}

func doJSON(t *testing.T, h http.Handler, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal", principal)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) commonapi.Error {
	t.Helper()
	var resp struct {
		Error commonapi.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRegisterMerchantEndpoint(t *testing.T) {
	h := newServer(t)

	rec := doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/merchants/merchant-1/registered", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"registered":true`)
}

func TestRegisterMerchantRequiresPrincipal(t *testing.T) {
	h := newServer(t)

	rec := doJSON(t, h, http.MethodPost, "/merchants/register", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMerchantNotFound(t *testing.T) {
	h := newServer(t)

	rec := doJSON(t, h, http.MethodGet, "/merchants/ghost", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, commonapi.ErrCodeInvalidMerchant, decodeError(t, rec).Code)
}

func TestCreatePaymentEndpoint(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)

	rec := doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"payment_id": "pay-1",
		"amount":     10_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			PaymentID string `json:"payment_id"`
			Amount    int64  `json:"amount"`
			Fee       int64  `json:"fee"`
			Merchant  string `json:"merchant"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pay-1", resp.Data.PaymentID)
	assert.Equal(t, int64(250), resp.Data.Fee)
	assert.Equal(t, "merchant-1", resp.Data.Merchant)
}

func TestCreatePaymentErrorMapping(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)
	doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"payment_id": "pay-1", "amount": 1_000,
	})

	tests := []struct {
		name      string
		principal string
		body      map[string]any
		status    int
		code      string
	}{
		{
			"unregistered merchant", "stranger",
			map[string]any{"payment_id": "pay-x", "amount": 1_000},
			http.StatusNotFound, commonapi.ErrCodeInvalidMerchant,
		},
		{
			"non-positive amount", "merchant-1",
			map[string]any{"payment_id": "pay-y", "amount": 0},
			http.StatusUnprocessableEntity, commonapi.ErrCodeInsufficientAmount,
		},
		{
			"duplicate id", "merchant-1",
			map[string]any{"payment_id": "pay-1", "amount": 1_000},
			http.StatusConflict, commonapi.ErrCodeDuplicatePayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/payments/", tt.principal, tt.body)
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)

	rec := doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"amount": 1_000, // missing payment_id
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, commonapi.ErrCodeValidation, decodeError(t, rec).Code)
}

func TestProcessPaymentEndpoint(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)
	doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"payment_id": "pay-1", "amount": 10_000,
	})

	rec := doJSON(t, h, http.MethodPost, "/payments/pay-1/process", "customer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.Contains(t, rec.Body.String(), `"customer":"customer-1"`)

	// Second attempt conflicts
	rec = doJSON(t, h, http.MethodPost, "/payments/pay-1/process", "customer-2", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, commonapi.ErrCodePaymentAlreadyCompleted, decodeError(t, rec).Code)

	// Unknown payment
	rec = doJSON(t, h, http.MethodPost, "/payments/ghost/process", "customer-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, commonapi.ErrCodePaymentNotFound, decodeError(t, rec).Code)
}

func TestGetPaymentEndpoint(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)
	doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"payment_id": "pay-1", "amount": 5_000, "description": "order #9",
	})

	rec := doJSON(t, h, http.MethodGet, "/payments/pay-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
	assert.Contains(t, rec.Body.String(), `"description":"order #9"`)

	rec = doJSON(t, h, http.MethodGet, "/payments/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateFeeRateEndpoint(t *testing.T) {
	h := newServer(t)

	// Non-admin caller is rejected
	rec := doJSON(t, h, http.MethodPut, "/config/fee", "merchant-1", map[string]any{
		"fee_basis_points": 500,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, commonapi.ErrCodeNotAuthorized, decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodPut, "/config/fee", "operator", map[string]any{
		"fee_basis_points": 500,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fee_basis_points":500`)
}

func TestStatsEndpoint(t *testing.T) {
	h := newServer(t)

	doJSON(t, h, http.MethodPost, "/merchants/register", "merchant-1", nil)
	doJSON(t, h, http.MethodPost, "/payments/", "merchant-1", map[string]any{
		"payment_id": "pay-1", "amount": 1_000,
	})

	rec := doJSON(t, h, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_counter":1`)
}
