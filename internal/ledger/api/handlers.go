// Package api exposes the gateway's HTTP surface.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paygate/internal/common/api"
	"paygate/internal/common/middleware"
	"paygate/internal/ledger"
	"paygate/internal/ledger/domain"
)

// Handler serves the merchant and payment endpoints.
type Handler struct {
	service *ledger.Service
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler for the gateway API.
func NewHandler(service *ledger.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the API routes. All mutating routes require an
// authenticated principal.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/merchants", func(r chi.Router) {
		r.With(middleware.RequirePrincipal).Post("/register", h.registerMerchant)
		r.Get("/{merchantID}", h.getMerchant)
		r.Get("/{merchantID}/registered", h.isMerchantRegistered)
	})

	r.Route("/payments", func(r chi.Router) {
		r.With(middleware.RequirePrincipal).Post("/", h.createPayment)
		r.With(middleware.RequirePrincipal).Post("/{paymentID}/process", h.processPayment)
		r.Get("/{paymentID}", h.getPayment)
	})

	r.Get("/stats", h.getStats)
	r.With(middleware.RequirePrincipal).Put("/config/fee", h.updateFeeRate)

	return r
}

func (h *Handler) registerMerchant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetPrincipal(r.Context())

	m, err := h.service.RegisterMerchant(r.Context(), caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusCreated, m)
}

func (h *Handler) getMerchant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "merchantID")

	m, err := h.service.GetMerchant(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, m)
}

func (h *Handler) isMerchantRegistered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "merchantID")

	registered, err := h.service.IsMerchantRegistered(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, map[string]bool{"registered": registered})
}

// CreatePaymentRequest is the request body for creating a payment intent.
// Amount is validated by the ledger itself so that a non-positive amount
// surfaces as INSUFFICIENT_AMOUNT rather than a generic validation error.
type CreatePaymentRequest struct {
	PaymentID   string `json:"payment_id" validate:"required,max=64"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty" validate:"max=256"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	caller := middleware.GetPrincipal(r.Context())

	receipt, err := h.service.CreatePaymentIntent(r.Context(), req.PaymentID, caller, req.Amount, req.Description)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusCreated, receipt)
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	caller := middleware.GetPrincipal(r.Context())

	intent, err := h.service.ProcessPayment(r.Context(), id, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, intent)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")

	intent, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, intent)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, stats)
}

// UpdateFeeRateRequest is the request body for changing the fee rate.
type UpdateFeeRateRequest struct {
	FeeBasisPoints int64 `json:"fee_basis_points" validate:"min=0,max=10000"`
}

func (h *Handler) updateFeeRate(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeeRateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	caller := middleware.GetPrincipal(r.Context())

	if err := h.service.UpdateFeeRate(r.Context(), caller, req.FeeBasisPoints); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, map[string]int64{"fee_basis_points": req.FeeBasisPoints})
}

// writeDomainError maps ledger errors onto HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidMerchant):
		api.WriteError(w, http.StatusNotFound, api.ErrCodeInvalidMerchant, err.Error())
	case errors.Is(err, domain.ErrInsufficientAmount):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeInsufficientAmount, err.Error())
	case errors.Is(err, domain.ErrDuplicatePayment):
		api.WriteError(w, http.StatusConflict, api.ErrCodeDuplicatePayment, err.Error())
	case errors.Is(err, domain.ErrPaymentNotFound):
		api.WriteError(w, http.StatusNotFound, api.ErrCodePaymentNotFound, err.Error())
	case errors.Is(err, domain.ErrPaymentAlreadyCompleted):
		api.WriteError(w, http.StatusConflict, api.ErrCodePaymentAlreadyCompleted, err.Error())
	case errors.Is(err, domain.ErrNotAuthorized):
		api.WriteError(w, http.StatusForbidden, api.ErrCodeNotAuthorized, err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		api.InternalError(w, "internal server error")
	}
}
