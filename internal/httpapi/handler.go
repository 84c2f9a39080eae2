// Package httpapi exposes the REST endpoints, static files and the
// WebSocket upgrade on one gorilla/mux router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bonosa/MarsLife/internal/catalog"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/metrics"
	"github.com/bonosa/MarsLife/internal/payment"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Payments interface {
	CreateIntent(ctx context.Context, packageID, userID string) (*payment.Created, error)
	Confirm(ctx context.Context, intentID, userID string) (*payment.Confirmation, error)
}

type Handler struct {
	ledger   *ledger.Service
	payments Payments
	logger   *zap.Logger
}

func NewHandler(ledgerSvc *ledger.Service, payments Payments, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledgerSvc, payments: payments, logger: logger.Named("http")}
}

type createIntentRequest struct {
	PackageID string `json:"packageId"`
	UserID    string `json:"userId"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	UserID          string `json:"userId"`
}

type confirmResponse struct {
	Success      bool  `json:"success"`
	NewBalance   int64 `json:"newBalance"`
	CreditsAdded int64 `json:"creditsAdded"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/healthz")
}

func (h *Handler) CreditPackages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, catalog.Packages(), "GET", "/api/credit-packages")
}

func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, catalog.Templates(), "GET", "/api/templates")
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/balance/{userId}"
	timer := prometheus.NewTimer(metrics.HTTPRequestDuration.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	userID := mux.Vars(r)["userId"]
	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrEmptyUserID) {
			respondError(w, http.StatusBadRequest, "User id required", "GET", endpoint)
			return
		}
		h.logger.Error("Failed to read balance", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"credits": balance}, "GET", endpoint)
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/create-payment-intent"
	timer := prometheus.NewTimer(metrics.HTTPRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	created, err := h.payments.CreateIntent(r.Context(), req.PackageID, req.UserID)
	switch {
	case errors.Is(err, payment.ErrUnknownPackage):
		respondError(w, http.StatusBadRequest, "Invalid package", "POST", endpoint)
		return
	case err != nil:
		h.logger.Error("Payment intent error", zap.String("package_id", req.PackageID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Payment failed", "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, created, "POST", endpoint)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/confirm-payment"
	timer := prometheus.NewTimer(metrics.HTTPRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	res, err := h.payments.Confirm(r.Context(), req.PaymentIntentID, req.UserID)
	switch {
	case errors.Is(err, payment.ErrPaymentIncomplete):
		respondError(w, http.StatusBadRequest, "Payment not completed", "POST", endpoint)
		return
	case err != nil:
		h.logger.Error("Payment confirmation error", zap.String("intent_id", req.PaymentIntentID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Payment confirmation failed", "POST", endpoint)
		return
	}
	respondJSON(w, http.StatusOK, confirmResponse{
		Success:      true,
		NewBalance:   res.NewBalance,
		CreditsAdded: res.CreditsAdded,
	}, "POST", endpoint)
}

// Helpers
func respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
