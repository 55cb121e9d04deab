package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veriquick/golang_services/internal/verification_gateway/app"
	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// userIDHeader carries the authenticated caller's ID, set by the fronting
// auth layer. Authentication itself is outside this service.
const userIDHeader = "X-User-ID"

type GatewayHandler struct {
	service *app.GatewayService
	logger  *slog.Logger
}

func NewGatewayHandler(service *app.GatewayService, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		service: service,
		logger:  logger.With("handler", "gateway"),
	}
}

// RegisterRoutes registers verification routes with the given router.
func (h *GatewayHandler) RegisterRoutes(r chi.Router) {
	r.Post("/verifications", h.createVerification)
	r.Get("/verifications/{verification_id}", h.getVerification)
	r.Delete("/verifications/{verification_id}", h.cancelVerification)
	r.Post("/verifications/bulk", h.createBulk)
	r.Get("/verifications/bulk/{batch_id}", h.getBulk)
	r.Get("/providers/balances", h.providerBalances)
	r.Get("/providers/health", h.providerHealth)
}

func (h *GatewayHandler) createVerification(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}

	var req CreateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Service == "" || req.Country == "" {
		writeError(w, http.StatusBadRequest, "service and country are required", "")
		return
	}

	capability := domain.CapabilitySMS
	if req.Capability != "" {
		capability = domain.Capability(req.Capability)
		if capability != domain.CapabilitySMS && capability != domain.CapabilityVoice {
			writeError(w, http.StatusBadRequest, "capability must be sms or voice", "")
			return
		}
	}

	v, err := h.service.CreateVerification(r.Context(), userID, req.Service, req.Country, capability)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVerificationResponse(v))
}

func (h *GatewayHandler) getVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "verification_id")
	v, err := h.service.PollStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerificationResponse(v))
}

func (h *GatewayHandler) cancelVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "verification_id")
	if err := h.service.CancelVerification(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "result": "cancellation requested"})
}

func (h *GatewayHandler) createBulk(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}

	var req CreateBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Service == "" || req.Country == "" {
		writeError(w, http.StatusBadRequest, "service and country are required", "")
		return
	}

	batch, err := h.service.CreateBulkPurchase(r.Context(), userID, req.Service, req.Country, req.Quantity)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	// Partial failures are data, not an error status.
	writeJSON(w, http.StatusCreated, toBulkBatchResponse(batch, nil))
}

func (h *GatewayHandler) getBulk(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	batch, items, err := h.service.GetBulkStatus(r.Context(), batchID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkBatchResponse(batch, items))
}

func (h *GatewayHandler) providerBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ProviderBalances(r.Context()))
}

func (h *GatewayHandler) providerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ProviderHealth())
}

func (h *GatewayHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var allFailed *domain.AllProvidersFailedError

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "quantity out of range", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredit):
		writeError(w, http.StatusPaymentRequired, "insufficient credit", "")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "")
	case errors.Is(err, domain.ErrNotCancellable):
		writeError(w, http.StatusConflict, "verification is not cancellable", "")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider unavailable", "")
	case errors.As(err, &allFailed):
		writeError(w, http.StatusServiceUnavailable, "all providers failed", allFailed.Error())
	default:
		h.logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, GenericErrorResponse{Error: msg, Details: details})
}
