package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sevasetu/paycore/infra/response"
	"github.com/sevasetu/paycore/store"
)

// RequestServiceInterface defines the interface for service request operations
type RequestServiceInterface interface {
	AdminTransition(ctx context.Context, id string, status store.ServiceStatus, providerID, changedBy, note string) (*store.ServiceRequest, error)
	GetRequest(ctx context.Context, referenceNumber string) (*store.ServiceRequest, error)
	RequestHistory(ctx context.Context, id string) ([]store.StatusHistoryEntry, error)
}

// RequestHandler handles service request HTTP requests
type RequestHandler struct {
	requestService RequestServiceInterface
	validate       *validator.Validate
}

// NewRequestHandler creates a new service request handler
func NewRequestHandler(requestService RequestServiceInterface, validate *validator.Validate) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		validate:       validate,
	}
}

// UpdateStatusRequest is the body of PATCH /v1/requests/{id}/status
type UpdateStatusRequest struct {
	Status     string `json:"status,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	ChangedBy  string `json:"changedBy" validate:"required"`
	Note       string `json:"note,omitempty"`
}

// UpdateStatus handles admin status changes and provider assignment
func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, "Missing request ID", nil)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	if req.Status == "" && req.ProviderID == "" {
		response.Error(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}

	status := store.ServiceStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		response.Error(w, http.StatusBadRequest, "Unknown service status", nil)
		return
	}

	updated, err := h.requestService.AdminTransition(ctx, id, status, req.ProviderID, req.ChangedBy, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidTransition):
			response.Error(w, http.StatusUnprocessableEntity, "Invalid status transition", err)
		case isNotFound(err):
			response.Error(w, http.StatusNotFound, "Service request not found", err)
		default:
			response.Error(w, http.StatusInternalServerError, "Status update failed", err)
		}
		return
	}

	response.Success(w, http.StatusOK, "Service request updated", updated)
}

// GetRequest handles lookups by reference number, history included
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	reference := chi.URLParam(r, "referenceNumber")
	if reference == "" {
		response.Error(w, http.StatusBadRequest, "Missing reference number", nil)
		return
	}

	req, err := h.requestService.GetRequest(ctx, reference)
	if err != nil {
		if isNotFound(err) {
			response.Error(w, http.StatusNotFound, "Service request not found", err)
			return
		}
		response.Error(w, http.StatusInternalServerError, "Lookup failed", err)
		return
	}

	history, err := h.requestService.RequestHistory(ctx, req.ID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Lookup failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Service request retrieved", map[string]any{
		"request": req,
		"history": history,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
