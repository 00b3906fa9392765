package flow

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/common"
	"github.com/noah-isme/split-checkout/internal/importer"
	"github.com/noah-isme/split-checkout/internal/ledger"
	"github.com/noah-isme/split-checkout/internal/obs"
	"github.com/noah-isme/split-checkout/internal/registry"
	"github.com/noah-isme/split-checkout/internal/session"
	"github.com/noah-isme/split-checkout/internal/syncer"
	"github.com/noah-isme/split-checkout/internal/wizard"
)

const maxImportBody = 1 << 20

// Handler wires the flow service to HTTP.
type Handler struct {
	Svc      *Service
	Importer *importer.Parser
}

// Routes mounts the flow endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/flows", h.Start)
	r.Get("/flows/{id}", h.Get)
	r.Post("/flows/{id}/commands", h.Dispatch)
	r.Post("/flows/{id}/import", h.Import)
	r.Post("/flows/{id}/submit", h.Submit)
}

// Start creates a session for the given cart.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "flow service not configured", nil)
		return
	}
	var payload struct {
		CartID string `json:"cartId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	cartID := strings.TrimSpace(payload.CartID)
	if cartID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cartId is required", nil)
		return
	}
	st, err := h.Svc.Start(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": st})
}

// Get returns the current session state.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

// Dispatch applies one command to the session.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read request body", nil)
		return
	}
	cmd, err := DecodeCommand(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.Svc.Dispatch(r.Context(), chi.URLParam(r, "id"), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

// Import parses an uploaded address CSV and merges the valid rows into
// the session's destination list. Rejected rows are reported, not fatal.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if h.Importer == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "address upload is disabled", nil)
		return
	}
	result, err := h.Importer.Parse(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if obs.ImportRowsTotal != nil {
		obs.ImportRowsTotal.WithLabelValues("ok").Add(float64(len(result.Addresses)))
		obs.ImportRowsTotal.WithLabelValues("rejected").Add(float64(len(result.Rejected)))
	}
	st, err := h.Svc.Dispatch(r.Context(), chi.URLParam(r, "id"), &ImportAddresses{Addresses: result.Addresses})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"state":    st,
		"imported": len(result.Addresses),
		"rejected": result.Rejected,
	}})
}

// Submit publishes the session's allocation to the commerce backend.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.RenderError(w, h.appError(err))
}

// appError maps domain sentinels onto the stable API error codes. A
// version conflict is classified before the step tag: the syncer wraps
// every backend failure in a StepError, but a stale-version 409 is the
// caller's conflict, not a gateway fault.
func (h *Handler) appError(err error) error {
	var stepErr *syncer.StepError
	var backendErr *commerce.BackendError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "session not found", http.StatusNotFound, err)
	case errors.Is(err, commerce.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "cart not found", http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrInsufficientRemaining):
		return common.NewAppError("OVER_ALLOCATION", "allocation exceeds remaining quantity", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ledger.ErrUnknownLineItem):
		return common.NewAppError("UNKNOWN_LINE_ITEM", "line item is not part of the cart", http.StatusBadRequest, err)
	case errors.Is(err, registry.ErrDestinationNotFound):
		return common.NewAppError("UNKNOWN_DESTINATION", "destination does not exist", http.StatusBadRequest, err)
	case errors.Is(err, registry.ErrNegativeQuantity):
		return common.NewAppError("NEGATIVE_QUANTITY", "quantity must not be negative", http.StatusBadRequest, err)
	case errors.Is(err, wizard.ErrInvalidTransition):
		return common.NewAppError("INVALID_STEP", "step transition not allowed", http.StatusBadRequest, err)
	case errors.Is(err, ErrUnknownCommand):
		return common.NewAppError("UNKNOWN_COMMAND", "unrecognised command type", http.StatusBadRequest, err)
	case errors.Is(err, ErrInvalidAddress):
		return common.NewAppError("INVALID_ADDRESS", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrMissingCountry), errors.Is(err, ErrNotSubmittable), errors.Is(err, syncer.ErrNothingToSubmit), errors.Is(err, syncer.ErrMissingShippingAddress):
		return common.NewAppError("NOT_SUBMITTABLE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrSubmitInFlight):
		return common.NewAppError("SUBMIT_IN_FLIGHT", "a submission for this session is already running", http.StatusConflict, err)
	case errors.Is(err, commerce.ErrVersionConflict):
		return common.NewAppError("VERSION_CONFLICT", "cart changed concurrently", http.StatusConflict, err)
	case errors.As(err, &stepErr):
		return &common.AppError{
			Code:       "SYNC_FAILED",
			Message:    "backend update failed",
			HTTPStatus: http.StatusBadGateway,
			Err:        err,
			Details:    map[string]any{"step": stepErr.Step},
		}
	case errors.As(err, &backendErr):
		return &common.AppError{
			Code:       "BACKEND_ERROR",
			Message:    "commerce backend rejected the request",
			HTTPStatus: http.StatusBadGateway,
			Err:        err,
			Details:    map[string]any{"status": backendErr.Status},
		}
	case errors.Is(err, importer.ErrEmptyFile), errors.Is(err, importer.ErrMissingHeader):
		return common.NewAppError("INVALID_CSV", err.Error(), http.StatusBadRequest, err)
	default:
		return err
	}
}
