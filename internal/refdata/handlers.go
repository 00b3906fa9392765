package refdata

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/split-checkout/internal/common"
)

// Handler wires reference data to HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the reference data endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/shipping-methods", h.ShippingMethods)
	r.Get("/countries", h.Countries)
	r.Get("/accounts/{id}/addresses", h.AccountAddresses)
}

// ShippingMethods lists the delivery methods offered by the backend.
func (h *Handler) ShippingMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Svc.ShippingMethods(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": methods})
}

// Countries lists the countries the project ships to.
func (h *Handler) Countries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.Svc.Countries(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": countries})
}

// AccountAddresses pages through a shopper's stored address book.
func (h *Handler) AccountAddresses(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(chi.URLParam(r, "id"))
	if accountID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "account id is required", nil)
		return
	}
	addresses, err := h.Svc.AccountAddresses(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 25)
	start := (page - 1) * perPage
	if start > len(addresses) {
		start = len(addresses)
	}
	end := start + perPage
	if end > len(addresses) {
		end = len(addresses)
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": addresses[start:end],
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: len(addresses),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.RenderError(w, &common.AppError{
		Code:       "BACKEND_ERROR",
		Message:    "unable to load reference data",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
		Details:    map[string]any{"error": err.Error()},
	})
}
