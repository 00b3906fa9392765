package commerce_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *commerce.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return commerce.NewClient(srv.URL, "test-key", nil, 5*time.Second)
}

func TestGetCart(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/carts/cart-1", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(commerce.Cart{ID: "cart-1", Version: 7})
	})

	cart, err := client.GetCart(context.Background(), "cart-1")
	require.NoError(t, err)
	require.Equal(t, "cart-1", cart.ID)
	require.Equal(t, int64(7), cart.Version)
}

func TestSetShippingAddressSendsVersion(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/carts/cart-1/set-shipping-address", r.URL.Path)
		var body struct {
			Version int64            `json:"version"`
			Address commerce.Address `json:"address"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, int64(7), body.Version)
		require.Equal(t, "DE", body.Address.Country)
		_ = json.NewEncoder(w).Encode(commerce.Cart{ID: "cart-1", Version: 8})
	})

	cart, err := client.SetShippingAddress(context.Background(), "cart-1", 7, commerce.Address{Country: "DE"})
	require.NoError(t, err)
	require.Equal(t, int64(8), cart.Version)
}

func TestVersionConflict(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "version outdated"})
	})

	_, err := client.SetShippingAddress(context.Background(), "cart-1", 6, commerce.Address{Country: "DE"})
	require.ErrorIs(t, err, commerce.ErrVersionConflict)
	require.ErrorContains(t, err, "version outdated")
}

func TestCartNotFound(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetCart(context.Background(), "missing")
	require.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestBackendErrorCarriesStatus(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "quantity exceeds stock"})
	})

	_, err := client.SetLineItemShippingTargets(context.Background(), "cart-1", 7, "li-1", nil)
	var backendErr *commerce.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusBadRequest, backendErr.Status)
	require.Contains(t, backendErr.Message, "quantity exceeds stock")
}

func TestProjectSettings(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get-project-settings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(commerce.ProjectSettings{Countries: []string{"DE", "FR"}})
	})

	settings, err := client.ProjectSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"DE", "FR"}, settings.Countries)
}
