package flow_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/flow"
	"github.com/noah-isme/split-checkout/internal/importer"
	"github.com/noah-isme/split-checkout/internal/session"
	"github.com/noah-isme/split-checkout/internal/syncer"
)

func newTestRouter(t *testing.T, cart commerce.Cart) *chi.Mux {
	t.Helper()
	return newTestRouterWith(t, cart, &stubBackend{cart: cart})
}

func newTestRouterWith(t *testing.T, cart commerce.Cart, backend *stubBackend) *chi.Mux {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	v := validator.New()
	svc := &flow.Service{
		Carts:         &stubCarts{cart: cart},
		Sessions:      session.NewStore(client, time.Hour),
		Sync:          &syncer.Service{Client: backend},
		Validate:      v,
		UploadEnabled: true,
	}
	handler := &flow.Handler{Svc: svc, Importer: importer.NewParser(v, 0)}

	r := chi.NewRouter()
	r.Route("/api/v1", handler.Routes)
	return r
}

func postJSON(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func startSession(t *testing.T, r http.Handler) string {
	t.Helper()
	rr := postJSON(t, r, "/api/v1/flows", `{"cartId":"cart-1"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func TestStartEndpointValidation(t *testing.T) {
	r := newTestRouter(t, singleCart())

	rr := postJSON(t, r, "/api/v1/flows", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(t, r, "/api/v1/flows", `{"cartId":"cart-1"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestGetUnknownSession(t *testing.T) {
	r := newTestRouter(t, singleCart())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "NOT_FOUND")
}

func TestCommandEndpoint(t *testing.T) {
	r := newTestRouter(t, singleCart())
	id := startSession(t, r)

	rr := postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"toggle-split","enter":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"allocate-item","destination":0,"lineItemId":"li-1","quantity":2}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// Allocating more than remains is a 422 with a stable code.
	rr = postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"allocate-item","destination":0,"lineItemId":"li-1","quantity":9}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "OVER_ALLOCATION")

	rr = postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"warp-drive"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "UNKNOWN_COMMAND")
}

func TestImportEndpoint(t *testing.T) {
	r := newTestRouter(t, singleCart())
	id := startSession(t, r)

	csv := "first_name,last_name,street,city,zip,country\nAda,Lovelace,Main St 1,Berlin,10115,de\nBad,Row,,,,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/"+id+"/import", bytes.NewReader([]byte(csv)))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Imported int `json:"imported"`
			Rejected []struct {
				Line int `json:"line"`
			} `json:"rejected"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Imported)
	require.Len(t, resp.Data.Rejected, 1)
	require.Equal(t, 3, resp.Data.Rejected[0].Line)
}

func TestSubmitEndpointNotSubmittable(t *testing.T) {
	r := newTestRouter(t, singleCart())
	id := startSession(t, r)

	rr := postJSON(t, r, "/api/v1/flows/"+id+"/submit", ``)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "NOT_SUBMITTABLE")
}

func TestSubmitEndpointVersionConflict(t *testing.T) {
	backend := &stubBackend{
		cart:     singleCart(),
		failWith: fmt.Errorf("%w: expected version 7", commerce.ErrVersionConflict),
	}
	r := newTestRouterWith(t, singleCart(), backend)
	id := startSession(t, r)

	rr := postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"set-single-shipping","address":{"country":"DE","city":"Berlin"}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// A stale-version rejection is the caller's conflict, not a gateway
	// failure, even though it surfaces mid-protocol.
	rr = postJSON(t, r, "/api/v1/flows/"+id+"/submit", ``)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "VERSION_CONFLICT")
	require.NotContains(t, rr.Body.String(), "SYNC_FAILED")
}

func TestSubmitEndpointSingle(t *testing.T) {
	r := newTestRouter(t, singleCart())
	id := startSession(t, r)

	rr := postJSON(t, r, "/api/v1/flows/"+id+"/commands", `{"type":"set-single-shipping","address":{"country":"DE","city":"Berlin"}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, r, "/api/v1/flows/"+id+"/submit", ``)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"submitted":true`)
}
