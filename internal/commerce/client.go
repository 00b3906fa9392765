package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/split-checkout/internal/resilience"
)

// ErrNotFound indicates the requested resource does not exist on the backend.
var ErrNotFound = errors.New("commerce: not found")

// ErrVersionConflict indicates a write was issued against a stale cart version.
var ErrVersionConflict = errors.New("commerce: version conflict")

// BackendError carries the status and message of a non-success backend response.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("commerce: backend returned %d: %s", e.Status, e.Message)
}

// Client talks to the commerce backend proxy. Every mutating call takes
// the cart version explicitly and returns the server's replacement cart;
// the caller threads the returned version into the next call.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    resilience.HTTPClient
	Log     zerolog.Logger
}

// NewClient constructs a backend client with the given base URL and
// transport. A nil transport falls back to http.DefaultTransport.
func NewClient(baseURL, apiKey string, transport http.RoundTripper, timeout time.Duration) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: transport},
			Breaker:     resilience.NewBreaker(5, 15*time.Second).WithTarget("commerce"),
			MaxAttempts: 3,
			BaseBackoff: 150 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

// GetCart fetches the current cart snapshot.
func (c *Client) GetCart(ctx context.Context, cartID string) (Cart, error) {
	var cart Cart
	err := c.call(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil, &cart)
	return cart, err
}

// SetShippingAddress replaces the cart-level shipping address.
func (c *Client) SetShippingAddress(ctx context.Context, cartID string, version int64, address Address) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "address": address}
	err := c.call(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/set-shipping-address", body, &cart)
	return cart, err
}

// SetBillingAddress replaces the cart-level billing address.
func (c *Client) SetBillingAddress(ctx context.Context, cartID string, version int64, address Address) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "address": address}
	err := c.call(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/set-billing-address", body, &cart)
	return cart, err
}

// AddItemShippingAddresses registers destination addresses on the cart.
func (c *Client) AddItemShippingAddresses(ctx context.Context, cartID string, version int64, addresses []Address) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "addresses": addresses}
	err := c.call(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/add-item-shipping-addresses", body, &cart)
	return cart, err
}

// UpdateItemShippingAddresses edits already-registered destination
// addresses; used for comment and metadata changes only.
func (c *Client) UpdateItemShippingAddresses(ctx context.Context, cartID string, version int64, addresses []Address) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "addresses": addresses}
	err := c.call(ctx, http.MethodPut, "/carts/"+url.PathEscape(cartID)+"/update-item-shipping-addresses", body, &cart)
	return cart, err
}

// AddShippingMethods attaches delivery methods to destinations in one call.
func (c *Client) AddShippingMethods(ctx context.Context, cartID string, version int64, methods []MethodAssignment) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "methods": methods}
	err := c.call(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/add-shipping-methods", body, &cart)
	return cart, err
}

// SetShippingMethod attaches a single delivery method keyed to the
// cart-level shipping address.
func (c *Client) SetShippingMethod(ctx context.Context, cartID string, version int64, assignment MethodAssignment) (Cart, error) {
	var cart Cart
	body := map[string]any{
		"version":          version,
		"shippingAddress":  assignment.ShippingAddress,
		"shippingKey":      assignment.ShippingKey,
		"shippingMethodId": assignment.ShippingMethodID,
	}
	err := c.call(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/set-shipping-method", body, &cart)
	return cart, err
}

// SetLineItemShippingTargets replaces the per-address shipping targets of
// one line item.
func (c *Client) SetLineItemShippingTargets(ctx context.Context, cartID string, version int64, lineItemID string, targets []ShippingTarget) (Cart, error) {
	var cart Cart
	body := map[string]any{"version": version, "targets": targets}
	path := "/carts/" + url.PathEscape(cartID) + "/line-items/" + url.PathEscape(lineItemID) + "/shipping-addresses"
	err := c.call(ctx, http.MethodPost, path, body, &cart)
	return cart, err
}

// ShippingMethods lists the delivery options offered by the backend.
func (c *Client) ShippingMethods(ctx context.Context) ([]ShippingMethod, error) {
	var methods []ShippingMethod
	err := c.call(ctx, http.MethodGet, "/shipping-methods", nil, &methods)
	return methods, err
}

// ProjectSettings fetches project-level reference data (countries etc).
func (c *Client) ProjectSettings(ctx context.Context) (ProjectSettings, error) {
	var settings ProjectSettings
	err := c.call(ctx, http.MethodGet, "/get-project-settings", nil, &settings)
	return settings, err
}

// AccountAddresses lists the saved addresses of an account.
func (c *Client) AccountAddresses(ctx context.Context, accountID string) ([]Address, error) {
	var addresses []Address
	err := c.call(ctx, http.MethodGet, "/account/"+url.PathEscape(accountID)+"/addresses", nil, &addresses)
	return addresses, err
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("commerce: client not configured")
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("commerce: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("commerce: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("commerce: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.Log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("commerce_call")

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("commerce: decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(data))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		message = payload.Message
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrVersionConflict, message)
	}
	return &BackendError{Status: resp.StatusCode, Message: message}
}
