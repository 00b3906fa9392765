package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a circuit breaker, per-attempt
// timeouts and retry for idempotent requests. Non-idempotent requests run
// exactly once: the commerce backend advances its version counter on every
// write, so a blind retry of a mutation that actually landed would be
// rejected as a version conflict anyway.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes the request. GET and HEAD requests are retried up to
// MaxAttempts with exponential backoff; everything else gets one attempt.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	attempts := cl.MaxAttempts
	if attempts <= 0 || !idempotent(req.Method) {
		attempts = 1
	}
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			if lastErr == nil {
				lastErr = ErrOpenCircuit
			}
			break
		}
		resp, err := cl.doOnce(ctx, req, body)
		ok := err == nil && resp.StatusCode < http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, ok)
		}
		if ok {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(resp.Status)
			_ = resp.Body.Close()
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(base, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	client := cl.Client
	if cl.Timeout > 0 {
		// Client.Timeout covers the body read too, unlike a context
		// deadline cancelled on return.
		copied := *cl.Client
		copied.Timeout = cl.Timeout
		client = &copied
	}
	attempt := req.Clone(ctx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
		attempt.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return client.Do(attempt)
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}
