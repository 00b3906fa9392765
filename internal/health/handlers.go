package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// ready gates readiness during startup and graceful shutdown.
var ready atomic.Bool

// SetReady flips the readiness gate. The server calls it once startup
// wiring is done and again, with false, when shutdown begins so the load
// balancer drains the instance before in-flight requests are cut off.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingBackend(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	RedisTimeout   time.Duration
	BackendTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on the gate and dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() || h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	backendStatus := "ok"
	if err := h.Checker.PingBackend(ctx, h.backendTimeout()); err != nil {
		backendStatus = err.Error()
	}
	status := map[string]string{
		"redis":   redisStatus,
		"backend": backendStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if redisStatus != "ok" || backendStatus != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}

func (h Handler) backendTimeout() time.Duration {
	if h.BackendTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.BackendTimeout
}
