package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/common"
	"github.com/noah-isme/split-checkout/internal/config"
	"github.com/noah-isme/split-checkout/internal/flow"
	"github.com/noah-isme/split-checkout/internal/health"
	"github.com/noah-isme/split-checkout/internal/importer"
	"github.com/noah-isme/split-checkout/internal/obs"
	"github.com/noah-isme/split-checkout/internal/ratelimit"
	"github.com/noah-isme/split-checkout/internal/refdata"
	"github.com/noah-isme/split-checkout/internal/security"
	"github.com/noah-isme/split-checkout/internal/session"
	"github.com/noah-isme/split-checkout/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "split-checkout",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	backend := commerce.NewClient(
		cfg.CommerceBaseURL,
		cfg.CommerceAPIKey,
		otelhttp.NewTransport(http.DefaultTransport),
		cfg.CommerceTimeout,
	)
	backend.Log = logger.With().Str("component", "commerce").Logger()

	validate := validator.New()
	sessions := session.NewStore(redisClient, cfg.SessionTTL)

	flowSvc := &flow.Service{
		Carts:         backend,
		Sessions:      sessions,
		Sync:          &syncer.Service{Client: backend, Log: logger.With().Str("component", "syncer").Logger()},
		Validate:      validate,
		UploadEnabled: cfg.CSVImportEnabled,
		SubmitLockTTL: cfg.SubmitLockTTL,
		Log:           logger.With().Str("component", "flow").Logger(),
	}
	flowHandler := &flow.Handler{Svc: flowSvc}
	if cfg.CSVImportEnabled {
		flowHandler.Importer = importer.NewParser(validate, cfg.CSVImportMaxRows)
	}

	refdataSvc := &refdata.Service{
		Backend: backend,
		Cache:   refdata.NewCache(redisClient, cfg.CacheTTL),
		Log:     logger.With().Str("component", "refdata").Logger(),
	}
	refdataHandler := &refdata.Handler{Svc: refdataSvc}

	idem := common.Idem{R: redisClient, TTL: cfg.IdemTTL}

	limiter, err := ratelimit.NewLimiter(redisClient, time.Minute, cfg.RateLimitPerMinute)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Key:     common.ClientIP,
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter store error")
		},
	}

	buckets := obs.ParseBucketsCSV(cfg.MetricsBuckets)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofToken))
	}

	healthHandler := health.Handler{
		Checker: readinessChecker{redis: redisClient, backend: backend},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimit.Middleware)
		v.Group(func(g chi.Router) {
			g.Use(idem.Middleware)
			flowHandler.Routes(g)
		})
		refdataHandler.Routes(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()
	health.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		health.SetReady(false)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis   *redis.Client
	backend *commerce.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	if c.backend == nil {
		return errors.New("backend not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.backend.ProjectSettings(ctx)
	return err
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, token string) http.Handler {
	token = strings.TrimSpace(token)
	if token == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get("Authorization"))
		got = strings.TrimPrefix(got, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
