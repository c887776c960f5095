package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fara-hq/governor/pkg/config"
	"fara-hq/governor/pkg/events"
	"fara-hq/governor/pkg/governor"
	"fara-hq/governor/pkg/policy"
	"fara-hq/governor/pkg/server/middleware"
	"fara-hq/governor/pkg/telemetry/health"
	"fara-hq/governor/pkg/telemetry/metrics"
)

// Server is the governor's HTTP front end.
type Server struct {
	config      *config.Config
	coordinator *governor.Coordinator
	engine      *policy.Engine
	bus         *events.Bus
	collector   *metrics.Collector
	checker     *health.Checker
	logger      *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New assembles a server. collector and checker may be nil; the
// corresponding endpoints degrade gracefully.
func New(cfg *config.Config, coord *governor.Coordinator, engine *policy.Engine, bus *events.Bus, collector *metrics.Collector, checker *health.Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = health.New(0)
	}
	s := &Server{
		config:      cfg,
		coordinator: coord,
		engine:      engine,
		bus:         bus,
		collector:   collector,
		checker:     checker,
		logger:      logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}
	return s
}

// Handler builds the full routed and middleware-wrapped handler. Exposed
// separately from Start so tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /health", s.checker.LivenessHandler())
	mux.Handle("GET /ready", s.checker.ReadinessHandler())
	if s.collector != nil {
		path := s.config.Telemetry.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.collector.Handler())
	}

	mux.HandleFunc("POST /v1/actions", s.handleSubmit)
	mux.HandleFunc("GET /v1/actions", s.handleList)
	mux.HandleFunc("GET /v1/actions/{id}", s.handleGet)
	mux.HandleFunc("POST /v1/actions/{id}/approval", s.handleApproval)
	mux.HandleFunc("POST /v1/actions/{id}/start", s.handleStart)
	mux.HandleFunc("POST /v1/actions/{id}/result", s.handleResult)
	mux.HandleFunc("POST /v1/actions/{id}/replay", s.handleReplay)
	mux.HandleFunc("GET /v1/actions/{id}/events", s.handleActionEvents)

	mux.HandleFunc("GET /v1/events", s.handleEventStream)

	mux.HandleFunc("GET /v1/policy/info", s.handlePolicyInfo)
	mux.HandleFunc("POST /v1/policy/eval", s.handlePolicyEval)

	var h http.Handler = mux
	if s.collector != nil {
		h = s.metricsMiddleware(h)
	}
	h = middleware.Auth(s.config.API.AuthToken)(h)
	if s.config.API.EnableCORS {
		h = middleware.CORS(middleware.DefaultCORSConfig())(h)
	}
	h = middleware.Logging(s.logger)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(s.logger)(h)
	return h
}

// Start begins serving and blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening",
			"addr", s.httpServer.Addr,
			"auth", s.config.API.AuthToken != "",
			"cors", s.config.API.EnableCORS,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting connections and drains in-flight requests.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down http server")
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// metricsMiddleware records request counts and latency. Paths are
// normalized so per-action URLs collapse into one label value.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// normalizePath replaces UUID path segments with {id} to keep metric
// cardinality bounded.
func normalizePath(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}

// handleIndex describes the service for anyone probing the root.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	base := s.config.API.Base
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", s.config.API.Host, s.config.API.Port)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":        "fara-governor",
		"base_url":       base,
		"policy_version": s.coordinator.PolicyVersion(),
		"endpoints": []string{
			"/v1/actions",
			"/v1/events",
			"/v1/policy/info",
			"/health",
			"/ready",
		},
	})
}
