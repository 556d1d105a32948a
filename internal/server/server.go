package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/imgmux/internal/metrics"
	"github.com/desertthunder/imgmux/internal/multiplex"
)

const shutdownTimeout = 10 * time.Second

// Opts configures a [Server].
type Opts struct {
	Addr       string
	Cache      multiplex.Cache
	Downloader multiplex.Downloader
	Logger     *log.Logger

	// Metrics may be nil to disable the /metrics endpoint and request
	// accounting, e.g. in tests.
	Metrics *metrics.Metrics
}

// Server runs resolution jobs over HTTP. Jobs share one cache and one
// downloader; each owns an independent resolver.
type Server struct {
	addr       string
	cache      multiplex.Cache
	downloader multiplex.Downloader
	logger     *log.Logger
	metrics    *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates a Server from opts.
func New(opts Opts) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Server{
		addr:       opts.Addr,
		cache:      opts.Cache,
		downloader: opts.Downloader,
		logger:     logger,
		metrics:    opts.Metrics,
		jobs:       make(map[string]*job),
	}
}

// Handler returns the route tree. Exposed so tests can drive the API with
// [net/http/httptest] without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			s.metrics.Handler(func() { s.metrics.SetActiveJobs(s.jobCount()) }).ServeHTTP(w, req)
		})
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Get("/image", s.handleImage)
			r.Get("/events", s.handleEvents)
			r.Delete("/", s.handleDeleteJob)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then drains connections and closes any
// jobs still resolving.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("server starting", "addr", s.addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.closeJobs()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// closeJobs cancels every remaining job, used during shutdown.
func (s *Server) closeJobs() {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	for _, j := range jobs {
		j.resolver.Close()
	}
}

// responseWriter captures the status code and size for request logging.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Unwrap lets [http.ResponseController] reach the underlying writer, so the
// SSE handler can flush through this middleware.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestLogger returns chi-compatible middleware logging each request with
// method, path, status, duration and response size.
func requestLogger(logger *log.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrap.status,
				"duration", time.Since(start).Round(time.Millisecond),
				"size", wrap.size,
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
