package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nao1215/piiscrub/internal/detect"
	"github.com/nao1215/piiscrub/internal/metrics"
	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/pipeline"
)

const (
	// DefaultMaxBodySize limits request bodies.
	DefaultMaxBodySize = 1 << 20

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// TicketStore holds the active ticket id.
type TicketStore interface {
	Get() (int64, bool)
	Replace(id int64) int64
}

// Server is the piiscrub HTTP app.
type Server struct {
	runner      *pipeline.Runner
	store       TicketStore
	detectOpts  detect.Options
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxBodySize int64

	// mu guards last, the most recent detect report. Its Rendered string
	// is the default input of /redact while its ticket is still active.
	mu   sync.RWMutex
	last *model.ScrubReport
}

// Option configures a Server.
type Option func(*Server)

// WithDetectOptions sets the default detection options of /detect.
func WithDetectOptions(opts detect.Options) Option {
	return func(s *Server) {
		s.detectOpts = opts
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBodySize limits request bodies to n bytes.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// New creates a server running workflows on runner and keeping the active
// ticket id in store.
func New(runner *pipeline.Runner, store TicketStore, opts ...Option) *Server {
	s := &Server{
		runner:      runner,
		store:       store,
		detectOpts:  detect.DefaultOptions(),
		logger:      slog.Default(),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler of the app.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	for _, path := range []string{"/update-ticket-id", "/replace-ticket-id"} {
		r.Put(path, s.handleTicketID)
		r.Post(path, s.handleTicketID)
	}
	r.Post("/detect", s.handleDetect)
	r.Post("/redact", s.handleRedact)
	r.Get("/entities", s.handleEntities)
	r.Get("/sidebar", s.handleSidebar)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// ListenAndServe serves the app on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// currentReport returns the most recent detect report when it belongs to
// the active ticket, or nil.
func (s *Server) currentReport() *model.ScrubReport {
	id, ok := s.store.Get()
	if !ok {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil || s.last.TicketID != id {
		return nil
	}
	return s.last
}

func (s *Server) setLastReport(r *model.ScrubReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
}

// runStarted and runFinished track in-progress runs when metrics are on.
func (s *Server) runStarted() {
	if s.metrics != nil {
		s.metrics.RunStarted()
	}
}

func (s *Server) runFinished() {
	if s.metrics != nil {
		s.metrics.RunFinished()
	}
}
