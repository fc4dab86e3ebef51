// Package api provides the HTTP server quickscope runs alongside a scan. It
// exposes Prometheus metrics, a health check and a WebSocket progress stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/quickscope/internal/api/handlers"
	"github.com/anstrom/quickscope/internal/api/middleware"
	"github.com/anstrom/quickscope/internal/logging"
	"github.com/anstrom/quickscope/internal/metrics"
	"github.com/anstrom/quickscope/internal/scanning"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 5 * time.Second
)

// Server represents the metrics and progress server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     Config
	metrics    *metrics.PrometheusMetrics
	hub        *apihandlers.ProgressHub
	logger     *logging.Logger
	startTime  time.Time
}

// Config holds API server configuration.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	CORSOrigins    []string      `yaml:"cors_origins" json:"cors_origins"`
	Version        string        `yaml:"-" json:"-"`
}

// DefaultConfig returns default API server configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:9464",
		ReadTimeout:    10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		CORSOrigins:    []string{"*"},
		Version:        "dev",
	}
}

// New creates a server that exposes pm. A nil pm gets a fresh registry.
func New(cfg Config, pm *metrics.PrometheusMetrics, logger *logging.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = defaults.MaxHeaderBytes
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if pm == nil {
		pm = metrics.NewPrometheusMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("api")

	s := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		metrics:   pm,
		hub:       apihandlers.NewProgressHub(logger),
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	// No WriteTimeout: the progress stream is long-lived and manages its own
	// write deadlines.
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	return s
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting API server", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		s.hub.Close()
		return err
	}
}

// Stop gracefully stops the server and disconnects progress clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Progress returns a progress callback that streams events to WebSocket
// clients, followed by next when it is non-nil.
func (s *Server) Progress(next scanning.ProgressFunc) scanning.ProgressFunc {
	return func(e scanning.Event) {
		s.hub.Publish(e)
		if next != nil {
			next(e)
		}
	}
}

// ScanFinished announces a finished scan to WebSocket clients.
func (s *Server) ScanFinished(summary *scanning.Summary) {
	if summary != nil {
		s.hub.PublishSummary(summary)
	}
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	s.router.Handle("/ws/progress", s.hub).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	})
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(s.config.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		))
	}
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status          string    `json:"status"`
	Version         string    `json:"version"`
	Timestamp       time.Time `json:"timestamp"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	ProgressClients int       `json:"progress_clients"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Version:         s.config.Version,
		Timestamp:       time.Now().UTC(),
		UptimeSeconds:   time.Since(s.startTime).Seconds(),
		ProgressClients: s.hub.Clients(),
	})
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "quickscope",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"metrics":  "/metrics",
			"health":   "/healthz",
			"progress": "/ws/progress",
		},
	})
}

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeError writes a standardized error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	s.logger.Debug("API error",
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"error", err)

	s.writeJSON(w, statusCode, ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
