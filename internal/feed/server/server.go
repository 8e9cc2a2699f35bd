// Package server wires the feed daemon together and exposes its local API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/feedpulse/feedpulse/internal/feed/adapters/http/handlers"
	"github.com/feedpulse/feedpulse/internal/feed/adapters/ws"
	"github.com/feedpulse/feedpulse/internal/feed/app/service"
	"github.com/feedpulse/feedpulse/internal/feed/store"
	"github.com/feedpulse/feedpulse/internal/feed/stream"
	"github.com/feedpulse/feedpulse/internal/platform/config"
	"github.com/feedpulse/feedpulse/internal/platform/logger"
	"github.com/feedpulse/feedpulse/internal/platform/metrics"
	"github.com/feedpulse/feedpulse/internal/platform/telemetry"
	"github.com/feedpulse/feedpulse/pkg/api"
)

// Server represents the feed daemon
type Server struct {
	config     *config.Config
	logger     logger.Logger
	metrics    *metrics.Metrics
	telemetry  *telemetry.Telemetry
	httpServer *http.Server

	cursors     store.CursorStore
	manager     *stream.Manager
	hub         *ws.Hub
	feedService *service.FeedService
	sweeper     *cron.Cron
}

// Option is a server configuration option
type Option func(*Server)

// WithConfig sets the server config
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithLogger sets the server logger
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// WithMetrics sets the server metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTelemetry sets the server telemetry
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.telemetry = t
	}
}

// New creates a new server instance
func New(opts ...Option) (*Server, error) {
	s := &Server{}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.NewNop()
	}

	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return s, nil
}

func (s *Server) initialize() error {
	// Resume-cursor store (Redis optional)
	s.cursors = store.NewMemoryCursorStore()
	if s.config.Redis.Enabled() {
		redisCursors, err := store.NewRedisCursorStore(s.config.Redis)
		if err != nil {
			s.logger.Warn("Failed to initialize Redis cursor store, cursors will not survive restarts", "error", err)
		} else {
			s.cursors = redisCursors
		}
	}

	// Backend API client
	clientOpts := []api.ClientOption{
		api.WithHTTPClient(&http.Client{Timeout: s.config.API.Timeout}),
	}
	if s.config.API.Token != "" {
		clientOpts = append(clientOpts, api.WithToken(s.config.API.Token))
	}
	if s.config.API.SessionName != "" {
		clientOpts = append(clientOpts, api.WithSessionCookie(&http.Cookie{
			Name:  s.config.API.SessionName,
			Value: s.config.API.SessionValue,
		}))
	}
	if s.metrics != nil {
		clientOpts = append(clientOpts, api.WithMetrics(s.metrics))
	}
	if s.telemetry != nil {
		clientOpts = append(clientOpts, api.WithTracer(s.telemetry.Tracer()))
	}
	client := api.NewClient(s.config.API.BaseURL, clientOpts...)

	// Stream connection, carrying the same credentials as the API client
	header := http.Header{}
	if s.config.API.Token != "" {
		header.Set("Authorization", "Bearer "+s.config.API.Token)
	}
	if s.config.API.SessionName != "" {
		cookie := http.Cookie{Name: s.config.API.SessionName, Value: s.config.API.SessionValue}
		header.Set("Cookie", cookie.String())
	}
	s.manager = stream.NewManager(stream.Config{
		URL:                  s.config.Stream.URL,
		ReconnectInterval:    s.config.Stream.ReconnectInterval,
		MaxReconnectAttempts: s.config.Stream.MaxReconnectAttempts,
		Header:               header,
		Resume: func() string {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			id, err := s.cursors.Load(ctx, s.config.Service.Name)
			if err != nil {
				s.logger.Warn("Failed to load stream cursor", "error", err)
				return ""
			}
			return id
		},
	}, s.logger)

	// Local rebroadcast hub
	s.hub = ws.NewHub(s.logger)

	s.feedService = service.NewFeedService(service.Deps{
		API:          client.Notifications,
		Manager:      s.manager,
		Cursors:      s.cursors,
		Publisher:    s.hub,
		Logger:       s.logger,
		Metrics:      s.metrics,
		Subscription: s.config.Service.Name,
		PageSize:     s.config.API.PageSize,
	})

	// Periodic expiry sweep
	s.sweeper = cron.New()
	if _, err := s.sweeper.AddFunc("@every 1m", func() {
		s.feedService.PruneExpired()
	}); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	s.setupHTTPServer()

	return nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)

	router.HandleFunc("/health/live", s.handleLiveness).Methods("GET")
	router.HandleFunc("/health/ready", s.handleReadiness).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	router.Handle("/ws", s.hub)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	feedHandler := handlers.NewFeedHandler(s.feedService, s.logger)
	feedHandler.RegisterRoutes(apiRouter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

// Start opens the stream subscription and serves the local API. Blocks until
// the HTTP server stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.feedService.Subscribe()
	s.sweeper.Start()

	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the daemon
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	sweepCtx := s.sweeper.Stop()
	select {
	case <-sweepCtx.Done():
	case <-ctx.Done():
	}

	s.feedService.Close()
	s.hub.Stop()

	if closer, ok := s.cursors.(*store.RedisCursorStore); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Cursor store close error", "error", err)
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", "error", err)
		}
	}

	return nil
}

// Health check handlers
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"alive"}`)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	state := s.feedService.StreamState()
	if state == stream.StateExhausted {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not ready","stream":"%s"}`, state)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","stream":"%s"}`, state)
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug("HTTP request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":"internal server error"}`)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
