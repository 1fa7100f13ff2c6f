// Package webui serves the dashboard: the JSON API over the page
// workspaces, the WebSocket push channel, the embedded browser assets and
// the optional password login.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"srdash/core"
	"srdash/enhance"
	"srdash/pages"
)

// AuthProvider guards the dashboard. auth.AuthMiddleware implements it; the
// interface keeps this package free of an import cycle.
type AuthProvider interface {
	// Middleware answers 401 for requests without a valid session.
	Middleware(next http.Handler) http.Handler
	// RedirectMiddleware sends browsers without a session to the login page.
	RedirectMiddleware(next http.Handler) http.Handler
	LoginHandler() http.HandlerFunc
	LogoutHandler() http.HandlerFunc
}

// Server is the dashboard HTTP server.
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	config      ServerConfig
	logger      *zap.Logger
	auth        AuthProvider
	loggingMw   *LoggingMiddleware
	api         *DashboardAPI
	broadcaster *WebSocketBroadcaster
	static      *StaticAssetHandler
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Host to bind to (default: "localhost")
	Host string
	// Port to listen on (default: 3000)
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	StaticConfig StaticAssetConfig
	LogSkipPaths []string

	// APIMiddleware wraps the /api routes only (optional). The WebSocket
	// route is long-lived and stays outside it.
	APIMiddleware func(http.Handler) http.Handler
}

// DefaultServerConfig returns the production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "localhost",
		Port:            3000,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		StaticConfig:    DefaultStaticAssetConfig(),
		LogSkipPaths:    []string{"/health", "/api/status"},
	}
}

// NewServer wires the API, the broadcaster and the static assets behind
// request logging. auth may be nil for an open dashboard.
func NewServer(config ServerConfig, api *DashboardAPI, broadcaster *WebSocketBroadcaster, auth AuthProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mux:         http.NewServeMux(),
		config:      config,
		logger:      logger.Named("webui"),
		auth:        auth,
		loggingMw:   NewLoggingMiddleware(LoggingMiddlewareConfig{Logger: logger, SkipPaths: config.LogSkipPaths}),
		api:         api,
		broadcaster: broadcaster,
		static:      NewStaticAssetHandler(config.StaticConfig),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.static.RegisterRoutes(s.mux)

	if s.auth != nil {
		s.mux.HandleFunc("/login", s.auth.LoginHandler())
		s.mux.HandleFunc("/logout", s.auth.LogoutHandler())
	}

	api := http.NewServeMux()
	s.api.RegisterRoutes(api)
	apiHandler := http.Handler(api)
	if s.config.APIMiddleware != nil {
		apiHandler = s.config.APIMiddleware(apiHandler)
	}
	s.mux.Handle("/api/", s.protect(apiHandler))
	s.mux.Handle("GET /ws", s.protect(http.HandlerFunc(s.broadcaster.HandleConnection)))

	dashboard := http.Handler(s.static.ServeDashboard())
	if s.auth != nil {
		dashboard = s.auth.RedirectMiddleware(dashboard)
	}
	s.mux.Handle("GET /{$}", dashboard)
	s.mux.Handle("GET /dashboard", dashboard)
}

func (s *Server) protect(h http.Handler) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMw.Handler(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the broadcaster and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.broadcaster.Start(ctx)

	s.logger.Info("dashboard listening",
		zap.String("addr", s.httpServer.Addr),
		zap.Bool("auth_enabled", s.auth != nil))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	s.logger.Info("dashboard stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// InitialState builds the on-connect message from the page manager and the
// backend probe. backend may be nil.
func InitialState(manager *pages.Manager, backend BackendStatusProvider) func() WSMessage {
	return func() WSMessage {
		data := InitialData{
			Version: core.Version,
			Pages:   manager.States(),
		}
		data.Backend.Status = enhance.StatusUnknown
		if backend != nil {
			data.Backend = backend.State()
		}
		return NewInitialMessage(data)
	}
}
