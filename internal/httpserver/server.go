package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"docshare/backend/internal/config"
	"docshare/backend/internal/metrics"
	authusecase "docshare/backend/internal/usecase/auth"
	userusecase "docshare/backend/internal/usecase/user"

	"go.uber.org/zap"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer  *http.Server
	router      *http.ServeMux
	authService *authusecase.Service
	userService *userusecase.Service
	metrics     *metrics.Metrics
	logger      *zap.Logger
	addr        string
}

// NewServer constructs a new Server with configured dependencies. The route
// table is fixed at construction.
func NewServer(cfg config.Config, authService *authusecase.Service, userService *userusecase.Service, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	mux := http.NewServeMux()
	addr := cfg.HTTPPort
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	handler := withRecover(withLogging(withCORS(mux, cfg.AllowedOrigins), logger), logger)

	srv := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		router:      mux,
		authService: authService,
		userService: userService,
		metrics:     m,
		logger:      logger,
		addr:        addr,
	}
	srv.registerRoutes()
	return srv
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l. Used by tests and socket activation.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
