package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"finpay-ledger/internal/auth"
	"finpay-ledger/internal/config"
	"finpay-ledger/internal/domain"
	"finpay-ledger/internal/events"
	"finpay-ledger/internal/handler"
	"finpay-ledger/internal/repository"
	"finpay-ledger/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	db        *sql.DB
	publisher domain.EventPublisher
	logger    *slog.Logger
	port      string
	errCh     chan error
}

// NewServer connects to storage and the event bus and wires the API.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	authenticator, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	db, dialect, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := events.New(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize store (Unit of Work)
	store := repository.NewStore(db, dialect, logger)

	// Initialize services
	accountService := service.NewAccountService(store, logger)
	ledgerService := service.NewLedgerService(store, publisher, cfg, logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService, ledgerService)
	transactionHandler := handler.NewTransactionHandler(ledgerService)

	// Setup router
	router := mux.NewRouter()

	// Add middleware for logging
	router.Use(loggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	handler.RegisterRoutes(router, accountHandler, transactionHandler, authenticator)

	return &Server{
		router:    router,
		db:        db,
		publisher: publisher,
		logger:    logger,
		errCh:     make(chan error, 1),
	}, nil
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start listens on port and serves in the background. Port "0" picks a free
// port, which is returned.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed", "error", err)
			s.errCh <- err
		}
	}()

	return s.port, nil
}

// Err delivers the error that made the server stop serving unexpectedly.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Stop drains in-flight requests, then closes the event publisher and the
// database.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("Failed to close event publisher", "error", err)
		}
	}
	if s.db != nil {
		s.db.Close()
	}
	return shutdownErr
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewLogger returns the JSON stdout logger at the configured level, or a
// discarding logger when the server runs on an ephemeral test port.
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg.ServerPort == "0" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// StartServer builds and starts a server for cfg.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, string, error) {
	server, err := NewServer(ctx, cfg, NewLogger(cfg))
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(ctx)
		return nil, "", err
	}

	return server, port, nil
}
