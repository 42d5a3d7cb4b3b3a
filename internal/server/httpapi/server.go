// Package httpapi exposes the authentication flows over HTTP. It is a
// thin adapter: request decoding, identity middleware, and error
// mapping live here, every decision lives in the services.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/services"
)

type Server struct {
	address   string
	config    *config.Config
	auth      *services.AuthService
	sessions  *services.SessionManager
	csrf      *services.CsrfGuard
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer wires the adapter over the orchestrator and its session
// collaborators.
func NewServer(cfg *config.Config, auth *services.AuthService, sessions *services.SessionManager,
	csrf *services.CsrfGuard, logger logging.Logger) *Server {
	return &Server{
		address:   cfg.EndpointAddr,
		config:    cfg,
		auth:      auth,
		sessions:  sessions,
		csrf:      csrf,
		logger:    logger.With("module", "http_server"),
		jwtSecret: []byte(cfg.SecretKey),
	}
}

// Router builds the route table. Split out from Run so tests can drive
// the handlers through httptest without a listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/auth/request", s.handleRequestLink).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", s.handleVerifyLink).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/auth/captcha", s.handleSolveCaptcha).Methods(http.MethodPost)

	authed := r.PathPrefix("/api/sessions").Subrouter()
	authed.Use(s.sessionMiddleware)
	authed.HandleFunc("", s.handleListSessions).Methods(http.MethodGet)
	authed.Handle("/logout", s.csrfMiddleware(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	authed.Handle("/logout_all", s.csrfMiddleware(http.HandlerFunc(s.handleLogoutAll))).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
