// Package api exposes the authentication core over HTTP: JSON handlers for
// the credential and reset endpoints, plus the access-gate and role-gate
// middleware applied to protected routes.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avezhov/passport/internal/logging"
	"github.com/avezhov/passport/internal/server/config"
	"github.com/avezhov/passport/internal/server/models"
	"github.com/avezhov/passport/internal/server/users"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	address       string
	logger        logging.Logger
	users         *users.Service
	tokenValidity time.Duration
	cookieSecure  bool
}

func NewServer(cfg *config.Config, l logging.Logger, us *users.Service) *Server {
	return &Server{
		address:       cfg.EndpointAddr,
		logger:        l.With("module", "api"),
		users:         us,
		tokenValidity: cfg.TokenValidityDuration,
		cookieSecure:  strings.HasPrefix(cfg.PublicBaseURL, "https://"),
	}
}

// Router builds the route table. Split out from Run so tests can exercise the
// full middleware chain with httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/signup", s.signUp).Methods(http.MethodPost)
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", s.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/reset-password/{token}", s.resetPassword).Methods(http.MethodPatch)

	// Everything below runs behind the access gate.
	protected := r.NewRoute().Subrouter()
	protected.Use(s.protect)
	protected.HandleFunc("/update-password", s.updatePassword).Methods(http.MethodPatch)
	protected.HandleFunc("/me", s.me).Methods(http.MethodGet)
	protected.Handle("/users",
		s.restrictTo(models.RoleAdmin)(http.HandlerFunc(s.listUsers))).Methods(http.MethodGet)

	return r
}

func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
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
