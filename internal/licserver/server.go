package licserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"liclease/internal/config"
	"liclease/internal/infrastructure"
	"liclease/internal/license"
)

// errorCodeHeader carries the machine-readable error kind on failures
const errorCodeHeader = "x-license-error-code"

// Server exposes the lease protocol over HTTP: POST /license/create,
// /license/renew and /license/release, plus health and metrics
// endpoints. Token responses are text/plain, matching what the client
// expects.
type Server struct {
	cfg    config.ServerConfig
	issuer *Issuer
	logger *slog.Logger

	// credentials maps username to password; empty means no auth required
	credentials map[string]string

	limiter *rate.Limiter
	metrics http.Handler

	httpSrv *http.Server
}

// Option customizes server construction
type Option func(*Server)

// WithCredentials enables HTTP Basic authentication. Requests without a
// matching username/password pair fail with INVALID_CREDENTIALS.
func WithCredentials(creds map[string]string) Option {
	return func(s *Server) {
		s.credentials = creds
	}
}

// WithMetricsHandler mounts a handler (typically the Prometheus
// exporter) at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a license server around an issuer
func New(cfg config.ServerConfig, issuer *Issuer, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		issuer: issuer,
		logger: logger.With(slog.String("component", "license_server")),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router for the server
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/license", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Post("/create", s.handleCreate)
		r.Post("/renew", s.handleRenew)
		r.Post("/release", s.handleRelease)
	})

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// ListenAndServe runs the server until ctx is canceled, then drains
// connections within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	s.logger.Info("license server listening", slog.Int("port", s.cfg.Port))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	holder, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	product := r.URL.Query().Get("product")
	token, err := s.issuer.Consume(product, holder)
	if err != nil {
		s.writeError(w, r, "create", product, err)
		return
	}

	s.logOp(r, "create", product, holder)
	s.writeToken(w, token)
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	holder, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	product := r.URL.Query().Get("product")
	token, err := s.issuer.Renew(product, holder)
	if err != nil {
		s.writeError(w, r, "renew", product, err)
		return
	}

	s.logOp(r, "renew", product, holder)
	s.writeToken(w, token)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	holder, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	product := r.URL.Query().Get("product")
	s.issuer.Release(product, holder)
	s.logOp(r, "release", product, holder)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// authenticate resolves the holder identity for seat accounting. With
// credentials configured it is the authenticated username; otherwise the
// client's remote IP.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if len(s.credentials) == 0 {
		return r.RemoteAddr, true
	}

	user, pass, ok := r.BasicAuth()
	if !ok || s.credentials[user] != pass {
		s.logger.Warn("authentication failed",
			slog.String("user", user),
			slog.String("remote", r.RemoteAddr),
		)
		w.Header().Set(errorCodeHeader, string(license.KindInvalidCredentials))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return "", false
	}
	return user, true
}

// writeToken sends an issued token as the plain-text response body
func (s *Server) writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(token))
}

// writeError maps issuer errors onto the wire: the error kind goes in
// the x-license-error-code header, the detail in the body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op, product string, err error) {
	status := http.StatusInternalServerError
	kind := license.KindGenericError

	var licErr *license.Error
	if errors.As(err, &licErr) {
		kind = licErr.Kind
		if kind == license.KindMaxLicenseCountExceeded {
			status = http.StatusConflict
		}
	}

	s.logger.Warn("lease operation rejected",
		slog.String("operation", op),
		slog.String("product", product),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)

	w.Header().Set(errorCodeHeader, string(kind))
	http.Error(w, err.Error(), status)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set(errorCodeHeader, string(license.KindGenericError))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logOp(r *http.Request, op, product, holder string) {
	logger := infrastructure.LoggerWithContext(r.Context())
	logger.Info("lease operation",
		slog.String("component", "license_server"),
		slog.String("operation", op),
		slog.String("product", product),
		slog.String("holder", holder),
		slog.Int("occupied", s.issuer.Occupied(product)),
	)
}
