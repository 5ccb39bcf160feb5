// Package middleware provides HTTP middleware for applications embedding
// the lease client. The license guard keeps a leased seat alive for as
// long as the application serves traffic.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"liclease/internal/infrastructure"
	"liclease/internal/license"
)

// LeaseChecker is the part of the lease client the guard needs
type LeaseChecker interface {
	GetLicenseLocked(ctx context.Context) error
}

// LicenseGuard rejects requests while no valid license lease is held.
// Each request triggers a check; the single-admission gate inside the
// client keeps a request burst from stampeding the license server.
type LicenseGuard struct {
	checker LeaseChecker
	logger  *slog.Logger

	excludePaths    map[string]struct{}
	excludePrefixes []string
}

// NewLicenseGuard creates a guard around a lease client. Health and
// metrics endpoints are excluded by default so operability does not
// depend on license state.
func NewLicenseGuard(checker LeaseChecker, logger *slog.Logger) *LicenseGuard {
	return &LicenseGuard{
		checker: checker,
		logger:  logger.With(slog.String("component", "license_guard")),
		excludePaths: map[string]struct{}{
			"/healthz": {},
			"/metrics": {},
		},
	}
}

// Exclude adds paths (exact) or prefixes (trailing slash) that bypass
// the license check.
func (g *LicenseGuard) Exclude(paths ...string) *LicenseGuard {
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			g.excludePrefixes = append(g.excludePrefixes, p)
		} else {
			g.excludePaths[p] = struct{}{}
		}
	}
	return g
}

// Handler wraps next with the license check
func (g *LicenseGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := infrastructure.EnsureTraceID(r.Context())
		if err := g.checker.GetLicenseLocked(ctx); err != nil {
			g.logger.Warn("request rejected, no valid license lease",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			g.writeFailure(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *LicenseGuard) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// writeFailure maps license errors to HTTP status codes. Seat exhaustion
// is 503 (retryable), credential problems 401, everything else 403.
func (g *LicenseGuard) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusForbidden
	switch {
	case license.IsKind(err, license.KindMaxLicenseCountExceeded):
		status = http.StatusServiceUnavailable
	case license.IsKind(err, license.KindInvalidCredentials):
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}
