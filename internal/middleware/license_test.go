package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"liclease/internal/license"
)

type stubChecker struct {
	err   error
	calls int
}

func (s *stubChecker) GetLicenseLocked(context.Context) error {
	s.calls++
	return s.err
}

func serve(t *testing.T, guard *LicenseGuard, path string) *httptest.ResponseRecorder {
	t.Helper()
	handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGuardAllowsLicensedRequests(t *testing.T) {
	checker := &stubChecker{}
	guard := NewLicenseGuard(checker, slog.Default())

	rec := serve(t, guard, "/api/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, checker.calls)
}

func TestGuardRejectsWithoutLicense(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "seat exhaustion is retryable",
			err:        license.NewError(license.KindMaxLicenseCountExceeded, ""),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "bad credentials",
			err:        license.NewError(license.KindInvalidCredentials, ""),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "other license failures",
			err:        license.NewError(license.KindBadIntegrity, ""),
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewLicenseGuard(&stubChecker{err: tt.err}, slog.Default())
			rec := serve(t, guard, "/api/data")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGuardExclusions(t *testing.T) {
	checker := &stubChecker{err: license.NewError(license.KindGenericError, "down")}
	guard := NewLicenseGuard(checker, slog.Default()).Exclude("/login", "/static/")

	// Default exclusions.
	assert.Equal(t, http.StatusOK, serve(t, guard, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(t, guard, "/metrics").Code)

	// Added exact path and prefix.
	assert.Equal(t, http.StatusOK, serve(t, guard, "/login").Code)
	assert.Equal(t, http.StatusOK, serve(t, guard, "/static/app.css").Code)

	// Everything else is guarded.
	assert.Equal(t, http.StatusForbidden, serve(t, guard, "/api/data").Code)
	assert.Equal(t, 1, checker.calls)
}
