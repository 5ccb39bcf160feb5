package license

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liclease/internal/config"
)

// lease operation names, also the endpoint suffixes except for consume
const (
	opConsume = "consume"
	opRenew   = "renew"
	opRelease = "release"
)

// endpointFor maps an operation to its server endpoint suffix
func endpointFor(op string) string {
	if op == opConsume {
		return "create"
	}
	return op
}

// Client leases a concurrent-use license token from the license server
// and keeps it valid: consuming when no usable token is held, renewing
// ahead of expiry and re-verifying locally otherwise.
//
// The held token is owned exclusively by one Client instance. Ordering
// between a consume/renew write and a later read is guaranteed by the
// sequential execution of a single check (enforced by the Coordinator),
// not by a lock on the token itself.
type Client struct {
	cfg      config.LicenseConfig
	verifier *Verifier
	coord    *Coordinator

	httpClient *http.Client
	metrics    *Metrics
	hostLookup InterfaceLookup

	// token is the raw held lease token; empty means no lease is held
	token string
}

// NewClient creates a lease client. The verifier and coordinator are
// required collaborators; the HTTP client defaults to transport
// defaults with no extra deadline (callers wanting one wrap
// EnsureLicense in a context timeout).
func NewClient(cfg config.LicenseConfig, verifier *Verifier, coord *Coordinator) (*Client, error) {
	if verifier == nil {
		return nil, NewError(KindBadKey, "lease client requires a signature verifier")
	}
	if coord == nil {
		coord = NewCoordinator()
	}
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = 60 * time.Minute
	}

	return &Client{
		cfg:        cfg,
		verifier:   verifier,
		coord:      coord,
		httpClient: &http.Client{},
	}, nil
}

// SetMetrics attaches OpenTelemetry instruments to the client
func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

// SetHTTPClient overrides the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

// SetHostLookup overrides interface resolution for host-binding checks
func (c *Client) SetHostLookup(lookup InterfaceLookup) {
	c.hostLookup = lookup
}

// HeldToken returns the raw held token, empty when no lease is held
func (c *Client) HeldToken() string {
	return c.token
}

// SetHeldToken seeds the client with a previously obtained token, e.g.
// one persisted across process restarts. The token is not validated
// here; the next check classifies it.
func (c *Client) SetHeldToken(token string) {
	c.token = token
}

// GetLicenseLocked runs EnsureLicense behind the coordinator gate. When
// another check is already in flight the call returns nil immediately
// without verifying anything itself.
func (c *Client) GetLicenseLocked(ctx context.Context) error {
	ran := false
	err := c.coord.Do(ctx, func(ctx context.Context) error {
		ran = true
		return c.EnsureLicense(ctx)
	})
	if !ran {
		c.metrics.recordBystander(ctx)
		c.logDebug(ctx, "license_check", "License check already in flight, deferring to it")
	}
	return err
}

// EnsureLicense brings the held lease into a valid state: it consumes a
// fresh token when none is held (or the held one is corrupt or expired),
// renews when the token is close to expiry, and otherwise re-verifies
// the held token offline. Corrupt held tokens self-heal: they are
// discarded and replaced via consume rather than surfaced to the caller.
func (c *Client) EnsureLicense(ctx context.Context) error {
	now := time.Now()

	if c.token == "" {
		c.metrics.recordCheck(ctx, "no_token", nil)
		return c.consume(ctx)
	}

	tok, err := ParseToken(c.token)
	if err != nil {
		c.logWarn(ctx, "license_check", "Held license token is corrupt, discarding and consuming a fresh one",
			slog.String("token", maskToken(c.token)),
			slog.String("error", err.Error()),
		)
		c.metrics.recordCheck(ctx, "held_corrupt", nil)
		c.token = ""
		return c.consume(ctx)
	}

	if tok.IsExpired(now) {
		c.logInfo(ctx, "license_check", "Held license token is expired, consuming a fresh one",
			slog.Time("max_validity", time.UnixMilli(tok.Data.MaxValidity)),
		)
		c.metrics.recordCheck(ctx, "held_expired", nil)
		return c.consume(ctx)
	}

	if tok.NeedsRenewal(now, c.cfg.RenewalWindow) {
		c.logInfo(ctx, "license_check", "Held license token is close to expiry, renewing",
			slog.Time("max_validity", time.UnixMilli(tok.Data.MaxValidity)),
			slog.Duration("renewal_window", c.cfg.RenewalWindow),
		)
		c.metrics.recordCheck(ctx, "held_near_expiry", nil)
		return c.renew(ctx)
	}

	// Token looks healthy: re-check integrity and policy locally without
	// contacting the server.
	err = c.revalidate(ctx, tok, now)
	c.metrics.recordCheck(ctx, "held_valid", err)
	return err
}

// revalidate runs signature verification and the post-issue validators
// against an already-held token.
func (c *Client) revalidate(ctx context.Context, tok *Token, now time.Time) error {
	data, err := c.verifier.Verify(tok)
	if err != nil {
		c.logError(ctx, "license_check", "Held license token failed signature verification",
			slog.String("error", err.Error()),
		)
		return err
	}

	if err := CheckTimeRange(data, now); err != nil {
		return err
	}
	if err := CheckHost(data, c.hostLookup); err != nil {
		return err
	}

	c.logDebug(ctx, "license_check", "Held license token verified",
		slog.String("subject", data.Subject),
		slog.Bool("temporal", data.IsTemporal),
	)
	return nil
}

// Release explicitly surrenders the held lease. The held token is
// cleared on any 2xx response; its signature is permanently invalidated
// server-side.
func (c *Client) Release(ctx context.Context) error {
	return c.release(ctx)
}

// Shutdown is the best-effort cleanup path: it releases a held,
// unexpired lease and swallows every error. It must never block or fail
// process shutdown.
func (c *Client) Shutdown(ctx context.Context) {
	if c.token == "" {
		return
	}

	tok, err := ParseToken(c.token)
	if err != nil {
		c.logWarn(ctx, "license_shutdown", "Held token unparseable during shutdown, skipping release",
			slog.String("error", err.Error()),
		)
		return
	}
	if tok.IsExpired(time.Now()) {
		c.logDebug(ctx, "license_shutdown", "Held token already expired, nothing to release")
		return
	}

	if err := c.release(ctx); err != nil {
		c.logWarn(ctx, "license_shutdown", "Failed to release license during shutdown",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) consume(ctx context.Context) error {
	return c.leaseOperation(ctx, opConsume)
}

func (c *Client) renew(ctx context.Context) error {
	return c.leaseOperation(ctx, opRenew)
}

func (c *Client) release(ctx context.Context) error {
	return c.leaseOperation(ctx, opRelease)
}

// leaseOperation performs one consume/renew/release round-trip against
// the license server and applies its side effects on the held token.
func (c *Client) leaseOperation(ctx context.Context, op string) error {
	start := time.Now()
	err := c.doLeaseOperation(ctx, op)
	c.metrics.recordOperation(ctx, op, time.Since(start), err)
	return err
}

func (c *Client) doLeaseOperation(ctx context.Context, op string) error {
	req, err := c.newRequest(ctx, endpointFor(op))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors carry no structured license information;
		// propagate them unchanged.
		c.logError(ctx, "license_"+op, "License server request failed",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.serverFailure(ctx, op, resp, body)
	}

	if op == opRelease {
		c.token = ""
		c.logInfo(ctx, "license_release", "License released",
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	tokenStr := strings.TrimSpace(string(body))
	if tokenStr == "" {
		return NewError(KindIllegalContents, fmt.Sprintf(
			"license %s completed but license data is missing (HTTP %d %s)",
			op, resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	c.token = tokenStr
	c.logInfo(ctx, "license_"+op, "License token obtained",
		slog.String("token", maskToken(tokenStr)),
		slog.Int("status", resp.StatusCode),
	)

	// Sanity-check the fresh token's signature. A failure here is logged
	// rather than surfaced: the server accepted the operation and the
	// next EnsureLicense pass will catch a genuinely bad token.
	if tok, parseErr := ParseToken(tokenStr); parseErr != nil {
		c.logWarn(ctx, "license_"+op, "Fresh license token does not parse",
			slog.String("error", parseErr.Error()),
		)
	} else if _, verifyErr := c.verifier.Verify(tok); verifyErr != nil {
		c.logWarn(ctx, "license_"+op, "Fresh license token failed signature sanity check",
			slog.String("error", verifyErr.Error()),
		)
	} else {
		c.logDebug(ctx, "license_"+op, "Fresh license token signature verified",
			slog.String("subject", tok.Data.Subject),
		)
	}

	return nil
}

// serverFailure maps a non-2xx response to a license error. A structured
// x-license-error-code header wins; otherwise the body is wrapped as a
// generic error.
func (c *Client) serverFailure(ctx context.Context, op string, resp *http.Response, body []byte) error {
	code := resp.Header.Get("x-license-error-code")

	c.logWarn(ctx, "license_"+op, "License server rejected the request",
		slog.Int("status", resp.StatusCode),
		slog.String("error_code", code),
	)

	if code != "" {
		return ServerError(ParseKind(code), string(body))
	}
	return ServerError(KindGenericError, string(body))
}

// newRequest builds the form-style POST shared by all three endpoints.
// The query string layout and headers are fixed by the server protocol.
func (c *Client) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u := fmt.Sprintf("%s/%s?subject=&password=&product=%s",
		strings.TrimRight(c.cfg.ServerURL, "/"), endpoint, url.QueryEscape(c.cfg.ProductID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")

	switch c.cfg.AuthScheme {
	case "basic":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	case "cookie":
		req.Header.Set("Cookie", c.cfg.Cookie)
	}

	return req, nil
}

// userAgent renders "<product>/<version> (Platform <platform>)" with the
// version and platform segments omitted when unset.
func (c *Client) userAgent() string {
	ua := c.cfg.ProductID
	if c.cfg.Version != "" {
		ua += "/" + c.cfg.Version
	}
	if c.cfg.Platform != "" {
		ua += " (Platform " + c.cfg.Platform + ")"
	}
	return ua
}
