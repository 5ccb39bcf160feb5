package license

import (
	"context"
	"log/slog"

	"liclease/internal/infrastructure"
)

// logAction logs a lease-client action with structured data and trace
// correlation, following the application-wide logging conventions.
func (c *Client) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)

	allAttrs := []slog.Attr{
		slog.String("component", "lease_client"),
		slog.String("action", action),
		slog.String("product", c.cfg.ProductID),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(ctx, level, result, allAttrs...)
}

func (c *Client) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	c.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (c *Client) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	c.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (c *Client) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	c.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (c *Client) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	c.logAction(ctx, slog.LevelError, action, result, attrs...)
}

// maskToken keeps only the edges of a token for log output. Tokens are
// bearer credentials; they never appear whole in logs.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:6] + "****" + token[len(token)-6:]
}
