// licd is the development floating-license server. It issues signed
// lease tokens over the same protocol the lease client speaks, enforcing
// a per-product seat limit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"liclease/internal/config"
	"liclease/internal/infrastructure"
	"liclease/internal/licserver"
)

func main() {
	printKey := flag.Bool("print-public-key", false, "print the PEM verification key on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	if err := run(cfg, logger, *printKey); err != nil {
		logger.Error("licd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, printKey bool) error {
	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	issuer, err := buildIssuer(cfg.Server)
	if err != nil {
		return err
	}

	if printKey {
		pubPEM, err := issuer.PublicKeyPEM()
		if err != nil {
			return err
		}
		fmt.Println(string(pubPEM))
	}

	opts := []licserver.Option{
		licserver.WithMetricsHandler(providers.PrometheusHTTP),
	}
	srv := licserver.New(cfg.Server, issuer, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return providers.Shutdown(context.Background())
	})

	return g.Wait()
}

// buildIssuer loads the signing key from disk when configured, otherwise
// generates an ephemeral one. Ephemeral keys mean tokens do not survive
// a restart, which is the right default for a development server.
func buildIssuer(cfg config.ServerConfig) (*licserver.Issuer, error) {
	if cfg.PrivateKeyFile != "" {
		return licserver.LoadIssuer(cfg.PrivateKeyFile, cfg.MaxSeats, cfg.LeaseTTL)
	}
	return licserver.GenerateIssuer(cfg.MaxSeats, cfg.LeaseTTL)
}
