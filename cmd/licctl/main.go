// licctl exercises the lease client from the command line: check obtains
// (or re-verifies) a lease, release surrenders it, inspect decodes a
// token without contacting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"liclease/internal/config"
	"liclease/internal/infrastructure"
	"liclease/internal/license"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx := infrastructure.EnsureTraceID(context.Background())

	if err := run(ctx, cfg, logger, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: licctl <command> [args]

Commands:
  check            obtain or re-verify a license lease
  release          surrender the held lease (pass the token as an argument)
  inspect <token>  decode a lease token locally
`)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "check":
		return runCheck(ctx, cfg)
	case "release":
		return runRelease(ctx, cfg, args)
	case "inspect":
		if len(args) != 1 {
			return fmt.Errorf("inspect takes exactly one token argument")
		}
		return runInspect(args[0])
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newClient(cfg *config.Config) (*license.Client, error) {
	verifier, err := buildVerifier(cfg.License)
	if err != nil {
		return nil, err
	}
	return license.NewClient(cfg.License, verifier, license.NewCoordinator())
}

// buildVerifier loads the configured public key file, falling back to
// the embedded production key.
func buildVerifier(cfg config.LicenseConfig) (*license.Verifier, error) {
	if cfg.PublicKeyFile == "" {
		return license.NewVerifier()
	}
	pemData, err := os.ReadFile(cfg.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading public key file: %w", err)
	}
	return license.NewVerifierFromPEM(pemData)
}

func runCheck(ctx context.Context, cfg *config.Config) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.EnsureLicense(ctx); err != nil {
		return err
	}

	fmt.Printf("license lease OK for product %s\n", cfg.License.ProductID)
	fmt.Println(client.HeldToken())
	return nil
}

func runRelease(ctx context.Context, cfg *config.Config, args []string) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// licctl is stateless between invocations, so the token to release
	// is supplied on the command line.
	if len(args) == 1 {
		client.SetHeldToken(args[0])
	}

	if err := client.Release(ctx); err != nil {
		return err
	}
	fmt.Println("license released")
	return nil
}

func runInspect(wire string) error {
	tok, err := license.ParseToken(wire)
	if err != nil {
		return err
	}

	d := tok.Data
	fmt.Printf("subject:    %s\n", d.Subject)
	fmt.Printf("generated:  %s\n", time.UnixMilli(d.GeneratedTime).UTC().Format(time.RFC3339))
	fmt.Printf("temporal:   %t\n", d.IsTemporal)
	if d.IsTemporal {
		fmt.Printf("valid from: %s\n", time.UnixMilli(d.MinValidity).UTC().Format(time.RFC3339))
		fmt.Printf("valid to:   %s\n", time.UnixMilli(d.MaxValidity).UTC().Format(time.RFC3339))
		fmt.Printf("expired:    %t\n", tok.IsExpired(time.Now()))
	}
	if d.HostInfo != "" {
		fmt.Printf("host:       %s\n", d.HostInfo)
	}
	for _, f := range d.Features {
		fmt.Printf("feature:    %s=%s\n", f.Key, f.Value)
	}
	return nil
}
