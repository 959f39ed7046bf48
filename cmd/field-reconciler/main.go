package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/a3tai/pdf-field-reconciler/internal/config"
	"github.com/a3tai/pdf-field-reconciler/internal/mcp"
	"github.com/a3tai/pdf-field-reconciler/internal/reconcile"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newServer builds the reconcile service and the MCP server around it.
func newServer(cfg *config.Config, logger zerolog.Logger) (*mcp.Server, error) {
	service, err := reconcile.NewService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile service: %w", err)
	}

	server, err := mcp.NewServer(cfg, service, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server, nil
}

// run serves until ctx is canceled or the transport stops. A canceled
// context is a clean shutdown.
func run(ctx context.Context, server *mcp.Server, logger zerolog.Logger) error {
	err := server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	// Check for version flag before parsing other flags
	if versionRequested(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	// Logs go to stderr in every mode; stdout carries the MCP protocol.
	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Str("config", cfg.String()).Msg("starting")

	server, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, server, logger); err != nil {
		logger.Error().Err(err).Msg("server error")
		stop()
		os.Exit(1)
	}
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "PDF Field Reconciler\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
