// mcp-task-server is an MCP task-management server with an async batch job
// engine, exposed over stdio, HTTP+SSE, or both.
//
// Configuration is loaded from an optional YAML file plus environment
// variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start on stdio (default)
//	mcp-task-server
//
//	# Start the HTTP+SSE transport
//	MCP_TRANSPORT=http mcp-task-server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskmcp/mcp-task-server/internal/app"
	"github.com/taskmcp/mcp-task-server/internal/config"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  mcp-task-server           Start the server\n")
			fmt.Fprintf(os.Stderr, "  mcp-task-server version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server shutdown complete")
}

func printVersion() {
	fmt.Printf("mcp-task-server\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, builds the application, recovers any orphaned
// jobs left over from a previous process, then serves the configured
// transport(s) until ctx is canceled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close(context.Background())

	if err := a.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}

	switch cfg.Transport.Mode {
	case "http":
		return a.RunHTTP(ctx)
	case "both":
		errCh := make(chan error, 1)
		go func() {
			errCh <- a.RunHTTP(ctx)
		}()
		if err := a.RunStdio(ctx, os.Stdin, os.Stdout); err != nil {
			return err
		}
		return <-errCh
	case "stdio", "":
		return a.RunStdio(ctx, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}
}
