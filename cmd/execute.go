// Package cmd contains the sqlpilot command-line entry points.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sqlpilot/sqlpilot/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute dispatches to the requested subcommand. Running without arguments
// starts the HTTP server.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		case "migrate":
			return runMigrate()
		case "reembed":
			return runReembed()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}
	return runServe()
}

// initLogger builds the process logger. SQLPILOT_DEBUG enables debug level,
// SQLPILOT_LOG_JSON switches to JSON output.
func initLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("SQLPILOT_DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("SQLPILOT_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

func printVersion() {
	fmt.Printf("sqlpilot %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println("sqlpilot - text-to-SQL assistant backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sqlpilot [serve]     Start the HTTP API server (default)")
	fmt.Println("  sqlpilot migrate     Run database schema migrations and exit")
	fmt.Println("  sqlpilot reembed     Re-embed stored knowledge with the configured embedder")
	fmt.Println("  sqlpilot version     Show version information")
	fmt.Println("  sqlpilot help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Required: Gemini API key")
	fmt.Println("  DATABASE_URL         Optional: Postgres connection URL")
	fmt.Println("  SQLPILOT_DEBUG       Optional: enable debug logging")
	fmt.Println("  SQLPILOT_LOG_JSON    Optional: JSON log output")
	fmt.Println()
	fmt.Println("All config keys can be set via SQLPILOT_* variables or config.yaml.")
}
