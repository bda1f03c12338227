// Package main is the entry point for the action-items plugin host.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyrup-ai/action-items-sub005/internal/app"
	"github.com/cyrup-ai/action-items-sub005/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		query       string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&query, "search", "", "Run one search and exit")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "action-items - launcher plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: action-items [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  action-items                      Run the host until interrupted\n")
		fmt.Fprintf(os.Stderr, "  action-items -search \"5km to mi\"  One-shot search across plugins\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("action-items %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	host, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to assemble host", "error", err)
		return 1
	}

	ctx := context.Background()
	if err := host.Start(ctx); err != nil {
		logger.Error("failed to start host", "error", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = host.Stop(stopCtx)
	}()

	if query != "" {
		return runSearch(ctx, host, query)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.Info("shutting down", "signal", sig.String())
	return 0
}

// loadConfig reads the given path, or falls back to defaults when none
// is provided.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// runSearch executes one query and prints ranked results.
func runSearch(ctx context.Context, host *app.App, query string) int {
	res, err := host.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, item := range res.Items {
		if item.Description != "" {
			fmt.Printf("%6.2f  %-30s %s  [%s]\n", item.Score, item.Title, item.Description, item.PluginID)
			continue
		}
		fmt.Printf("%6.2f  %-30s [%s]\n", item.Score, item.Title, item.PluginID)
	}
	for pluginID, reason := range res.Failed {
		fmt.Fprintf(os.Stderr, "plugin %s failed: %s\n", pluginID, reason)
	}

	if len(res.Items) == 0 && res.Partial() {
		return 1
	}
	return 0
}

// newLogger builds the host logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
