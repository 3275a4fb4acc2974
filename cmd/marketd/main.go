// Command marketd runs the commodity prediction market daemon.
//
//	marketd -config /etc/marketd/config.toml
//	marketd -config config.toml -check
//
// Settings come from the TOML file, then .env, then MARKETD_* variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/afrifutures/marketd/internal/app"
	"github.com/afrifutures/marketd/internal/config"
)

func main() {
	configPath := flag.String("config", defaultConfig, "TOML config file; empty means defaults plus environment")
	check := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, level, *configPath, *check); err != nil {
		logger.Error("marketd exited", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

// defaultConfig may be absent, for example in a container configured only
// through the environment.
const defaultConfig = "config.toml"

func run(logger *slog.Logger, level *slog.LevelVar, configPath string, checkOnly bool) error {
	if configPath == defaultConfig {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			configPath = ""
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", configPath, err)
	}
	level.Set(parseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("configuration loaded",
		slog.String("path", configPath),
		slog.Any("config", config.RedactedConfig(cfg)),
	)
	if checkOnly {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	defer a.Close()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("marketd stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
