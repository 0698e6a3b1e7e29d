package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/radio/goble"
	"github.com/srg/lhctl/pkg/config"
)

// runtime is an engine wired to the go-ble radio, built from the config file
// and command-line flags.
type runtime struct {
	cfg    *config.Config
	logger *logrus.Logger
	engine *engine.Engine
	radio  *goble.Radio
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Options{
		Logger:             logger,
		EvictionTimeout:    cfg.EvictionTimeout,
		EventBuffer:        cfg.EventBuffer,
		NotificationBuffer: cfg.NotificationBuffer,
	})

	radio := goble.New(eng, goble.Options{
		Logger:           logger,
		ConnectTimeout:   cfg.ConnectTimeout,
		OperationTimeout: cfg.OperationTimeout,
		AllowDuplicates:  cfg.AllowDuplicates,
	})
	if err := radio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open bluetooth adapter: %w", err)
	}
	eng.SetRadio(radio)

	return &runtime{cfg: cfg, logger: logger, engine: eng, radio: radio}, nil
}

// start runs the engine until ctx is cancelled or close is called
func (rt *runtime) start(ctx context.Context) error {
	return rt.engine.Start(ctx)
}

// close stops the engine first so every link is released before the adapter
func (rt *runtime) close() {
	rt.engine.Close()
	if err := rt.radio.Close(); err != nil {
		rt.logger.WithError(err).Warn("Failed to close bluetooth adapter")
	}
}

// outputFormat returns --format when given, otherwise the configured default
func (rt *runtime) outputFormat(cmd *cobra.Command) (string, error) {
	format := rt.cfg.OutputFormat
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	switch format {
	case "table", "json":
		return format, nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be table or json)", format)
	}
}
