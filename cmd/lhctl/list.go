package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Scan for base stations and print them once",
	Long: `Scans for --duration, connecting to every base station found so its power
state and channel can be read, then prints the station list and exits.`,
	Example: `  lhctl list
  lhctl list --duration 10s --format json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().Duration("duration", 5*time.Second, "How long to scan before printing")
	listCmd.Flags().String("format", "table", "Output format: table or json")
}

func runList(cmd *cobra.Command, _ []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	if duration <= 0 {
		return errors.New("--duration must be positive")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	format, err := rt.outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.start(ctx); err != nil {
		return err
	}

	progress := NewCountdownProgressPrinter(progressOutput(cmd), "Scanning for base stations", "scanning", duration)
	progress.Start()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		progress.Stop()
		return context.Canceled
	case <-timer.C:
	}
	progress.Stop()

	stations := rt.engine.Snapshot()
	if format == "json" {
		return renderJSON(cmd.OutOrStdout(), stations)
	}
	return renderTable(cmd.OutOrStdout(), stations, isTerminal(cmd.OutOrStdout()))
}
