package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/registry"
)

const defaultCommandTimeout = 30 * time.Second

// addCommandFlags registers the flags shared by power and identify
func addCommandFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", defaultCommandTimeout, "How long to wait for the base station to become ready and acknowledge")
}

// sendFunc issues one command to the engine for the station with the given ID
type sendFunc func(ctx context.Context, eng *engine.Engine, id string) error

// runStationCommand waits until deviceKey is ready, sends the command and
// waits for the write acknowledgement. deviceKey may be a name, hardware
// identity or registry ID.
func runStationCommand(cmd *cobra.Command, deviceKey, label string, send sendFunc) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return errors.New("--timeout must be positive")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	notifications := rt.engine.Notifications()
	if err := rt.start(ctx); err != nil {
		return err
	}

	progress := NewProgressPrinter(progressOutput(cmd), fmt.Sprintf("Waiting for %s", deviceKey), "discovering")
	progress.Start()
	defer progress.Stop()

	station, err := rt.engine.WaitReady(ctx, deviceKey)
	if err != nil {
		return readyError(ctx, deviceKey, timeout, err)
	}

	progress.SetPhase("sending " + label)
	if err := send(ctx, rt.engine, station.ID); err != nil {
		return err
	}

	if err := awaitAcknowledgement(ctx, notifications, station); err != nil {
		return err
	}
	progress.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s acknowledged\n", station.Name, label)
	return nil
}

// readyError reports a WaitReady failure. A deadline means the station never
// showed up or never finished discovery.
func readyError(ctx context.Context, deviceKey string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s did not become ready within %v", ErrNotReady, deviceKey, timeout)
	}
	return err
}

// awaitAcknowledgement consumes notifications until the write result for
// station arrives
func awaitAcknowledgement(ctx context.Context, notifications <-chan engine.Notification, station registry.BaseStation) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return engine.ErrEngineClosed
			}
			if n.Station.ID != station.ID {
				continue
			}
			switch n.Kind {
			case engine.CommandAcknowledged:
				return nil
			case engine.CommandFailed:
				return fmt.Errorf("%w: %s %s: %v", ErrCommandRejected, station.Name, n.Characteristic, n.Err)
			case engine.DeviceEvicted:
				return fmt.Errorf("%w: %s disappeared", engine.ErrDeviceNotFound, station.Name)
			}
		}
	}
}
