package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
)

const watchRedrawInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously show nearby base stations",
	Long: `Scans for Lighthouse V2 base stations, connects to each one and redraws the
station table every second until interrupted.

With --format json every registry change is printed as one JSON line instead.

On Unix systems SIGUSR1 puts the manager in the background (scanning stops,
connections are released) and SIGUSR2 brings it back to the foreground.`,
	Example: `  lhctl watch
  lhctl watch --format json | jq .
  kill -USR1 $(pgrep lhctl)`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("format", "table", "Output format: table or json")
}

func runWatch(cmd *cobra.Command, _ []string) error {
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

	lifecycle := make(chan os.Signal, 1)
	if len(lifecycleSignals) > 0 {
		signal.Notify(lifecycle, lifecycleSignals...)
		defer signal.Stop(lifecycle)
	}

	w := newWatcher(rt.engine, cmd, format)
	return w.loop(ctx, lifecycle)
}

// watcher renders engine state to the command output
type watcher struct {
	engine *engine.Engine
	cmd    *cobra.Command
	format string
	tty    bool
	dirty  bool
}

func newWatcher(eng *engine.Engine, cmd *cobra.Command, format string) *watcher {
	return &watcher{engine: eng, cmd: cmd, format: format, tty: isTerminal(cmd.OutOrStdout()), dirty: true}
}

func (w *watcher) loop(ctx context.Context, lifecycle <-chan os.Signal) error {
	ticker := time.NewTicker(watchRedrawInterval)
	defer ticker.Stop()

	notifications := w.engine.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.engine.Done():
			return nil

		case sig := <-lifecycle:
			if isBackgroundSignal(sig) {
				w.engine.OnAppBackground()
			} else {
				w.engine.OnAppActive()
			}

		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if w.format == "json" {
				if err := renderNotification(w.cmd.OutOrStdout(), n); err != nil {
					return err
				}
				continue
			}
			w.dirty = true

		case <-ticker.C:
			if w.format == "table" && w.dirty {
				if err := w.redraw(); err != nil {
					return err
				}
			}
		}
	}
}

func (w *watcher) redraw() error {
	w.dirty = false
	out := w.cmd.OutOrStdout()
	if w.tty {
		clearScreen(out)
	}
	return renderTable(out, w.engine.Snapshot(), w.tty)
}
