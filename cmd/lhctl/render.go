package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/registry"
	"golang.org/x/term"
)

var powerColors = map[lighthouse.PowerState]*color.Color{
	lighthouse.On:      color.New(color.FgGreen, color.Bold),
	lighthouse.Standby: color.New(color.FgYellow),
	lighthouse.Sleep:   color.New(color.FgBlue),
	lighthouse.Booting: color.New(color.FgCyan),
	lighthouse.Unknown: color.New(color.Faint),
}

// powerCell renders a power state, colored when colors are enabled.
// The cell is the last column so escape codes do not disturb alignment.
func powerCell(state lighthouse.PowerState, colors bool) string {
	c, ok := powerColors[state]
	if !colors || !ok {
		return state.String()
	}
	c.EnableColor()
	return c.Sprint(state.String())
}

func channelCell(raw *byte) string {
	if raw == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *raw)
}

// renderTable writes one line per base station in registry order
func renderTable(out io.Writer, stations []registry.BaseStation, colors bool) error {
	if len(stations) == 0 {
		_, err := fmt.Fprintln(out, "No base stations discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tLINK\tCHANNEL\tPOWER")

	for _, st := range stations {
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\n",
			st.Name, st.HardwareIdentity, st.SignalStrength, st.Link,
			channelCell(st.RawChannel), powerCell(st.PowerState, colors))
	}

	return w.Flush()
}

// renderJSON writes the stations as an indented JSON array
func renderJSON(out io.Writer, stations []registry.BaseStation) error {
	if stations == nil {
		stations = []registry.BaseStation{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stations)
}

// notificationLine is one NDJSON record of the watch --format json stream
type notificationLine struct {
	Event          string               `json:"event"`
	Station        registry.BaseStation `json:"station"`
	Characteristic string               `json:"characteristic,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// renderNotification writes n as a single JSON line
func renderNotification(out io.Writer, n engine.Notification) error {
	line := notificationLine{
		Event:   n.Kind.String(),
		Station: n.Station,
	}
	if n.Kind == engine.CommandAcknowledged || n.Kind == engine.CommandFailed {
		line.Characteristic = n.Characteristic.String()
	}
	if n.Err != nil {
		line.Error = n.Err.Error()
	}
	return json.NewEncoder(out).Encode(line)
}

// isTerminal reports whether w is a file attached to a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressOutput returns stderr for progress lines when it is a terminal, nil otherwise
func progressOutput(cmd *cobra.Command) io.Writer {
	if out := cmd.ErrOrStderr(); isTerminal(out) {
		return out
	}
	return nil
}

func clearScreen(out io.Writer) {
	fmt.Fprint(out, "\033[2J\033[H")
}
