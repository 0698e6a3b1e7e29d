package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
)

var identifyCmd = &cobra.Command{
	Use:     "identify <device>",
	Short:   "Blink a base station's LED",
	Example: `  lhctl identify LHB-0A1B2C3D`,
	Args:    cobra.ExactArgs(1),
	RunE:    runIdentify,
}

func init() {
	addCommandFlags(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	return runStationCommand(cmd, args[0], "identify",
		func(ctx context.Context, eng *engine.Engine, id string) error {
			return eng.Identify(ctx, id)
		})
}
