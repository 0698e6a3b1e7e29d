package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/lighthouse"
)

var powerCmd = &cobra.Command{
	Use:   "power <device> <on|standby|sleep>",
	Short: "Switch a base station on, to standby or to sleep",
	Long: `Connects to the base station and writes the power command once its power
characteristic has been discovered. <device> is the advertised name
(LHB-XXXXXXXX), the Bluetooth address or the registry ID.

"off" is accepted as an alias for sleep.`,
	Example: `  lhctl power LHB-0A1B2C3D on
  lhctl power c8:2b:96:00:00:01 sleep --timeout 1m`,
	Args: cobra.ExactArgs(2),
	RunE: runPower,
}

func init() {
	addCommandFlags(powerCmd)
}

func runPower(cmd *cobra.Command, args []string) error {
	command, err := lighthouse.ParseCommand(args[1])
	if err != nil {
		return err
	}

	return runStationCommand(cmd, args[0], "power "+command.String(),
		func(ctx context.Context, eng *engine.Engine, id string) error {
			return eng.SetPower(ctx, id, command)
		})
}
