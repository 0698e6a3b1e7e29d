//go:build test

package main

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/go-ble/ble"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/lhctl/internal/radio/goble"
	"github.com/srg/lhctl/internal/testutils"
)

// Test base station identity advertised by the mocked adapter
const (
	TestStationAddress = "c8:2b:96:00:00:01"
	TestStationName    = "LHB-0A1B2C3D"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/lhctl test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite

	// ConfigPath points at a config file that does not exist, so commands run on defaults
	ConfigPath string
}

// SetupTest advertises the test base station unless the embedding suite
// configured its own peripheral, and resets every flag to its default.
func (s *CommandTestSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = testutils.NewLighthouseBuilder(s.T(), 0x0B, 0x05).
			WithAdvertisements(testutils.CreateMockAdvertisement(TestStationName, TestStationAddress, -48))
	}
	s.MockBLEPeripheralSuite.SetupTest()

	s.ConfigPath = filepath.Join(s.T().TempDir(), "config.yaml")
	resetFlags(rootCmd)
}

// UsePeripheral replaces the mocked adapter for the current test
func (s *CommandTestSuite) UsePeripheral(builder *testutils.PeripheralDeviceBuilder) {
	s.Peripheral = builder.Build()
	device := s.Peripheral.Device
	goble.DeviceFactory = func() (ble.Device, error) {
		return device, nil
	}
}

// ExecuteCommand runs a cobra command with args, returns output and error.
// The test config path and a quiet log level come first so args can override them.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), cmd, args...)
}

// ExecuteCommandContext is ExecuteCommand for long-running commands that stop with ctx
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	// Subcommands keep the context of their first run
	if sub, _, err := cmd.Find(args); err == nil {
		sub.SetContext(ctx)
	}

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", s.ConfigPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to the default,
// cobra keeps parsed values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
