// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/cinder/pkg/burner"
	"github.com/spf13/cobra"
)

var (
	chipName        string
	memoryType      string
	portName        string
	baudRate        int
	beforeAction    string
	afterAction     string
	connectAttempts int
	compatMode      bool
	verboseLog      bool
)

var rootCmd = &cobra.Command{
	Use:   "cinder",
	Short: "UART bootloader flasher for SiFli-class SoCs",
	Long: `Cinder - a CLI tool for programming, verifying and resetting
microcontroller-class SoCs over a UART bootloader link.

The port may be a local serial device or a ws://host/path remote serial
bridge. If the link is unreliable (frequent timeouts, checksum failures
after download), enable --compat for smaller chunks and longer timeouts.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&chipName, "chip", "c", "", "Target chip type (e.g. sf32lb52)")
	rootCmd.PersistentFlags().StringVarP(&memoryType, "memory", "m", "nor", "Memory type (nor, nand, sd)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device or ws:// bridge URL")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", burner.DefaultBaud, "Baud rate used when flashing")
	rootCmd.PersistentFlags().StringVar(&beforeAction, "before", "no_reset", "Action before connecting (no_reset, soft_reset)")
	rootCmd.PersistentFlags().StringVar(&afterAction, "after", "soft_reset", "Action after finishing (no_reset, soft_reset)")
	rootCmd.PersistentFlags().IntVar(&connectAttempts, "connect-attempts", 3, "Connection attempts, 0 or negative for infinite")
	rootCmd.PersistentFlags().BoolVar(&compatMode, "compat", false, "Compatibility mode for unreliable links")
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Log structured progress events to stderr")

	rootCmd.MarkPersistentFlagRequired("chip")
	rootCmd.MarkPersistentFlagRequired("port")
}

// sessionConfig assembles the burner configuration from the persistent flags.
func sessionConfig(sink burner.EventSink) burner.Config {
	return burner.Config{
		Chip:            chipName,
		Memory:          burner.MemoryType(memoryType),
		Port:            portName,
		Baud:            baudRate,
		Before:          burner.ResetAction(beforeAction),
		After:           burner.ResetAction(afterAction),
		ConnectAttempts: connectAttempts,
		Compat:          compatMode,
		Sink:            sink,
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
