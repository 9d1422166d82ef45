// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/Thermoquad/cinder/pkg/burner"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flashVerify     bool
	flashNoCompress bool
	flashEraseAll   bool
)

var writeFlashCmd = &cobra.Command{
	Use:   "write_flash <file@address>...",
	Short: "Write binary blobs to flash",
	Long: `Write one or more binaries to flash.

Binary files take the form <path@address> (0x-prefixed hex, octal 0o, binary
0b, or decimal). Intel HEX files carry their own addresses and need no suffix.
Files are programmed in the order given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWriteFlash,
}

func init() {
	writeFlashCmd.Flags().BoolVar(&flashVerify, "verify", false, "Verify just-written data on flash")
	writeFlashCmd.Flags().BoolVarP(&flashNoCompress, "no-compress", "u", false, "Disable data compression during transfer")
	writeFlashCmd.Flags().BoolVarP(&flashEraseAll, "erase-all", "e", false, "Erase all touched flash regions before programming")

	rootCmd.AddCommand(writeFlashCmd)
}

func runWriteFlash(cmd *cobra.Command, args []string) error {
	targets, err := ResolveTargets(args)
	if err != nil {
		return err
	}

	var sink burner.EventSink = NewRenderer(os.Stderr)
	if verboseLog {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		sink = burner.LogSink{Log: log}
	}

	session, err := burner.Connect(sessionConfig(sink))
	if err != nil {
		return err
	}
	defer session.Close()

	return session.WriteFlash(targets, burner.Options{
		Verify:     flashVerify,
		NoCompress: flashNoCompress,
		EraseAll:   flashEraseAll,
	})
}
