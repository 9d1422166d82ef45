// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad
//
// Cinder - UART bootloader flasher for SiFli-class SoCs.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/cinder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
