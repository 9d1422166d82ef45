// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/cinder/pkg/sfproto"
)

// MemoryType selects which memory the bootloader stub drives.
type MemoryType string

// Supported memory types.
const (
	MemoryNor  MemoryType = "nor"
	MemoryNand MemoryType = "nand"
	MemorySD   MemoryType = "sd"
)

// Region is a half-open address range [Start, End) a profile declares valid.
type Region struct {
	Start uint32
	End   uint32
}

// Contains reports whether [addr, addr+size) falls entirely inside the region.
// The upper bound is checked before subtracting so an address at or past the
// region end cannot underflow the remaining-space calculation.
func (r Region) Contains(addr uint32, size uint32) bool {
	return addr >= r.Start && addr < r.End && size <= r.End-addr
}

// ChipProfile is the static description of one supported SoC family's
// bootloader parameters. Behavioral variation across the family is data, not
// logic: opcode support, chunk bound, checksum kind, and memory layout.
type ChipProfile struct {
	Name     string
	Memory   MemoryType
	ChipID   uint32
	MaxChunk int
	Checksum sfproto.FrameChecksum
	Compress bool
	Opcodes  []byte
	Regions  []Region
}

// Supports reports whether the profile's bootloader implements opcode.
func (p ChipProfile) Supports(opcode byte) bool {
	for _, op := range p.Opcodes {
		if op == opcode {
			return true
		}
	}
	return false
}

// ValidateRange checks that [addr, addr+size) falls inside a declared region.
// This is a configuration check and runs before any serial traffic.
func (p ChipProfile) ValidateRange(addr uint32, size int) error {
	for _, r := range p.Regions {
		if r.Contains(addr, uint32(size)) {
			return nil
		}
	}
	return fmt.Errorf("%w: 0x%08X..0x%08X (%s/%s)",
		ErrInvalidAddressRange, addr, addr+uint32(size), p.Name, p.Memory)
}

var allOpcodes = []byte{
	sfproto.OpSync, sfproto.OpChipID, sfproto.OpEraseAll, sfproto.OpProgram,
	sfproto.OpProgramZ, sfproto.OpVerify, sfproto.OpSetBaud, sfproto.OpReset,
}

// basicOpcodes excludes compressed programming, used by stubs without a
// decompressor.
var basicOpcodes = []byte{
	sfproto.OpSync, sfproto.OpChipID, sfproto.OpEraseAll, sfproto.OpProgram,
	sfproto.OpVerify, sfproto.OpSetBaud, sfproto.OpReset,
}

// profiles is the static registry, keyed by "<chip>/<memory>".
var profiles = map[string]ChipProfile{
	"sf32lb52/nor": {
		Name: "sf32lb52", Memory: MemoryNor, ChipID: 0x5201,
		MaxChunk: 128 * 1024, Checksum: sfproto.ChecksumCRC16, Compress: true,
		Opcodes: allOpcodes,
		Regions: []Region{{0x10000000, 0x14000000}},
	},
	"sf32lb52/nand": {
		Name: "sf32lb52", Memory: MemoryNand, ChipID: 0x5201,
		MaxChunk: 64 * 1024, Checksum: sfproto.ChecksumSum16, Compress: true,
		Opcodes: allOpcodes,
		Regions: []Region{{0x62000000, 0x6A000000}},
	},
	"sf32lb52/sd": {
		Name: "sf32lb52", Memory: MemorySD, ChipID: 0x5201,
		MaxChunk: 64 * 1024, Checksum: sfproto.ChecksumSum16, Compress: false,
		Opcodes: basicOpcodes,
		Regions: []Region{{0x68000000, 0x70000000}},
	},
	"sf32lb56/nor": {
		Name: "sf32lb56", Memory: MemoryNor, ChipID: 0x5601,
		MaxChunk: 128 * 1024, Checksum: sfproto.ChecksumCRC16, Compress: true,
		Opcodes: allOpcodes,
		Regions: []Region{{0x10000000, 0x14000000}, {0x60000000, 0x64000000}},
	},
	"sf32lb58/nor": {
		Name: "sf32lb58", Memory: MemoryNor, ChipID: 0x5801,
		MaxChunk: 128 * 1024, Checksum: sfproto.ChecksumCRC16, Compress: true,
		Opcodes: allOpcodes,
		Regions: []Region{{0x10000000, 0x14000000}, {0x60000000, 0x64000000}},
	},
}

// Lookup returns the profile for a chip name and memory type. Chip names are
// case-insensitive.
func Lookup(chip string, memory MemoryType) (ChipProfile, error) {
	key := strings.ToLower(chip) + "/" + string(memory)
	p, ok := profiles[key]
	if !ok {
		return ChipProfile{}, fmt.Errorf("%w: %s (memory %s)", ErrUnsupportedChip, chip, memory)
	}
	return p, nil
}

// Chips returns the registered chip/memory combinations, for help output.
func Chips() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	return keys
}
