// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Thermoquad/cinder/pkg/burner"
)

// ResolveTargets turns command line arguments into transfer targets, in the
// order given. A <path@address> argument is a raw binary; anything else must
// be an ELF image or an Intel HEX file, which carry their own destination
// addresses.
func ResolveTargets(args []string) ([]burner.TransferTarget, error) {
	var targets []burner.TransferTarget

	for _, arg := range args {
		if path, addrStr, ok := strings.Cut(arg, "@"); ok {
			addr, err := parseAddress(addrStr)
			if err != nil {
				return nil, fmt.Errorf("%s: bad address %q: %w", path, addrStr, err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			targets = append(targets, burner.TransferTarget{Path: path, Address: addr, Data: data})
			continue
		}

		var (
			fileTargets []burner.TransferTarget
			err         error
		)
		if isElfFile(arg) {
			fileTargets, err = parseElfFile(arg)
		} else {
			fileTargets, err = parseHexFile(arg)
		}
		if err != nil {
			return nil, err
		}
		targets = append(targets, fileTargets...)
	}

	return targets, nil
}

// parseAddress accepts 0x-prefixed hex, 0o octal, 0b binary, or decimal.
func parseAddress(s string) (uint32, error) {
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0o"), strings.HasPrefix(s, "0O"):
		s, base = s[2:], 8
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		s, base = s[2:], 2
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// elfRAMBase splits the SoC address map: PT_LOAD segments at or above it are
// RAM-resident (stack, data initializers) and are not flashed.
const (
	elfRAMBase    = 0x20000000
	elfSectorSize = 0x1000
)

var elfMagic = []byte{0x7F, 'E', 'L', 'F'}

// isElfFile sniffs the ELF magic, so .elf and .axf images are recognized
// regardless of extension.
func isElfFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, elfMagic)
}

// parseElfFile extracts the flashable PT_LOAD segments of an ELF image into
// transfer targets. Segments are grouped into sector-aligned runs: the run
// base is the first segment's address rounded down to a sector boundary, gaps
// inside a run are padded with 0xFF, and a segment starting past the end of
// the current run opens a new target.
func parseElfFile(path string) ([]burner.TransferTarget, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	var segments []*elf.Prog
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD && prog.Filesz > 0 && prog.Paddr < elfRAMBase {
			segments = append(segments, prog)
		}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Paddr < segments[j].Paddr })

	var (
		targets []burner.TransferTarget
		base    uint32
		buf     []byte
	)
	flush := func() {
		if len(buf) > 0 {
			data := make([]byte, len(buf))
			copy(data, buf)
			targets = append(targets, burner.TransferTarget{Path: path, Address: base, Data: data})
		}
		buf = buf[:0]
	}

	for _, prog := range segments {
		addr := uint32(prog.Paddr)
		segBase := addr &^ uint32(elfSectorSize-1)

		if len(buf) == 0 {
			base = segBase
		} else if segBase > base+uint32(len(buf)) {
			flush()
			base = segBase
		}

		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			return nil, fmt.Errorf("%s: read segment at 0x%08X: %w", path, addr, err)
		}

		rel := int(addr - base)
		for len(buf) < rel {
			buf = append(buf, 0xFF)
		}
		if len(buf) < rel+len(data) {
			buf = append(buf, make([]byte, rel+len(data)-len(buf))...)
		}
		copy(buf[rel:], data)
	}
	flush()

	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: no flashable load segments", path)
	}
	return targets, nil
}

// Intel HEX record types.
const (
	recData            = 0x00
	recEOF             = 0x01
	recExtendedSegment = 0x02
	recStartSegment    = 0x03
	recExtendedLinear  = 0x04
	recStartLinearAddr = 0x05
)

// parseHexFile reads an Intel HEX file into one transfer target per
// contiguous address run. Gaps inside a run are padded with 0xFF, the erased
// flash value, matching what the programmer would leave there anyway.
func parseHexFile(path string) ([]burner.TransferTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		targets []burner.TransferTarget
		base    uint32 // upper 16 bits from the last extended linear record
		start   uint32 // current run base address
		buf     []byte // current run contents
		open    bool
	)

	flush := func() {
		if open && len(buf) > 0 {
			data := make([]byte, len(buf))
			copy(data, buf)
			targets = append(targets, burner.TransferTarget{Path: path, Address: start, Data: data})
		}
		buf = buf[:0]
		open = false
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != ':' {
			return nil, fmt.Errorf("%s:%d: not an Intel HEX record", path, lineNo)
		}

		record, err := hex.DecodeString(line[1:])
		if err != nil || len(record) < 5 {
			return nil, fmt.Errorf("%s:%d: malformed record", path, lineNo)
		}

		var sum byte
		for _, b := range record {
			sum += b
		}
		if sum != 0 {
			return nil, fmt.Errorf("%s:%d: record checksum mismatch", path, lineNo)
		}

		length := int(record[0])
		offset := uint32(record[1])<<8 | uint32(record[2])
		recType := record[3]
		payload := record[4 : len(record)-1]
		if len(payload) != length {
			return nil, fmt.Errorf("%s:%d: record length mismatch", path, lineNo)
		}

		switch recType {
		case recData:
			abs := base + offset
			if !open {
				start = abs
				open = true
			}
			next := start + uint32(len(buf))
			switch {
			case abs == next:
				// contiguous
			case abs > next:
				for i := next; i < abs; i++ {
					buf = append(buf, 0xFF)
				}
			default:
				// Address moved backwards: a new run.
				flush()
				start = abs
				open = true
			}
			buf = append(buf, payload...)

		case recExtendedLinear:
			if length != 2 {
				return nil, fmt.Errorf("%s:%d: bad extended linear address record", path, lineNo)
			}
			newBase := uint32(payload[0])<<24 | uint32(payload[1])<<16
			if newBase != base {
				flush()
				base = newBase
			}

		case recEOF:
			flush()

		case recStartSegment, recStartLinearAddr:
			// Entry point records are irrelevant to flashing.

		case recExtendedSegment:
			return nil, fmt.Errorf("%s:%d: segment addressing not supported", path, lineNo)

		default:
			return nil, fmt.Errorf("%s:%d: unsupported record type 0x%02X", path, lineNo, recType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: no data records; for raw binaries use <file@address>", path)
	}
	return targets, nil
}
