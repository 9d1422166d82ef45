// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package sfproto implements the wire protocol spoken by the SiFli-class UART
// bootloader: command/response framing, per-frame checksums, and the CRC-32
// digest the bootloader uses to verify flash regions.
package sfproto

// Frame sync markers. The bootloader scans for this two-byte sequence to
// recover frame alignment after line noise.
const (
	Sync1 = 0x7E
	Sync2 = 0x79
)

// Command opcodes. A response carries the request opcode with ResponseFlag set.
const (
	OpSync     = 0x01
	OpChipID   = 0x02
	OpEraseAll = 0x10
	OpProgram  = 0x11
	OpProgramZ = 0x12
	OpVerify   = 0x13
	OpSetBaud  = 0x20
	OpReset    = 0x21

	ResponseFlag = 0x80
)

// Response status codes (first payload byte of every response frame).
const (
	StatusOK        = 0x00
	StatusFail      = 0x01
	StatusBadRange  = 0x02
	StatusBadLength = 0x03
	StatusBusy      = 0x04
)

// Handshake payload carried by OpSync. The bootloader echoes it back in the
// sync response.
var SyncMagic = []byte("ATSF32")

// Frame size limits. Length is a 32-bit field on the wire; MaxPayloadSize
// bounds what the decoder will accept before declaring the stream corrupt.
const (
	MaxPayloadSize = 512 * 1024
	headerSize     = 2 + 1 + 4 // sync markers + opcode + length
	checksumSize   = 2
)

// Decoder states (internal)
const (
	stateSync1 = iota
	stateSync2
	stateOpcode
	stateLength
	statePayload
	stateChecksum
)
