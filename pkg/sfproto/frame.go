// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package sfproto

import (
	"encoding/binary"
	"fmt"
)

// Frame is one protocol packet: an opcode plus its payload. Frames are
// constructed transiently per exchange and never persisted.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// IsResponse reports whether the frame is a response frame.
func (f Frame) IsResponse() bool {
	return f.Opcode&ResponseFlag != 0
}

// Status returns the status byte of a response frame, or StatusFail if the
// frame has no payload.
func (f Frame) Status() byte {
	if len(f.Payload) == 0 {
		return StatusFail
	}
	return f.Payload[0]
}

// Encode serializes the frame to wire format using the given checksum
// algorithm: SYNC1 SYNC2 | opcode | length u32 LE | payload | checksum u16 LE.
// The checksum covers opcode, length and payload.
func (f Frame) Encode(kind FrameChecksum) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(f.Payload), MaxPayloadSize)
	}

	buf := make([]byte, headerSize+len(f.Payload)+checksumSize)
	buf[0] = Sync1
	buf[1] = Sync2
	buf[2] = f.Opcode
	binary.LittleEndian.PutUint32(buf[3:7], uint32(len(f.Payload)))
	copy(buf[7:], f.Payload)

	sum := kind.Checksum(buf[2 : 7+len(f.Payload)])
	binary.LittleEndian.PutUint16(buf[7+len(f.Payload):], sum)

	return buf, nil
}
