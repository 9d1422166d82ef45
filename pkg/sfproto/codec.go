// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package sfproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Codec errors. These are deliberately distinct: callers retry ErrTimeout
// silently, retry ErrFrameCorrupt with logging, and treat ErrUnexpectedOpcode
// as a protocol contract violation.
var (
	ErrTimeout          = errors.New("timed out waiting for frame")
	ErrFrameCorrupt     = errors.New("frame checksum mismatch")
	ErrUnexpectedOpcode = errors.New("unexpected response opcode")
)

// Port is the byte-level link the codec runs over. Read must return (0, nil)
// when the configured read timeout elapses with no data, matching
// go.bug.st/serial semantics.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
}

// Decoder is the byte-driven frame decoder state machine. It scans the input
// stream for the sync marker sequence and accumulates one frame at a time.
type Decoder struct {
	state    int
	frame    Frame
	lenBytes [4]byte
	lenIndex int
	sumBytes [2]byte
	sumIndex int
	kind     FrameChecksum
}

// NewDecoder creates a frame decoder using the given checksum algorithm.
func NewDecoder(kind FrameChecksum) *Decoder {
	return &Decoder{state: stateSync1, kind: kind}
}

// Reset returns the decoder to its initial sync-hunting state.
func (d *Decoder) Reset() {
	d.state = stateSync1
	d.frame = Frame{}
	d.lenIndex = 0
	d.sumIndex = 0
}

// DecodeByte feeds one byte through the state machine. It returns a completed
// frame, or nil if the frame is incomplete. A checksum mismatch returns
// ErrFrameCorrupt and resets the decoder to hunt for the next sync marker.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateSync1:
		if b == Sync1 {
			d.state = stateSync2
		}
		return nil, nil

	case stateSync2:
		if b == Sync2 {
			d.state = stateOpcode
		} else if b != Sync1 {
			// Not a marker; keep hunting. A repeated Sync1 stays here.
			d.state = stateSync1
		}
		return nil, nil

	case stateOpcode:
		d.frame.Opcode = b
		d.state = stateLength
		return nil, nil

	case stateLength:
		d.lenBytes[d.lenIndex] = b
		d.lenIndex++
		if d.lenIndex < 4 {
			return nil, nil
		}
		length := binary.LittleEndian.Uint32(d.lenBytes[:])
		if length > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: declared length %d exceeds limit", ErrFrameCorrupt, length)
		}
		d.frame.Payload = make([]byte, 0, length)
		if length == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.frame.Payload = append(d.frame.Payload, b)
		if len(d.frame.Payload) >= cap(d.frame.Payload) {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		d.sumBytes[d.sumIndex] = b
		d.sumIndex++
		if d.sumIndex < 2 {
			return nil, nil
		}
		received := binary.LittleEndian.Uint16(d.sumBytes[:])
		expected := d.checksumOf(d.frame)
		frame := d.frame
		d.Reset()
		if received != expected {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrFrameCorrupt, expected, received)
		}
		return &frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("%w: invalid decoder state", ErrFrameCorrupt)
	}
}

func (d *Decoder) checksumOf(f Frame) uint16 {
	buf := make([]byte, 5+len(f.Payload))
	buf[0] = f.Opcode
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(f.Payload)))
	copy(buf[5:], f.Payload)
	return d.kind.Checksum(buf)
}

// Codec frames commands and responses over a Port. It is not safe for
// concurrent use; the protocol is half-duplex with one outstanding request.
type Codec struct {
	port    Port
	kind    FrameChecksum
	decoder *Decoder
	readBuf []byte
}

// NewCodec creates a codec over port using the given checksum algorithm.
func NewCodec(port Port, kind FrameChecksum) *Codec {
	return &Codec{
		port:    port,
		kind:    kind,
		decoder: NewDecoder(kind),
		readBuf: make([]byte, 256),
	}
}

// WriteFrame encodes and transmits one frame.
func (c *Codec) WriteFrame(f Frame) error {
	data, err := f.Encode(c.kind)
	if err != nil {
		return err
	}
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame consumes bytes from the port until a complete, checksum-valid
// frame arrives or the timeout elapses. Line noise before the sync marker is
// skipped silently; a frame that fails its checksum returns ErrFrameCorrupt.
func (c *Codec) ReadFrame(timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	c.decoder.Reset()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, ErrTimeout
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return Frame{}, fmt.Errorf("set read timeout: %w", err)
		}

		n, err := c.port.Read(c.readBuf)
		if err != nil {
			return Frame{}, fmt.Errorf("read frame: %w", err)
		}
		if n == 0 {
			// Timeout with no data.
			return Frame{}, ErrTimeout
		}

		for i := 0; i < n; i++ {
			frame, err := c.decoder.DecodeByte(c.readBuf[i])
			if err != nil {
				return Frame{}, err
			}
			if frame != nil {
				return *frame, nil
			}
		}
	}
}

// Exchange transmits a request and waits for its matching response. A response
// whose opcode is not the request opcode with ResponseFlag set returns
// ErrUnexpectedOpcode.
func (c *Codec) Exchange(req Frame, timeout time.Duration) (Frame, error) {
	if err := c.WriteFrame(req); err != nil {
		return Frame{}, err
	}

	resp, err := c.ReadFrame(timeout)
	if err != nil {
		return Frame{}, err
	}
	if resp.Opcode != req.Opcode|ResponseFlag {
		return Frame{}, fmt.Errorf("%w: sent 0x%02X, got 0x%02X", ErrUnexpectedOpcode, req.Opcode, resp.Opcode)
	}
	return resp, nil
}
