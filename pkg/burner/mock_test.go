// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/Thermoquad/cinder/pkg/sfproto"
)

// mockTransport simulates a bootloader target behind the Transport interface.
// Host writes are decoded into frames and handed to the handler; whatever the
// handler returns is queued for the host to read. An empty read queue reads
// as (0, nil), the way a serial port reports a timeout.
type mockTransport struct {
	t        *testing.T
	checksum sfproto.FrameChecksum
	decoder  *sfproto.Decoder

	// handler maps one request to raw response bytes; nil bytes means the
	// target stays silent.
	handler func(req sfproto.Frame) []byte

	readBuf  bytes.Buffer
	requests []sfproto.Frame

	timeouts   []time.Duration
	resetLine  []bool
	baudRates  []int
	flushCount int
	closed     bool
}

func newMockTransport(t *testing.T, checksum sfproto.FrameChecksum) *mockTransport {
	return &mockTransport{
		t:        t,
		checksum: checksum,
		decoder:  sfproto.NewDecoder(checksum),
	}
}

func (m *mockTransport) Read(p []byte) (int, error) {
	if m.readBuf.Len() == 0 {
		return 0, nil
	}
	return m.readBuf.Read(p)
}

func (m *mockTransport) Write(p []byte) (int, error) {
	for _, b := range p {
		frame, err := m.decoder.DecodeByte(b)
		if err != nil {
			m.t.Fatalf("mock target received corrupt frame: %v", err)
		}
		if frame == nil {
			continue
		}
		m.requests = append(m.requests, *frame)
		if m.handler != nil {
			if resp := m.handler(*frame); resp != nil {
				m.readBuf.Write(resp)
			}
		}
	}
	return len(p), nil
}

func (m *mockTransport) Close() error { m.closed = true; return nil }

func (m *mockTransport) SetReadTimeout(t time.Duration) error {
	m.timeouts = append(m.timeouts, t)
	return nil
}

func (m *mockTransport) SetBaud(baud int) error {
	m.baudRates = append(m.baudRates, baud)
	return nil
}

func (m *mockTransport) SetResetLine(asserted bool) error {
	m.resetLine = append(m.resetLine, asserted)
	return nil
}

func (m *mockTransport) Flush() error { m.flushCount++; return nil }

// opcodes returns the opcode sequence of all received requests.
func (m *mockTransport) opcodes() []byte {
	ops := make([]byte, len(m.requests))
	for i, f := range m.requests {
		ops[i] = f.Opcode
	}
	return ops
}

// countOpcode returns how many received requests carry the given opcode.
func (m *mockTransport) countOpcode(op byte) int {
	n := 0
	for _, f := range m.requests {
		if f.Opcode == op {
			n++
		}
	}
	return n
}

// encodeResponse builds the wire bytes of a response frame.
func (m *mockTransport) encodeResponse(f sfproto.Frame) []byte {
	data, err := f.Encode(m.checksum)
	if err != nil {
		m.t.Fatalf("mock response encode: %v", err)
	}
	return data
}

func (m *mockTransport) okResponse(reqOpcode byte) []byte {
	return m.encodeResponse(sfproto.Frame{
		Opcode:  reqOpcode | sfproto.ResponseFlag,
		Payload: []byte{sfproto.StatusOK},
	})
}

func (m *mockTransport) statusResponse(reqOpcode, status byte) []byte {
	return m.encodeResponse(sfproto.Frame{
		Opcode:  reqOpcode | sfproto.ResponseFlag,
		Payload: []byte{status},
	})
}

// simTarget is a behavioral bootloader model: it services sync, identify,
// erase, program (raw and compressed), verify, and baud commands against an
// in-memory sparse flash.
type simTarget struct {
	tr     *mockTransport
	chipID uint32
	flash  map[uint32]byte
}

func newSimTarget(tr *mockTransport, chipID uint32) *simTarget {
	sim := &simTarget{tr: tr, chipID: chipID, flash: make(map[uint32]byte)}
	tr.handler = sim.handle
	return sim
}

func (s *simTarget) handle(req sfproto.Frame) []byte {
	switch req.Opcode {
	case sfproto.OpSync:
		if !bytes.Equal(req.Payload, sfproto.SyncMagic) {
			return s.tr.statusResponse(req.Opcode, sfproto.StatusFail)
		}
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpChipID:
		payload := make([]byte, 5)
		payload[0] = sfproto.StatusOK
		binary.LittleEndian.PutUint32(payload[1:], s.chipID)
		return s.tr.encodeResponse(sfproto.Frame{Opcode: req.Opcode | sfproto.ResponseFlag, Payload: payload})

	case sfproto.OpEraseAll:
		base := binary.LittleEndian.Uint32(req.Payload) & 0xFF000000
		for addr := range s.flash {
			if addr&0xFF000000 == base {
				delete(s.flash, addr)
			}
		}
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpProgram:
		addr := binary.LittleEndian.Uint32(req.Payload[0:4])
		s.write(addr, req.Payload[4:])
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpProgramZ:
		addr := binary.LittleEndian.Uint32(req.Payload[0:4])
		rawLen := binary.LittleEndian.Uint32(req.Payload[4:8])
		raw, err := Inflate(req.Payload[8:])
		if err != nil || uint32(len(raw)) != rawLen {
			return s.tr.statusResponse(req.Opcode, sfproto.StatusBadLength)
		}
		s.write(addr, raw)
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpVerify:
		addr := binary.LittleEndian.Uint32(req.Payload[0:4])
		length := binary.LittleEndian.Uint32(req.Payload[4:8])
		want := binary.LittleEndian.Uint32(req.Payload[8:12])
		if s.digest(addr, length) != want {
			return s.tr.statusResponse(req.Opcode, sfproto.StatusFail)
		}
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpSetBaud:
		return s.tr.okResponse(req.Opcode)

	case sfproto.OpReset:
		// The target reboots without acknowledging.
		return nil

	default:
		return s.tr.statusResponse(req.Opcode, sfproto.StatusFail)
	}
}

func (s *simTarget) write(addr uint32, data []byte) {
	for i, b := range data {
		s.flash[addr+uint32(i)] = b
	}
}

// region reads flash contents; unwritten bytes read as 0xFF, the erased value.
func (s *simTarget) region(addr, length uint32) []byte {
	out := make([]byte, length)
	for i := range out {
		if b, ok := s.flash[addr+uint32(i)]; ok {
			out[i] = b
		} else {
			out[i] = 0xFF
		}
	}
	return out
}

func (s *simTarget) digest(addr, length uint32) uint32 {
	return sfproto.RegionDigest(s.region(addr, length))
}

// fastTiming keeps test retries quick.
func fastTiming() Timing {
	return Timing{
		SyncTimeout:    20 * time.Millisecond,
		CommandTimeout: 20 * time.Millisecond,
		EraseTimeout:   50 * time.Millisecond,
		SyncRetryDelay: time.Millisecond,
		SettleDelay:    time.Millisecond,
		ChunkRetries:   3,
		Compress:       true,
	}
}
