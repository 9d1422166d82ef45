// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Thermoquad/cinder/pkg/sfproto"
)

// DefaultBaud is the rate the bootloader listens at out of reset. Sessions
// always open at this rate and renegotiate afterwards if asked.
const DefaultBaud = 1000000

// Config describes one tool invocation's connection parameters.
type Config struct {
	Chip   string
	Memory MemoryType
	Port   string
	Baud   int

	Before          ResetAction
	After           ResetAction
	ConnectAttempts int // ≤0 means unbounded
	Compat          bool

	// Sink receives progress events; nil discards them.
	Sink EventSink

	// OpenTransport overrides transport creation, for tests. Nil uses Open.
	OpenTransport func(port string, baud int) (Transport, error)
}

// Options control one WriteFlash invocation.
type Options struct {
	Verify     bool
	NoCompress bool
	EraseAll   bool
}

// Session is the live connection state for one tool invocation. It
// exclusively owns its transport and holds exactly one chip profile for its
// lifetime. Sessions are not safe for concurrent use; the protocol is
// half-duplex and strictly sequential.
type Session struct {
	transport Transport
	codec     *sfproto.Codec
	profile   ChipProfile
	timing    Timing
	sequencer *Sequencer
	engine    *Engine
	sink      EventSink
	after     ResetAction
	closed    bool
}

// Connect opens the transport and drives the handshake to Ready. On failure
// the post-operation reset action still runs and the transport is closed
// before the error is returned.
func Connect(cfg Config) (*Session, error) {
	profile, err := Lookup(cfg.Chip, cfg.Memory)
	if err != nil {
		return nil, err
	}

	sink := cfg.Sink
	if sink == nil {
		sink = NopSink
	}

	timing := DefaultTiming()
	if cfg.Compat {
		timing = CompatTiming()
	}

	open := cfg.OpenTransport
	if open == nil {
		open = Open
	}
	transport, err := open(cfg.Port, DefaultBaud)
	if err != nil {
		return nil, err
	}

	codec := sfproto.NewCodec(transport, profile.Checksum)
	s := &Session{
		transport: transport,
		codec:     codec,
		profile:   profile,
		timing:    timing,
		sequencer: NewSequencer(transport, codec, profile, timing, cfg.ConnectAttempts, sink),
		engine:    NewEngine(codec, profile, timing, sink),
		sink:      sink,
		after:     cfg.After,
	}

	if err := s.sequencer.Establish(cfg.Before); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Baud != 0 && cfg.Baud != DefaultBaud {
		if err := s.setBaud(cfg.Baud); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// setBaud renegotiates the link speed with the bootloader, then follows on
// the local side once the target has switched over.
func (s *Session) setBaud(baud int) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(baud))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(s.timing.SettleDelay/time.Millisecond))

	req := sfproto.Frame{Opcode: sfproto.OpSetBaud, Payload: payload}
	resp, err := s.codec.Exchange(req, s.timing.CommandTimeout)
	if err != nil {
		return fmt.Errorf("set baud %d: %w", baud, err)
	}
	if resp.Status() != sfproto.StatusOK {
		return fmt.Errorf("set baud %d rejected with status 0x%02X", baud, resp.Status())
	}

	if err := s.transport.SetBaud(baud); err != nil {
		return fmt.Errorf("set local baud %d: %w", baud, err)
	}
	time.Sleep(s.timing.SettleDelay)
	return s.transport.Flush()
}

// WriteFlash programs every target in caller order. All address ranges are
// validated against the chip profile before any bytes are sent. A fatal error
// aborts the remaining targets; cleanup still happens in Close.
func (s *Session) WriteFlash(targets []TransferTarget, opts Options) error {
	for _, t := range targets {
		if err := s.profile.ValidateRange(t.Address, len(t.Data)); err != nil {
			return fmt.Errorf("%s: %w", t.Path, err)
		}
	}

	if opts.EraseAll {
		if err := s.engine.EraseAll(targets); err != nil {
			return err
		}
	}

	for _, t := range targets {
		// When verification is wanted and the flash was not just bulk-erased,
		// an unchanged binary can be skipped outright.
		if opts.Verify && !opts.EraseAll && s.engine.Probe(t) {
			s.sink.Emit(Event{Stage: StageProbe, Addr: t.Address, Message: "already up to date, skipping"})
			continue
		}

		if err := s.engine.WriteTarget(t, !opts.NoCompress); err != nil {
			return fmt.Errorf("%s @ 0x%08X: %w", t.Path, t.Address, err)
		}

		if opts.Verify {
			if err := s.engine.Verify(t); err != nil {
				return fmt.Errorf("%s: %w", t.Path, err)
			}
		}
	}

	return nil
}

// Close performs the post-operation reset action and releases the transport.
// Cleanup is best-effort and runs even after a failed handshake; closing a
// closed session is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.after == SoftReset {
		s.sink.Emit(Event{Stage: StagePostReset, Message: "resetting target"})
		if s.sequencer.State() == SeqReady {
			// Fire and forget: the target reboots without acknowledging.
			_ = s.codec.WriteFrame(sfproto.Frame{Opcode: sfproto.OpReset})
		} else {
			// Never reached the bootloader; pulse the reset strap instead so
			// the target is not left wedged mid-handshake.
			_ = s.transport.SetResetLine(true)
			time.Sleep(s.timing.SettleDelay)
			_ = s.transport.SetResetLine(false)
		}
	}

	return s.transport.Close()
}

// Profile returns the session's chip profile.
func (s *Session) Profile() ChipProfile { return s.profile }
