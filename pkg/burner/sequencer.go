// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/cinder/pkg/sfproto"
)

// ResetAction is what to do to the target before or after an operation.
type ResetAction string

// Reset actions. Before an operation, soft_reset toggles the hardware reset
// strap; after an operation it asks the bootloader to reboot into the
// application.
const (
	NoReset   ResetAction = "no_reset"
	SoftReset ResetAction = "soft_reset"
)

// SeqState is the connection sequencer state.
type SeqState int

// Sequencer states.
const (
	SeqIdle SeqState = iota
	SeqPreReset
	SeqSyncing
	SeqIdentified
	SeqReady
	SeqFailed
)

// Sequencer drives the handshake state machine: pre-operation reset, repeated
// sync attempts with a bounded or unbounded budget, and chip identification.
//
// Bootloaders frequently are not listening at power-up (application firmware
// may be running), so the sequencer polls actively, optionally with
// reset-assisted recovery.
type Sequencer struct {
	transport Transport
	codec     *sfproto.Codec
	profile   ChipProfile
	timing    Timing
	sink      EventSink

	// maxAttempts bounds sync attempts; zero or negative means unbounded.
	maxAttempts int
	attempt     int
	state       SeqState
}

// NewSequencer creates a sequencer over an open transport.
func NewSequencer(tr Transport, codec *sfproto.Codec, profile ChipProfile, timing Timing, maxAttempts int, sink EventSink) *Sequencer {
	if sink == nil {
		sink = NopSink
	}
	return &Sequencer{
		transport:   tr,
		codec:       codec,
		profile:     profile,
		timing:      timing,
		sink:        sink,
		maxAttempts: maxAttempts,
		state:       SeqIdle,
	}
}

// State returns the current sequencer state.
func (s *Sequencer) State() SeqState { return s.state }

// Attempts returns how many sync attempts have been made.
func (s *Sequencer) Attempts() int { return s.attempt }

// Establish runs the handshake to the Ready state: the pre-operation reset
// action, sync polling, then chip identification.
func (s *Sequencer) Establish(before ResetAction) error {
	s.state = SeqPreReset
	if before == SoftReset {
		s.sink.Emit(Event{Stage: StagePreReset, Message: "toggling reset line"})
		if err := s.hardReset(); err != nil {
			s.state = SeqFailed
			return fmt.Errorf("pre-operation reset: %w", err)
		}
	}

	// Stale application output may be sitting in the buffers.
	if err := s.transport.Flush(); err != nil {
		s.state = SeqFailed
		return fmt.Errorf("flush transport: %w", err)
	}

	if err := s.sync(); err != nil {
		s.state = SeqFailed
		return err
	}
	s.state = SeqIdentified

	if err := s.identify(); err != nil {
		s.state = SeqFailed
		return err
	}

	s.state = SeqReady
	s.sink.Emit(Event{Stage: StageReady, Message: "handshake complete"})
	return nil
}

// hardReset pulses the reset strap with a settle delay on both edges.
func (s *Sequencer) hardReset() error {
	if err := s.transport.SetResetLine(true); err != nil {
		return err
	}
	time.Sleep(s.timing.SettleDelay)
	if err := s.transport.SetResetLine(false); err != nil {
		return err
	}
	time.Sleep(s.timing.SettleDelay)
	return nil
}

// sync polls the bootloader until it answers or the attempt budget runs out.
// Timeouts, corrupt frames, and stray frames are all retryable here: the
// target may be mid-boot and emitting garbage on the shared UART.
func (s *Sequencer) sync() error {
	s.state = SeqSyncing

	var lastErr error
	for {
		s.attempt++
		s.sink.Emit(Event{Stage: StageSync, Attempt: s.attempt, Message: "sync attempt"})

		req := sfproto.Frame{Opcode: sfproto.OpSync, Payload: sfproto.SyncMagic}
		resp, err := s.codec.Exchange(req, s.timing.SyncTimeout)
		if err == nil && resp.Status() == sfproto.StatusOK {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("sync rejected with status 0x%02X", resp.Status())
		}

		if !retryableSyncError(err) {
			return fmt.Errorf("sync: %w", err)
		}
		lastErr = err

		if s.maxAttempts > 0 && s.attempt >= s.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, s.attempt, lastErr)
		}
		time.Sleep(s.timing.SyncRetryDelay)
	}
}

func retryableSyncError(err error) bool {
	return errors.Is(err, sfproto.ErrTimeout) ||
		errors.Is(err, sfproto.ErrFrameCorrupt) ||
		errors.Is(err, sfproto.ErrUnexpectedOpcode)
}

// identify queries the chip identity and checks it against the requested
// profile. A mismatch is fatal: the operator pointed the tool at the wrong
// target, and retrying cannot change that.
func (s *Sequencer) identify() error {
	s.sink.Emit(Event{Stage: StageIdentify, Message: "querying chip identity"})

	resp, err := s.codec.Exchange(sfproto.Frame{Opcode: sfproto.OpChipID}, s.timing.SyncTimeout)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if resp.Status() != sfproto.StatusOK || len(resp.Payload) < 5 {
		return fmt.Errorf("identify rejected with status 0x%02X", resp.Status())
	}

	chipID := binary.LittleEndian.Uint32(resp.Payload[1:5])
	if chipID != s.profile.ChipID {
		return fmt.Errorf("%w: expected %s (0x%04X), target reports 0x%04X",
			ErrChipMismatch, s.profile.Name, s.profile.ChipID, chipID)
	}
	return nil
}
