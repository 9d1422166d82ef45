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

// Engine streams transfer plans to a Ready target: erase, program chunks in
// strictly increasing offset order, and request verification digests. The
// protocol is half-duplex with one outstanding request, so the engine is a
// plain sequential driver.
type Engine struct {
	codec   *sfproto.Codec
	profile ChipProfile
	timing  Timing
	sink    EventSink
}

// NewEngine creates a transfer engine for an established session.
func NewEngine(codec *sfproto.Codec, profile ChipProfile, timing Timing, sink EventSink) *Engine {
	if sink == nil {
		sink = NopSink
	}
	return &Engine{codec: codec, profile: profile, timing: timing, sink: sink}
}

// EraseAll issues a whole-region erase for every distinct region touched by
// the targets. Regions are identified by their 16 MiB base, and each base is
// erased once regardless of how many targets land in it. Erase uses the
// extended timeout class; the target can stall for tens of seconds.
func (e *Engine) EraseAll(targets []TransferTarget) error {
	seen := make(map[uint32]bool)
	for _, t := range targets {
		base := t.Address & 0xFF000000
		if seen[base] {
			continue
		}
		seen[base] = true

		e.sink.Emit(Event{Stage: StageErase, Addr: t.Address, Message: "erasing region"})

		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, t.Address)
		req := sfproto.Frame{Opcode: sfproto.OpEraseAll, Payload: payload}

		resp, err := e.codec.Exchange(req, e.timing.EraseTimeout)
		if err != nil {
			return fmt.Errorf("%w: erase region 0x%08X: %v", ErrTransferFailed, base, err)
		}
		if resp.Status() != sfproto.StatusOK {
			return fmt.Errorf("%w: erase region 0x%08X rejected with status 0x%02X",
				ErrTransferFailed, base, resp.Status())
		}
	}
	return nil
}

// Probe asks the target whether the region already holds the target's bytes,
// so unchanged binaries can be skipped. Any failure means "not a match".
func (e *Engine) Probe(t TransferTarget) bool {
	e.sink.Emit(Event{Stage: StageProbe, Addr: t.Address, Message: "checking for matching flash contents"})

	resp, err := e.codec.Exchange(verifyFrame(t), e.timing.CommandTimeout)
	return err == nil && resp.Status() == sfproto.StatusOK
}

// WriteTarget programs one target. Chunks are sent in increasing offset
// order; a chunk that times out or arrives corrupt is resent up to the retry
// budget before the transfer is declared failed. Partial writes are not
// rolled back; a failed transfer requires a re-run.
func (e *Engine) WriteTarget(t TransferTarget, compress bool) error {
	chunkSize := e.timing.ChunkSize(e.profile)
	useCompression := compress && e.timing.Compress &&
		e.profile.Compress && e.profile.Supports(sfproto.OpProgramZ)

	plan, err := BuildPlan(t.Address, t.Data, chunkSize, useCompression)
	if err != nil {
		return err
	}

	total := int64(len(t.Data))
	var sent int64

	for i, chunk := range plan {
		if err := e.writeChunk(chunk); err != nil {
			return fmt.Errorf("chunk %d/%d at 0x%08X: %w", i+1, len(plan), chunk.Offset, err)
		}

		sent += int64(chunk.RawLen)
		e.sink.Emit(Event{
			Stage: StageProgram, Addr: t.Address,
			Bytes: sent, Total: total,
			Chunk: i + 1, Chunks: len(plan),
		})

		if e.timing.InterChunkDelay > 0 {
			time.Sleep(e.timing.InterChunkDelay)
		}
	}

	return nil
}

// writeChunk sends one program command and awaits its acknowledgement,
// resending on transient link errors. Resending is safe: programming the same
// chunk twice writes the same bytes to the same offset.
func (e *Engine) writeChunk(chunk Chunk) error {
	req := programFrame(chunk)

	var lastErr error
	for attempt := 0; attempt <= e.timing.ChunkRetries; attempt++ {
		if attempt > 0 {
			e.sink.Emit(Event{Stage: StageProgram, Addr: chunk.Offset, Attempt: attempt, Message: "resending chunk"})
		}

		resp, err := e.codec.Exchange(req, e.timing.CommandTimeout)
		if err != nil {
			if errors.Is(err, sfproto.ErrTimeout) || errors.Is(err, sfproto.ErrFrameCorrupt) {
				lastErr = err
				continue
			}
			// Protocol contract violation or I/O failure; not retryable.
			return err
		}
		if resp.Status() != sfproto.StatusOK {
			return fmt.Errorf("%w: program rejected with status 0x%02X", ErrTransferFailed, resp.Status())
		}
		return nil
	}

	return fmt.Errorf("%w: retries exhausted: %v", ErrTransferFailed, lastErr)
}

// Verify asks the target to digest the written region and compares it against
// the digest of the source binary.
func (e *Engine) Verify(t TransferTarget) error {
	e.sink.Emit(Event{Stage: StageVerify, Addr: t.Address, Message: "verifying"})

	resp, err := e.codec.Exchange(verifyFrame(t), e.timing.CommandTimeout)
	if err != nil {
		return fmt.Errorf("verify 0x%08X: %w", t.Address, err)
	}
	if resp.Status() != sfproto.StatusOK {
		return fmt.Errorf("%w: region 0x%08X (%d bytes)", ErrVerifyFailed, t.Address, len(t.Data))
	}
	return nil
}

// programFrame builds the program command for a chunk. Compressed chunks use
// a separate opcode and carry the raw length so the stub can bound inflation.
func programFrame(chunk Chunk) sfproto.Frame {
	if chunk.Compressed {
		payload := make([]byte, 8+len(chunk.Data))
		binary.LittleEndian.PutUint32(payload[0:4], chunk.Offset)
		binary.LittleEndian.PutUint32(payload[4:8], uint32(chunk.RawLen))
		copy(payload[8:], chunk.Data)
		return sfproto.Frame{Opcode: sfproto.OpProgramZ, Payload: payload}
	}

	payload := make([]byte, 4+len(chunk.Data))
	binary.LittleEndian.PutUint32(payload[0:4], chunk.Offset)
	copy(payload[4:], chunk.Data)
	return sfproto.Frame{Opcode: sfproto.OpProgram, Payload: payload}
}

// verifyFrame builds the verify command: address, length, and the local
// region digest of the source binary.
func verifyFrame(t TransferTarget) sfproto.Frame {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], t.Address)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(len(t.Data)))
	binary.LittleEndian.PutUint32(payload[8:12], sfproto.RegionDigest(t.Data))
	return sfproto.Frame{Opcode: sfproto.OpVerify, Payload: payload}
}
