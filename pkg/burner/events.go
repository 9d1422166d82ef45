// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import "github.com/rs/zerolog"

// Stage identifies where in the flashing lifecycle an event occurred.
type Stage string

// Lifecycle stages.
const (
	StagePreReset  Stage = "pre_reset"
	StageSync      Stage = "sync"
	StageIdentify  Stage = "identify"
	StageReady     Stage = "ready"
	StageErase     Stage = "erase"
	StageProbe     Stage = "probe"
	StageProgram   Stage = "program"
	StageVerify    Stage = "verify"
	StagePostReset Stage = "post_reset"
)

// Event is one structured progress notification from the engine. The engine's
// behavior never depends on whether anything consumes these.
type Event struct {
	Stage   Stage
	Addr    uint32 // target base address, where applicable
	Bytes   int64  // bytes sent so far for the current target
	Total   int64  // total bytes for the current target
	Chunk   int    // current chunk index (1-based), 0 outside transfers
	Chunks  int    // chunk count for the current target
	Attempt int    // attempt number when a retry occurred, else 0
	Message string
}

// EventSink receives engine progress events.
type EventSink interface {
	Emit(Event)
}

// EventFunc adapts a function to the EventSink interface.
type EventFunc func(Event)

// Emit calls f(e).
func (f EventFunc) Emit(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// NopSink discards all events.
var NopSink EventSink = nopSink{}

// LogSink emits events as structured zerolog records.
type LogSink struct {
	Log zerolog.Logger
}

// Emit logs one event. Retries log at warn level, everything else at debug.
func (s LogSink) Emit(e Event) {
	var ev *zerolog.Event
	if e.Attempt > 0 {
		ev = s.Log.Warn()
	} else {
		ev = s.Log.Debug()
	}
	ev = ev.Str("stage", string(e.Stage))
	if e.Addr != 0 {
		ev = ev.Uint32("addr", e.Addr)
	}
	if e.Total > 0 {
		ev = ev.Int64("bytes", e.Bytes).Int64("total", e.Total).
			Int("chunk", e.Chunk).Int("chunks", e.Chunks)
	}
	if e.Attempt > 0 {
		ev = ev.Int("attempt", e.Attempt)
	}
	ev.Msg(e.Message)
}
