// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	sink.Emit(Event{Stage: StageProgram, Addr: 0x12000000, Bytes: 512, Total: 1024, Chunk: 1, Chunks: 2})
	sink.Emit(Event{Stage: StageProgram, Attempt: 2, Message: "resending chunk"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte{'\n'})
	assert.Len(t, lines, 2)

	assert.Contains(t, string(lines[0]), `"level":"debug"`)
	assert.Contains(t, string(lines[0]), `"stage":"program"`)
	assert.Contains(t, string(lines[0]), `"total":1024`)

	assert.Contains(t, string(lines[1]), `"level":"warn"`, "retries are warnings")
	assert.Contains(t, string(lines[1]), `"attempt":2`)
}

func TestEventFunc(t *testing.T) {
	var got Event
	EventFunc(func(e Event) { got = e }).Emit(Event{Stage: StageSync, Attempt: 3})
	assert.Equal(t, StageSync, got.Stage)
	assert.Equal(t, 3, got.Attempt)
}
