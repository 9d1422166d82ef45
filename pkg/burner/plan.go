// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

// TransferTarget is one resolved (binary, destination address) pair. Targets
// are immutable once resolved; address parsing and file reading are the
// caller's responsibility.
type TransferTarget struct {
	Path    string
	Address uint32
	Data    []byte
}

// Chunk is one planned program command: a bounded slice of the binary at a
// destination offset, optionally compressed.
type Chunk struct {
	Offset     uint32
	Data       []byte // wire payload: raw or zlib-compressed
	RawLen     int    // uncompressed length
	Compressed bool
}

// BuildPlan splits data into chunks of at most maxChunk bytes starting at
// addr. Chunks are contiguous, non-overlapping, and in increasing offset
// order; their concatenation (after decompression) reconstructs data exactly.
//
// When compress is set, each chunk is deflated independently; a chunk whose
// compressed form is not smaller than its raw form is sent raw, so the
// transmitted size never exceeds the raw chunk size.
func BuildPlan(addr uint32, data []byte, maxChunk int, compress bool) ([]Chunk, error) {
	if maxChunk <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", maxChunk)
	}

	chunks := make([]Chunk, 0, (len(data)+maxChunk-1)/maxChunk)
	for off := 0; off < len(data); off += maxChunk {
		end := off + maxChunk
		if end > len(data) {
			end = len(data)
		}
		raw := data[off:end]

		chunk := Chunk{
			Offset: addr + uint32(off),
			Data:   raw,
			RawLen: len(raw),
		}

		if compress {
			deflated, err := deflate(raw)
			if err != nil {
				return nil, fmt.Errorf("compress chunk at 0x%08X: %w", chunk.Offset, err)
			}
			if len(deflated) < len(raw) {
				chunk.Data = deflated
				chunk.Compressed = true
			}
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a zlib-deflated chunk payload. Used by tests and by
// callers that need to reconstruct the plan's source bytes.
func Inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
