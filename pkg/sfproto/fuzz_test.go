// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package sfproto

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzz_DecoderRandomBytes feeds random garbage through the decoder. The
// decoder must never panic and must keep hunting for sync markers.
func TestFuzz_DecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	decoder := NewDecoder(ChecksumCRC16)

	for round := 0; round < getFuzzRounds(); round++ {
		chunk := make([]byte, rng.Intn(64)+1)
		rng.Read(chunk)
		for _, b := range chunk {
			// Errors are expected; panics are not.
			decoder.DecodeByte(b)
		}
	}
}

// TestFuzz_DecoderRoundTrip encodes random frames, optionally prefixed with
// noise, and checks they decode back bit-exact.
func TestFuzz_DecoderRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		kind := ChecksumCRC16
		if rng.Intn(2) == 1 {
			kind = ChecksumSum16
		}

		payload := make([]byte, rng.Intn(256))
		rng.Read(payload)
		sent := Frame{Opcode: byte(rng.Intn(0x7F) + 1), Payload: payload}

		wire, err := sent.Encode(kind)
		if err != nil {
			t.Fatalf("round %d: encode error: %v", round, err)
		}

		decoder := NewDecoder(kind)
		var got *Frame
		for _, b := range wire {
			frame, err := decoder.DecodeByte(b)
			if err != nil {
				t.Fatalf("round %d: decode error: %v", round, err)
			}
			if frame != nil {
				got = frame
			}
		}

		if got == nil {
			t.Fatalf("round %d: no frame decoded", round)
		}
		if got.Opcode != sent.Opcode || !bytes.Equal(got.Payload, sent.Payload) {
			t.Fatalf("round %d: frame mismatch", round)
		}
	}
}

// TestFuzz_DecoderBitFlips flips one bit of an encoded frame past the sync
// markers. CRC-16-CCITT detects every single-bit error, so the decoder must
// never hand back a completed frame.
func TestFuzz_DecoderBitFlips(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		payload := make([]byte, rng.Intn(64)+1)
		rng.Read(payload)
		sent := Frame{Opcode: OpProgram, Payload: payload}

		wire, err := sent.Encode(ChecksumCRC16)
		if err != nil {
			t.Fatalf("round %d: encode error: %v", round, err)
		}

		// Flip within payload or checksum; a flip in the length field shifts
		// the frame boundary instead of corrupting covered bytes.
		pos := 7 + rng.Intn(len(wire)-7)
		wire[pos] ^= 1 << uint(rng.Intn(8))

		decoder := NewDecoder(ChecksumCRC16)
		for _, b := range wire {
			frame, _ := decoder.DecodeByte(b)
			if frame != nil {
				t.Fatalf("round %d: corrupted frame passed checksum (flip at %d)", round, pos)
			}
		}
	}
}
