// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import "time"

// Timing is the timing and chunking parameter profile for one session. The
// compat profile is not a separate protocol, only different numbers.
//
// Timeouts come in three classes: short for sync/identify, medium for chunk
// programming, and long for whole-region erase, which can stall the target
// for tens of seconds.
type Timing struct {
	SyncTimeout    time.Duration
	CommandTimeout time.Duration
	EraseTimeout   time.Duration

	// SyncRetryDelay separates consecutive sync attempts.
	SyncRetryDelay time.Duration
	// SettleDelay follows a reset line transition.
	SettleDelay time.Duration

	// ChunkRetries bounds resends of a single chunk on timeout or corruption.
	ChunkRetries int
	// MaxChunk caps the chunk size below the profile's limit. Zero means use
	// the profile limit.
	MaxChunk int
	// InterChunkDelay paces chunk commands on marginal links.
	InterChunkDelay time.Duration
	// Compress permits per-chunk compression when the profile supports it.
	Compress bool
}

// DefaultTiming returns the standard timing profile.
func DefaultTiming() Timing {
	return Timing{
		SyncTimeout:    1 * time.Second,
		CommandTimeout: 4 * time.Second,
		EraseTimeout:   30 * time.Second,
		SyncRetryDelay: 100 * time.Millisecond,
		SettleDelay:    100 * time.Millisecond,
		ChunkRetries:   3,
		Compress:       true,
	}
}

// CompatTiming returns the compatibility profile for unreliable links:
// stretched timeouts, 256-byte chunks, paced transmission, no compression.
func CompatTiming() Timing {
	return Timing{
		SyncTimeout:     2 * time.Second,
		CommandTimeout:  10 * time.Second,
		EraseTimeout:    60 * time.Second,
		SyncRetryDelay:  250 * time.Millisecond,
		SettleDelay:     250 * time.Millisecond,
		ChunkRetries:    5,
		MaxChunk:        256,
		InterChunkDelay: 10 * time.Millisecond,
		Compress:        false,
	}
}

// ChunkSize resolves the effective chunk bound for a profile.
func (t Timing) ChunkSize(p ChipProfile) int {
	if t.MaxChunk > 0 && t.MaxChunk < p.MaxChunk {
		return t.MaxChunk
	}
	return p.MaxChunk
}
