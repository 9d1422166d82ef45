// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlan_RoundTrip(t *testing.T) {
	// Half compressible, half incompressible, so both chunk forms appear.
	rng := rand.New(rand.NewSource(42))
	data := bytes.Repeat([]byte{0xA5}, 10000)
	noise := make([]byte, 10000)
	rng.Read(noise)
	data = append(data, noise...)

	plan, err := BuildPlan(0x10000000, data, 4096, true)
	require.NoError(t, err)
	require.NotEmpty(t, plan)

	var rebuilt []byte
	next := uint32(0x10000000)
	for _, chunk := range plan {
		assert.Equal(t, next, chunk.Offset, "chunks must be contiguous and in increasing order")
		assert.LessOrEqual(t, chunk.RawLen, 4096)
		assert.LessOrEqual(t, len(chunk.Data), chunk.RawLen, "wire size must never exceed raw size")

		raw := chunk.Data
		if chunk.Compressed {
			raw, err = Inflate(chunk.Data)
			require.NoError(t, err)
		}
		require.Len(t, raw, chunk.RawLen)

		rebuilt = append(rebuilt, raw...)
		next += uint32(chunk.RawLen)
	}

	assert.Equal(t, data, rebuilt)
}

func TestBuildPlan_CompressionOff(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 9000)

	plan, err := BuildPlan(0x10000000, data, 4096, false)
	require.NoError(t, err)
	require.Len(t, plan, 3)

	for _, chunk := range plan {
		assert.False(t, chunk.Compressed)
		assert.Len(t, chunk.Data, chunk.RawLen)
	}
	assert.Equal(t, 4096, plan[0].RawLen)
	assert.Equal(t, 808, plan[2].RawLen)
}

func TestBuildPlan_IncompressibleStaysRaw(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(data)

	plan, err := BuildPlan(0x10000000, data, 4096, true)
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.False(t, plan[0].Compressed, "random data must fall back to raw")
	assert.Equal(t, data, plan[0].Data)
}

func TestBuildPlan_Empty(t *testing.T) {
	plan, err := BuildPlan(0x10000000, nil, 4096, true)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestBuildPlan_InvalidChunkSize(t *testing.T) {
	_, err := BuildPlan(0x10000000, []byte{1}, 0, false)
	assert.Error(t, err)
}
