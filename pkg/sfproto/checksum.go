// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package sfproto

import "hash/crc32"

// FrameChecksum selects the per-frame checksum algorithm. The algorithm is
// fixed per chip family and must match the target's bootloader exactly.
type FrameChecksum int

const (
	// ChecksumCRC16 is CRC-16-CCITT (poly 0x1021, init 0xFFFF).
	ChecksumCRC16 FrameChecksum = iota
	// ChecksumSum16 is a plain 16-bit additive sum, used by the NAND/SD
	// second-stage stubs.
	ChecksumSum16
)

const (
	crc16Polynomial = 0x1021
	crc16Initial    = 0xFFFF
)

// CRC16 computes CRC-16-CCITT over data.
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Initial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Sum16 computes the 16-bit additive checksum over data.
func Sum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// Checksum computes the frame checksum for data using the given algorithm.
func (k FrameChecksum) Checksum(data []byte) uint16 {
	if k == ChecksumSum16 {
		return Sum16(data)
	}
	return CRC16(data)
}

var regionTable = crc32.MakeTable(crc32.IEEE)

// RegionDigest computes the flash-region digest the bootloader returns for
// verify requests: reflected CRC-32 over poly 0x04C11DB7 with a zero initial
// register and no final XOR. hash/crc32 applies the usual 0xFFFFFFFF
// pre/post-inversion, so both are cancelled out here.
// Check value: RegionDigest([]byte("123456789")) == 0x2DFD2D88.
func RegionDigest(data []byte) uint32 {
	return UpdateRegionDigest(0, data)
}

// UpdateRegionDigest continues a region digest from a previous value,
// allowing the digest to be computed incrementally.
func UpdateRegionDigest(digest uint32, data []byte) uint32 {
	return ^crc32.Update(^digest, regionTable, data)
}
