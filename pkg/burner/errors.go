// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import "errors"

// Error taxonomy for flashing operations. Transient link errors
// (sfproto.ErrTimeout, sfproto.ErrFrameCorrupt) are retried internally and
// never surface on their own; only retry exhaustion surfaces ErrConnectFailed
// or ErrTransferFailed. Configuration errors are detected before any serial
// traffic and never retried.
var (
	// ErrPortUnavailable means the serial port or bridge could not be opened.
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrConnectFailed means the sync attempt budget was exhausted without a
	// response from the bootloader.
	ErrConnectFailed = errors.New("failed to connect to chip")
	// ErrChipMismatch means the target identified as a different chip than the
	// one requested. Fatal: retrying cannot fix a wrong target.
	ErrChipMismatch = errors.New("chip identity mismatch")
	// ErrTransferFailed means a program or erase command failed after
	// exhausting its retry budget. Partial writes are not rolled back.
	ErrTransferFailed = errors.New("flash transfer failed")
	// ErrVerifyFailed means the digest the target computed over the written
	// region does not match the source binary.
	ErrVerifyFailed = errors.New("flash verification failed")
	// ErrUnsupportedChip means no profile exists for the requested chip and
	// memory type combination.
	ErrUnsupportedChip = errors.New("unsupported chip")
	// ErrInvalidAddressRange means a transfer target falls outside the
	// regions the chip profile declares valid for the selected memory type.
	ErrInvalidAddressRange = errors.New("address range not valid for chip")
)
