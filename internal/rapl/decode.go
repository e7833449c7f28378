/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package rapl

import "math"

// Mask returns a value with the low width bits set. Widths of 64 and above
// return all ones.
func Mask(width uint) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << width) - 1
}

// DecodeField extracts one field from a raw register value.
func DecodeField(raw uint64, field Field) uint64 {
	return (raw >> field.Offset) & Mask(field.Width)
}

// Decode extracts every field from raw, in the order given.
func Decode(raw uint64, fields []Field) (out []uint64) {
	out = make([]uint64, len(fields))
	for i, field := range fields {
		out[i] = DecodeField(raw, field)
	}
	return
}
