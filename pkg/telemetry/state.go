// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry folds decoded Turbo records into a live view of the
// bike. Each producer has a state model whose slots start absent and hold
// the latest value once observed; a Snapshot routes records to them and a
// Monitor feeds a Snapshot from a stream of raw buffers.
package telemetry

import "math"

// Slots are only ever replaced with a fresh pointer, never written through,
// so a value copy of a state model shares no mutable memory with the
// original.

func setInt(dst **int64, value any) bool {
	n, ok := asInt64(value)
	if !ok {
		return false
	}
	*dst = &n
	return true
}

func setFloat(dst **float64, value any) bool {
	f, ok := asFloat64(value)
	if !ok {
		return false
	}
	*dst = &f
	return true
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch f := value.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	n, ok := asInt64(value)
	return float64(n), ok
}

func put[T any](m map[string]any, key string, slot *T) {
	if slot != nil {
		m[key] = *slot
	}
}
