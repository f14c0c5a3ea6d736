// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import "errors"

var (
	// ErrMalformedMessage is returned when a buffer is too short for its field
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidEnumValue is returned when an enum payload is out of range
	ErrInvalidEnumValue = errors.New("invalid enum value")

	// ErrInvalidArgument is returned by command encoders before any bytes are built
	ErrInvalidArgument = errors.New("invalid command argument")

	// ErrDuplicateField is returned when a (producer, channel) pair is registered twice
	ErrDuplicateField = errors.New("duplicate field definition")

	// ErrReadOnlyField is returned when encoding through a field without an inverse
	ErrReadOnlyField = errors.New("field is read-only")
)
