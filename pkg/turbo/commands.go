// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"strconv"
	"strings"
)

// Command builders return the exact bytes to write to the write
// characteristic. Arguments are validated first; on error no bytes are
// returned.

// SetAssistLevel builds [0x01, 0x05, level]
func SetAssistLevel(level AssistLevel) ([]byte, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: assist level %d (valid 0-3)", ErrInvalidArgument, uint8(level))
	}
	return []byte{byte(ProducerMotor), ChannelMotorAssistLevel, byte(level)}, nil
}

// SetAssistPercent builds [0x02, 0x03+levelIndex, percent].
// levelIndex is 0 for ECO, 1 for TRAIL and 2 for TURBO.
func SetAssistPercent(levelIndex, percent int) ([]byte, error) {
	if levelIndex < 0 || levelIndex > 2 {
		return nil, fmt.Errorf("%w: assist level index %d (valid 0-2)", ErrInvalidArgument, levelIndex)
	}
	if err := checkPercent("assist percent", percent); err != nil {
		return nil, err
	}
	return []byte{byte(ProducerSettings), byte(ChannelSettingsAssistLev1 + levelIndex), byte(percent)}, nil
}

// SetPeakAssist builds [0x01, 0x10, eco, trail, turbo, 0x32]
func SetPeakAssist(eco, trail, turbo int) ([]byte, error) {
	for _, pct := range []int{eco, trail, turbo} {
		if err := checkPercent("peak assist", pct); err != nil {
			return nil, err
		}
	}
	return []byte{
		byte(ProducerMotor), ChannelMotorPeakAssist,
		byte(eco), byte(trail), byte(turbo),
		peakAssistPadding,
	}, nil
}

// SetAccelerationSensitivity builds [0x02, 0x07, lo, hi] from a percentage
func SetAccelerationSensitivity(percent float64) ([]byte, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("%w: acceleration %.2f%% outside 0-100", ErrInvalidArgument, percent)
	}
	raw, err := accelerationRaw(percent)
	if err != nil {
		return nil, err
	}
	return putUintLE([]byte{byte(ProducerSettings), ChannelSettingsAcceleration}, raw, 2), nil
}

// SetShuttle builds [0x01, 0x15, value]
func SetShuttle(value int) ([]byte, error) {
	if err := checkPercent("shuttle", value); err != nil {
		return nil, err
	}
	return []byte{byte(ProducerMotor), ChannelMotorShuttle, byte(value)}, nil
}

// BuildRequest builds the 2-byte Request-Read query written to the
// request-write characteristic
func BuildRequest(producer Producer, channel uint8) []byte {
	return []byte{byte(producer), channel}
}

// EncodeField builds a write command through a field's inverse conversion
func EncodeField(def *FieldDefinition, value any) ([]byte, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil field", ErrInvalidArgument)
	}
	if !def.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrReadOnlyField, def.Name)
	}
	raw, err := def.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", def.Name, err)
	}
	if def.Width < MaxValueWidth && raw>>(8*def.Width) != 0 {
		return nil, fmt.Errorf("%w: %s raw %d exceeds %d bytes", ErrInvalidArgument, def.Name, raw, def.Width)
	}

	// Assist level is written as a single byte and peak assist carries a
	// trailer, so neither matches the notification layout.
	switch def.Key() {
	case FieldKey{ProducerMotor, ChannelMotorAssistLevel}:
		return SetAssistLevel(AssistLevel(raw))
	case FieldKey{ProducerMotor, ChannelMotorPeakAssist}:
		p := peakAssistFromRaw(raw)
		return SetPeakAssist(int(p.Eco), int(p.Trail), int(p.Turbo))
	}
	return putUintLE([]byte{byte(def.Producer), def.Channel}, raw, def.Width), nil
}

// ParseFieldValue parses command-line text into a value EncodeField accepts
func ParseFieldValue(def *FieldDefinition, text string) (any, error) {
	text = strings.TrimSpace(text)
	switch def.Key() {
	case FieldKey{ProducerMotor, ChannelMotorAssistLevel}:
		return ParseAssistLevel(text)
	case FieldKey{ProducerMotor, ChannelMotorPeakAssist}:
		return ParsePeakAssist(text)
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, text)
	}
	return f, nil
}
