// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"math"
)

// ConvertFunc turns a raw little-endian integer into a display value
type ConvertFunc func(raw uint32) (any, error)

// EncodeFunc turns a display value back into its raw integer
type EncodeFunc func(value any) (uint32, error)

// Scale factor for the battery energy channels
const energyScale = 1.1111

// roundHalfUp rounds to the nearest integer with halves going up.
// Used for every rounding step in both directions.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Identity returns the raw value unchanged as an int64
func Identity(raw uint32) (any, error) {
	return int64(raw), nil
}

// EnergyWh converts battery capacity/remaining to watt-hours
func EnergyWh(raw uint32) (any, error) {
	return int64(roundHalfUp(float64(raw) * energyScale)), nil
}

// Voltage converts the battery voltage channel (approximate)
func Voltage(raw uint32) (any, error) {
	return float64(raw)/5 + 20, nil
}

// Current converts the battery current channel (approximate)
func Current(raw uint32) (any, error) {
	return float64(raw) / 5, nil
}

// Tenths divides by 10 (cadence, speed)
func Tenths(raw uint32) (any, error) {
	return float64(raw) / 10, nil
}

// Thousandths divides by 1000 (odometer)
func Thousandths(raw uint32) (any, error) {
	return float64(raw) / 1000, nil
}

// Acceleration converts the raw sensitivity into a percentage
func Acceleration(raw uint32) (any, error) {
	return (float64(raw) - accelerationRawMin) / accelerationScale, nil
}

// Assist decodes the assist level enum
func Assist(raw uint32) (any, error) {
	return AssistLevelFromRaw(raw)
}

// Peak decodes the 3-byte peak assist payload
func Peak(raw uint32) (any, error) {
	return peakAssistFromRaw(raw), nil
}

// EncodeIdentity accepts any integer-valued number that fits in 32 bits
func EncodeIdentity(value any) (uint32, error) {
	f, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidArgument, value)
	}
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not a valid raw value", ErrInvalidArgument, value)
	}
	return uint32(f), nil
}

// EncodePercent is EncodeIdentity limited to [0,100]
func EncodePercent(value any) (uint32, error) {
	raw, err := EncodeIdentity(value)
	if err != nil {
		return 0, err
	}
	if err := checkPercent("percent", int(raw)); err != nil {
		return 0, err
	}
	return raw, nil
}

// EncodeAcceleration is the inverse of Acceleration
func EncodeAcceleration(value any) (uint32, error) {
	f, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidArgument, value)
	}
	return accelerationRaw(f)
}

// EncodeAssist accepts an AssistLevel or its name
func EncodeAssist(value any) (uint32, error) {
	var level AssistLevel
	switch v := value.(type) {
	case AssistLevel:
		level = v
	case string:
		parsed, err := ParseAssistLevel(v)
		if err != nil {
			return 0, err
		}
		level = parsed
	default:
		raw, err := EncodeIdentity(value)
		if err != nil {
			return 0, err
		}
		level = AssistLevel(raw)
		if raw > uint32(AssistTurbo) {
			return 0, fmt.Errorf("%w: assist level %d (valid 0-3)", ErrInvalidArgument, raw)
		}
	}
	if !level.Valid() {
		return 0, fmt.Errorf("%w: assist level %d (valid 0-3)", ErrInvalidArgument, uint8(level))
	}
	return uint32(level), nil
}

// EncodePeak accepts a PeakAssist or an "eco,trail,turbo" string
func EncodePeak(value any) (uint32, error) {
	switch v := value.(type) {
	case PeakAssist:
		for _, pct := range v.Array() {
			if err := checkPercent("peak assist", int(pct)); err != nil {
				return 0, err
			}
		}
		return v.raw(), nil
	case string:
		p, err := ParsePeakAssist(v)
		if err != nil {
			return 0, err
		}
		return p.raw(), nil
	}
	return 0, fmt.Errorf("%w: %T is not a peak assist value", ErrInvalidArgument, value)
}

func accelerationRaw(percent float64) (uint32, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, fmt.Errorf("%w: acceleration %v", ErrInvalidArgument, percent)
	}
	raw := roundHalfUp(percent*accelerationScale) + accelerationRawMin
	if raw < accelerationRawMin || raw > accelerationRawMax {
		return 0, fmt.Errorf("%w: acceleration %.2f%% gives raw %.0f (valid %d-%d)",
			ErrInvalidArgument, percent, raw, accelerationRawMin, accelerationRawMax)
	}
	return uint32(raw), nil
}

func checkPercent(what string, v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %s %d outside 0-100", ErrInvalidArgument, what, v)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
