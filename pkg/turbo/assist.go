// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"strconv"
	"strings"
)

// AssistLevel is the motor assist mode selected on the bike
type AssistLevel uint8

// Assist level values
const (
	AssistOff   AssistLevel = 0
	AssistEco   AssistLevel = 1
	AssistTrail AssistLevel = 2
	AssistTurbo AssistLevel = 3
)

var assistLevelNames = [...]string{"OFF", "ECO", "TRAIL", "TURBO"}

// String returns the symbolic name of the level
func (a AssistLevel) String() string {
	if a.Valid() {
		return assistLevelNames[a]
	}
	return fmt.Sprintf("AssistLevel(%d)", uint8(a))
}

// Valid reports whether the level is one of the four defined values
func (a AssistLevel) Valid() bool {
	return a <= AssistTurbo
}

// MarshalText encodes the level by name
func (a AssistLevel) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: assist level %d", ErrInvalidEnumValue, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts a level name in any case
func (a *AssistLevel) UnmarshalText(text []byte) error {
	level, err := ParseAssistLevel(string(text))
	if err != nil {
		return err
	}
	*a = level
	return nil
}

// ParseAssistLevel parses a level name ("eco", "TRAIL") or its number ("2")
func ParseAssistLevel(s string) (AssistLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, known := range assistLevelNames {
		if name == known {
			return AssistLevel(i), nil
		}
	}
	if len(name) == 1 && name[0] >= '0' && name[0] <= '3' {
		return AssistLevel(name[0] - '0'), nil
	}
	return 0, fmt.Errorf("%w: unknown assist level %q (want OFF, ECO, TRAIL or TURBO)", ErrInvalidArgument, s)
}

// AssistLevelFromRaw validates a raw 2-byte payload as an assist level
func AssistLevelFromRaw(raw uint32) (AssistLevel, error) {
	if raw > uint32(AssistTurbo) {
		return 0, fmt.Errorf("%w: assist level raw=%d (valid 0-3)", ErrInvalidEnumValue, raw)
	}
	return AssistLevel(raw), nil
}

// PeakAssist holds the per-mode peak assist percentages.
// On the wire these are three independent bytes in ECO, TRAIL, TURBO order.
type PeakAssist struct {
	Eco   uint8 `json:"eco" yaml:"eco"`
	Trail uint8 `json:"trail" yaml:"trail"`
	Turbo uint8 `json:"turbo" yaml:"turbo"`
}

// Array returns the percentages in wire order
func (p PeakAssist) Array() [3]uint8 {
	return [3]uint8{p.Eco, p.Trail, p.Turbo}
}

// String formats the percentages for display
func (p PeakAssist) String() string {
	return fmt.Sprintf("ECO %d%% / TRAIL %d%% / TURBO %d%%", p.Eco, p.Trail, p.Turbo)
}

func peakAssistFromRaw(raw uint32) PeakAssist {
	return PeakAssist{
		Eco:   uint8(raw),
		Trail: uint8(raw >> 8),
		Turbo: uint8(raw >> 16),
	}
}

func (p PeakAssist) raw() uint32 {
	return uint32(p.Eco) | uint32(p.Trail)<<8 | uint32(p.Turbo)<<16
}

// ParsePeakAssist parses "eco,trail,turbo" percentages
func ParsePeakAssist(s string) (PeakAssist, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return PeakAssist{}, fmt.Errorf("%w: peak assist wants eco,trail,turbo, got %q", ErrInvalidArgument, s)
	}
	var vals [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return PeakAssist{}, fmt.Errorf("%w: peak assist value %q", ErrInvalidArgument, part)
		}
		vals[i] = v
		if err := checkPercent("peak assist", vals[i]); err != nil {
			return PeakAssist{}, err
		}
	}
	return PeakAssist{Eco: uint8(vals[0]), Trail: uint8(vals[1]), Turbo: uint8(vals[2])}, nil
}
