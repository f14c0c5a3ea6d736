// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "github.com/Thermoquad/turbostat/pkg/turbo"

// SettingsState holds the bike configuration values
type SettingsState struct {
	WheelCircumferenceMm *int64   `json:"wheel_circumference_mm,omitempty" yaml:"wheel_circumference_mm,omitempty"`
	AssistLev1Pct        *int64   `json:"assist_lev1_pct,omitempty" yaml:"assist_lev1_pct,omitempty"`
	AssistLev2Pct        *int64   `json:"assist_lev2_pct,omitempty" yaml:"assist_lev2_pct,omitempty"`
	AssistLev3Pct        *int64   `json:"assist_lev3_pct,omitempty" yaml:"assist_lev3_pct,omitempty"`
	FakeChannel          *int64   `json:"fake_channel,omitempty" yaml:"fake_channel,omitempty"`
	AccelerationPct      *float64 `json:"acceleration_pct,omitempty" yaml:"acceleration_pct,omitempty"`
}

// Update stores value in the slot for channel
func (s *SettingsState) Update(channel uint8, value any) bool {
	switch channel {
	case turbo.ChannelSettingsWheelCircumference:
		return setInt(&s.WheelCircumferenceMm, value)
	case turbo.ChannelSettingsAssistLev1:
		return setInt(&s.AssistLev1Pct, value)
	case turbo.ChannelSettingsAssistLev2:
		return setInt(&s.AssistLev2Pct, value)
	case turbo.ChannelSettingsAssistLev3:
		return setInt(&s.AssistLev3Pct, value)
	case turbo.ChannelSettingsFake:
		return setInt(&s.FakeChannel, value)
	case turbo.ChannelSettingsAcceleration:
		return setFloat(&s.AccelerationPct, value)
	}
	return false
}

// ToMap returns the present fields keyed by name
func (s *SettingsState) ToMap() map[string]any {
	m := make(map[string]any)
	put(m, "wheel_circumference_mm", s.WheelCircumferenceMm)
	put(m, "assist_lev1_pct", s.AssistLev1Pct)
	put(m, "assist_lev2_pct", s.AssistLev2Pct)
	put(m, "assist_lev3_pct", s.AssistLev3Pct)
	put(m, "fake_channel", s.FakeChannel)
	put(m, "acceleration_pct", s.AccelerationPct)
	return m
}

// Empty reports whether no setting has been observed yet
func (s *SettingsState) Empty() bool {
	return *s == SettingsState{}
}
