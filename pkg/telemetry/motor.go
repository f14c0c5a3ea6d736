// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "github.com/Thermoquad/turbostat/pkg/turbo"

// MotorState holds the latest motor and rider values
type MotorState struct {
	RiderPowerW *int64             `json:"rider_power_w,omitempty" yaml:"rider_power_w,omitempty"`
	CadenceRPM  *float64           `json:"cadence_rpm,omitempty" yaml:"cadence_rpm,omitempty"`
	SpeedKmh    *float64           `json:"speed_kmh,omitempty" yaml:"speed_kmh,omitempty"`
	OdometerKm  *float64           `json:"odometer_km,omitempty" yaml:"odometer_km,omitempty"`
	AssistLevel *turbo.AssistLevel `json:"assist_level,omitempty" yaml:"assist_level,omitempty"`
	MotorTempC  *int64             `json:"motor_temp_c,omitempty" yaml:"motor_temp_c,omitempty"`
	MotorPowerW *int64             `json:"motor_power_w,omitempty" yaml:"motor_power_w,omitempty"`
	PeakAssist  *turbo.PeakAssist  `json:"peak_assist,omitempty" yaml:"peak_assist,omitempty"`
	Shuttle     *int64             `json:"shuttle,omitempty" yaml:"shuttle,omitempty"`
}

// Update stores value in the slot for channel.
// Returns false when the channel is not a motor channel or the value has
// the wrong type.
func (m *MotorState) Update(channel uint8, value any) bool {
	switch channel {
	case turbo.ChannelMotorRiderPower:
		return setInt(&m.RiderPowerW, value)
	case turbo.ChannelMotorCadence:
		return setFloat(&m.CadenceRPM, value)
	case turbo.ChannelMotorSpeed:
		return setFloat(&m.SpeedKmh, value)
	case turbo.ChannelMotorOdometer:
		return setFloat(&m.OdometerKm, value)
	case turbo.ChannelMotorAssistLevel:
		level, ok := value.(turbo.AssistLevel)
		if !ok || !level.Valid() {
			return false
		}
		m.AssistLevel = &level
		return true
	case turbo.ChannelMotorTemp:
		return setInt(&m.MotorTempC, value)
	case turbo.ChannelMotorPower:
		return setInt(&m.MotorPowerW, value)
	case turbo.ChannelMotorPeakAssist:
		peak, ok := value.(turbo.PeakAssist)
		if !ok {
			return false
		}
		m.PeakAssist = &peak
		return true
	case turbo.ChannelMotorShuttle:
		return setInt(&m.Shuttle, value)
	}
	return false
}

// ToMap returns the present fields keyed by name. The assist level is
// reported by name and peak assist as [eco, trail, turbo].
func (m *MotorState) ToMap() map[string]any {
	out := make(map[string]any)
	put(out, "rider_power_w", m.RiderPowerW)
	put(out, "cadence_rpm", m.CadenceRPM)
	put(out, "speed_kmh", m.SpeedKmh)
	put(out, "odometer_km", m.OdometerKm)
	if m.AssistLevel != nil {
		out["assist_level"] = m.AssistLevel.String()
	}
	put(out, "motor_temp_c", m.MotorTempC)
	put(out, "motor_power_w", m.MotorPowerW)
	if m.PeakAssist != nil {
		p := m.PeakAssist
		out["peak_assist"] = []int{int(p.Eco), int(p.Trail), int(p.Turbo)}
	}
	put(out, "shuttle", m.Shuttle)
	return out
}

// Empty reports whether no motor field has been observed yet
func (m *MotorState) Empty() bool {
	return *m == MotorState{}
}
