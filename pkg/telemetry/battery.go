// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "github.com/Thermoquad/turbostat/pkg/turbo"

// BatteryState holds the latest values reported by one battery pack
type BatteryState struct {
	CapacityWh   *int64   `json:"capacity_wh,omitempty" yaml:"capacity_wh,omitempty"`
	RemainingWh  *int64   `json:"remaining_wh,omitempty" yaml:"remaining_wh,omitempty"`
	HealthPct    *int64   `json:"health_pct,omitempty" yaml:"health_pct,omitempty"`
	TempC        *int64   `json:"temp_c,omitempty" yaml:"temp_c,omitempty"`
	ChargeCycles *int64   `json:"charge_cycles,omitempty" yaml:"charge_cycles,omitempty"`
	VoltageV     *float64 `json:"voltage_v,omitempty" yaml:"voltage_v,omitempty"`
	CurrentA     *float64 `json:"current_a,omitempty" yaml:"current_a,omitempty"`
	ChargePct    *int64   `json:"charge_pct,omitempty" yaml:"charge_pct,omitempty"`
}

// Update stores value in the slot for channel.
// Returns false, leaving the state untouched, when the channel is not a
// battery channel or the value has the wrong type.
func (b *BatteryState) Update(channel uint8, value any) bool {
	switch channel {
	case turbo.ChannelBatteryCapacity:
		return setInt(&b.CapacityWh, value)
	case turbo.ChannelBatteryRemaining:
		return setInt(&b.RemainingWh, value)
	case turbo.ChannelBatteryHealth:
		return setInt(&b.HealthPct, value)
	case turbo.ChannelBatteryTemp:
		return setInt(&b.TempC, value)
	case turbo.ChannelBatteryChargeCycles:
		return setInt(&b.ChargeCycles, value)
	case turbo.ChannelBatteryVoltage:
		return setFloat(&b.VoltageV, value)
	case turbo.ChannelBatteryCurrent:
		return setFloat(&b.CurrentA, value)
	case turbo.ChannelBatteryChargePercent:
		return setInt(&b.ChargePct, value)
	}
	return false
}

// ToMap returns the present fields keyed by name
func (b *BatteryState) ToMap() map[string]any {
	m := make(map[string]any)
	put(m, "capacity_wh", b.CapacityWh)
	put(m, "remaining_wh", b.RemainingWh)
	put(m, "health_pct", b.HealthPct)
	put(m, "temp_c", b.TempC)
	put(m, "charge_cycles", b.ChargeCycles)
	put(m, "voltage_v", b.VoltageV)
	put(m, "current_a", b.CurrentA)
	put(m, "charge_pct", b.ChargePct)
	return m
}

// Empty reports whether no battery field has been observed yet
func (b *BatteryState) Empty() bool {
	return *b == BatteryState{}
}
