// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"sync"
)

// Documented field table. Battery rows are mirrored to ProducerBattery2
// when registered.
var defaultFields = []FieldDefinition{
	// Battery (0x00, mirrored to 0x04)
	{ProducerBattery, ChannelBatteryCapacity, "battery_capacity_wh", "Wh", 2, EnergyWh, nil},
	{ProducerBattery, ChannelBatteryRemaining, "battery_remaining_wh", "Wh", 2, EnergyWh, nil},
	{ProducerBattery, ChannelBatteryHealth, "battery_health", "%", 1, Identity, nil},
	{ProducerBattery, ChannelBatteryTemp, "battery_temp", "°C", 1, Identity, nil},
	{ProducerBattery, ChannelBatteryChargeCycles, "battery_charge_cycles", "cycles", 2, Identity, nil},
	{ProducerBattery, ChannelBatteryVoltage, "battery_voltage", "V", 1, Voltage, nil},
	{ProducerBattery, ChannelBatteryCurrent, "battery_current", "A", 1, Current, nil},
	{ProducerBattery, ChannelBatteryChargePercent, "battery_charge_percent", "%", 1, Identity, nil},

	// Motor / rider (0x01)
	{ProducerMotor, ChannelMotorRiderPower, "rider_power", "W", 2, Identity, nil},
	{ProducerMotor, ChannelMotorCadence, "cadence", "RPM", 2, Tenths, nil},
	{ProducerMotor, ChannelMotorSpeed, "speed", "km/h", 2, Tenths, nil},
	{ProducerMotor, ChannelMotorOdometer, "odometer", "km", 4, Thousandths, nil},
	{ProducerMotor, ChannelMotorAssistLevel, "assist_level", "", 2, Assist, EncodeAssist},
	{ProducerMotor, ChannelMotorTemp, "motor_temp", "°C", 1, Identity, nil},
	{ProducerMotor, ChannelMotorPower, "motor_power", "W", 2, Identity, nil},
	{ProducerMotor, ChannelMotorPeakAssist, "peak_assist", "", 3, Peak, EncodePeak},
	{ProducerMotor, ChannelMotorShuttle, "shuttle", "", 1, Identity, EncodePercent},

	// Settings (0x02)
	{ProducerSettings, ChannelSettingsWheelCircumference, "wheel_circumference", "mm", 2, Identity, nil},
	{ProducerSettings, ChannelSettingsAssistLev1, "assist_lev1_pct", "%", 1, Identity, EncodePercent},
	{ProducerSettings, ChannelSettingsAssistLev2, "assist_lev2_pct", "%", 1, Identity, EncodePercent},
	{ProducerSettings, ChannelSettingsAssistLev3, "assist_lev3_pct", "%", 1, Identity, EncodePercent},
	{ProducerSettings, ChannelSettingsFake, "fake_channel", "", 1, Identity, nil},
	{ProducerSettings, ChannelSettingsAcceleration, "acceleration", "%", 2, Acceleration, EncodeAcceleration},
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the sealed registry holding the documented
// field table. It is built on first use and shared afterwards.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		if err := RegisterDefaults(r); err != nil {
			panic(fmt.Sprintf("turbo: default field table: %v", err))
		}
		r.Seal()
		defaultRegistry = r
	})
	return defaultRegistry
}

// RegisterDefaults adds the documented field table to r
func RegisterDefaults(r *Registry) error {
	for _, def := range defaultFields {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
