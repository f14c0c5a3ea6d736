// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package turbo implements the Specialized Turbo ("TURBOHMI2017") BLE
// telemetry protocol: the field registry, message decoding, and command
// encoding.
//
// Every message is [producer:1][channel:1][payload:1..4] with the payload
// in little-endian order. The same layout is used for notifications,
// request-read responses, and write commands.
package turbo

import "fmt"

// Producer identifies the subsystem that originated a message
type Producer uint8

// Producer values
const (
	ProducerBattery   Producer = 0x00
	ProducerMotor     Producer = 0x01
	ProducerSettings  Producer = 0x02
	ProducerUnknown03 Producer = 0x03 // Undocumented, never routed
	ProducerBattery2  Producer = 0x04 // Secondary pack, same channels as ProducerBattery
)

// Battery channels (producers 0x00 and 0x04)
const (
	ChannelBatteryCapacity      = 0x00
	ChannelBatteryRemaining     = 0x01
	ChannelBatteryHealth        = 0x02
	ChannelBatteryTemp          = 0x03
	ChannelBatteryChargeCycles  = 0x04
	ChannelBatteryVoltage       = 0x05
	ChannelBatteryCurrent       = 0x06
	ChannelBatteryChargePercent = 0x0C
)

// Motor channels (producer 0x01)
const (
	ChannelMotorRiderPower  = 0x00
	ChannelMotorCadence     = 0x01
	ChannelMotorSpeed       = 0x02
	ChannelMotorOdometer    = 0x04
	ChannelMotorAssistLevel = 0x05
	ChannelMotorTemp        = 0x07
	ChannelMotorPower       = 0x0C
	ChannelMotorPeakAssist  = 0x10
	ChannelMotorShuttle     = 0x15
)

// Settings channels (producer 0x02)
const (
	ChannelSettingsWheelCircumference = 0x00
	ChannelSettingsAssistLev1         = 0x03
	ChannelSettingsAssistLev2         = 0x04
	ChannelSettingsAssistLev3         = 0x05
	ChannelSettingsFake               = 0x06
	ChannelSettingsAcceleration       = 0x07
)

// Message size limits
const (
	HeaderSize     = 2
	MinMessageSize = 3  // producer + channel + one data byte
	MaxMessageSize = 20 // Largest buffer observed on the notify characteristic
	MaxValueWidth  = 4
)

// peakAssistPadding is the constant trailer of a peak assist write
const peakAssistPadding = 0x32

// Acceleration sensitivity raw range
const (
	accelerationRawMin = 3000
	accelerationRawMax = 9000
	accelerationScale  = 60.0
)

// UUIDBase is the 128-bit base for every service and characteristic.
// The trailing bytes spell "TURBOHMI2017" backwards.
const UUIDBase = "0000%04x-3731-3032-494d-484f42525554"

// Short UUIDs
const (
	ServiceDataRequest = 0x0001
	ServiceDataWrite   = 0x0002
	ServiceDataNotify  = 0x0003

	CharRequestRead  = 0x0011
	CharWrite        = 0x0012
	CharNotify       = 0x0013
	CharRequestWrite = 0x0021
)

// Advertisement detection
const (
	NordicCompanyID  = 0x0059
	AdvertisingMagic = "TURBOHMI"
)

// UUID expands a short UUID into the full 128-bit string
func UUID(short uint16) string {
	return fmt.Sprintf(UUIDBase, short)
}

// String returns the producer name
func (p Producer) String() string {
	return FormatProducer(p)
}

// Valid reports whether the producer is one the aggregator routes
func (p Producer) Valid() bool {
	switch p {
	case ProducerBattery, ProducerMotor, ProducerSettings, ProducerBattery2:
		return true
	}
	return false
}
