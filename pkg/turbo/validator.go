// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import "fmt"

// AnomalyType represents different types of record anomalies
type AnomalyType int

const (
	AnomalyUnknownField AnomalyType = iota
	AnomalyUnknownProducer
	AnomalyOutOfRange
	AnomalyInvalidTemp
	AnomalyHighSpeed
)

// Plausibility limits
const (
	maxPlausibleSpeed = 100.0 // km/h
	minPlausibleTemp  = -40
	maxPlausibleTemp  = 120
)

// ValidationError represents a record validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateRecord checks a decoded record for implausible values.
// Returns a slice of validation errors (empty if the record looks sane).
func ValidateRecord(r *Record) []ValidationError {
	errors := []ValidationError{}

	if !r.Producer.Valid() {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownProducer,
			Message: fmt.Sprintf("Unknown producer 0x%02X (channel 0x%02X)", uint8(r.Producer), r.Channel),
			Details: map[string]interface{}{"producer": uint8(r.Producer), "channel": r.Channel, "raw": r.Raw},
		})
	}
	if !r.Known() {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownField,
			Message: fmt.Sprintf("Unregistered channel 0x%02X on %s", r.Channel, FormatProducer(r.Producer)),
			Details: map[string]interface{}{"producer": uint8(r.Producer), "channel": r.Channel, "raw": r.Raw},
		})
	}

	switch r.Key() {
	case FieldKey{ProducerBattery, ChannelBatteryHealth}, FieldKey{ProducerBattery2, ChannelBatteryHealth},
		FieldKey{ProducerBattery, ChannelBatteryChargePercent}, FieldKey{ProducerBattery2, ChannelBatteryChargePercent},
		FieldKey{ProducerSettings, ChannelSettingsAssistLev1}, FieldKey{ProducerSettings, ChannelSettingsAssistLev2},
		FieldKey{ProducerSettings, ChannelSettingsAssistLev3}, FieldKey{ProducerSettings, ChannelSettingsAcceleration}:
		errors = append(errors, validatePercent(r)...)

	case FieldKey{ProducerBattery, ChannelBatteryTemp}, FieldKey{ProducerBattery2, ChannelBatteryTemp},
		FieldKey{ProducerMotor, ChannelMotorTemp}:
		errors = append(errors, validateTemperature(r)...)

	case FieldKey{ProducerMotor, ChannelMotorSpeed}:
		errors = append(errors, validateSpeed(r)...)

	case FieldKey{ProducerMotor, ChannelMotorPeakAssist}:
		if p, ok := r.Value.(PeakAssist); ok {
			for _, pct := range p.Array() {
				if pct > 100 {
					errors = append(errors, ValidationError{
						Type:    AnomalyOutOfRange,
						Message: fmt.Sprintf("Peak assist out of range (%s)", p),
						Details: map[string]interface{}{"eco": p.Eco, "trail": p.Trail, "turbo": p.Turbo, "max": 100},
					})
					break
				}
			}
		}
	}

	return errors
}

func validatePercent(r *Record) []ValidationError {
	var pct float64
	switch v := r.Value.(type) {
	case int64:
		pct = float64(v)
	case float64:
		pct = v
	default:
		return nil
	}
	if pct < 0 || pct > 100 {
		return []ValidationError{{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("%s out of range (%.1f%%, valid: 0 to 100%%)", r.Name(), pct),
			Details: map[string]interface{}{"field": r.Name(), "value": pct, "min": 0, "max": 100},
		}}
	}
	return nil
}

func validateTemperature(r *Record) []ValidationError {
	temp, ok := r.Value.(int64)
	if !ok {
		return nil
	}
	if temp < minPlausibleTemp || temp > maxPlausibleTemp {
		return []ValidationError{{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("%s out of range (%d°C, valid: %d to %d°C)", r.Name(), temp, minPlausibleTemp, maxPlausibleTemp),
			Details: map[string]interface{}{"field": r.Name(), "value": temp, "min": minPlausibleTemp, "max": maxPlausibleTemp},
		}}
	}
	return nil
}

func validateSpeed(r *Record) []ValidationError {
	speed, ok := r.Value.(float64)
	if !ok {
		return nil
	}
	if speed > maxPlausibleSpeed {
		return []ValidationError{{
			Type:    AnomalyHighSpeed,
			Message: fmt.Sprintf("High speed (%.1f km/h, max %.0f)", speed, maxPlausibleSpeed),
			Details: map[string]interface{}{"value": speed, "max": maxPlausibleSpeed},
		}}
	}
	return nil
}
