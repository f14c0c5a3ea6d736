// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"github.com/go-logr/logr"

	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// Snapshot is the aggregated view of every producer.
//
// A Snapshot is not synchronized. Feed it from a single goroutine (Monitor
// does) and hand copies to readers.
type Snapshot struct {
	Battery  BatteryState  `json:"battery" yaml:"battery"`
	Battery2 BatteryState  `json:"battery2" yaml:"battery2"`
	Motor    MotorState    `json:"motor" yaml:"motor"`
	Settings SettingsState `json:"settings" yaml:"settings"`

	log logr.Logger
}

// NewSnapshot creates an empty snapshot that reports dropped records to log
func NewSnapshot(log logr.Logger) *Snapshot {
	return &Snapshot{log: log}
}

// UpdateFromRecord routes rec to the state model of its producer.
// Records from producers without a state model, or for channels a model
// does not track, leave the snapshot unchanged and return false.
func (s *Snapshot) UpdateFromRecord(rec *turbo.Record) bool {
	if rec == nil {
		return false
	}

	var applied bool
	switch rec.Producer {
	case turbo.ProducerBattery:
		applied = s.Battery.Update(rec.Channel, rec.Value)
	case turbo.ProducerBattery2:
		applied = s.Battery2.Update(rec.Channel, rec.Value)
	case turbo.ProducerMotor:
		applied = s.Motor.Update(rec.Channel, rec.Value)
	case turbo.ProducerSettings:
		applied = s.Settings.Update(rec.Channel, rec.Value)
	default:
		s.log.V(1).Info("no state for producer",
			"producer", rec.Producer.String(), "channel", rec.Channel, "raw", rec.Raw)
		return false
	}

	if !applied {
		s.log.V(1).Info("record not applied",
			"producer", rec.Producer.String(), "channel", rec.Channel, "value", rec.Value)
	}
	return applied
}

// ToMap returns a JSON-friendly view. The primary battery and motor are
// always present; the secondary battery and settings only once observed.
func (s *Snapshot) ToMap() map[string]any {
	m := map[string]any{
		"battery": s.Battery.ToMap(),
		"motor":   s.Motor.ToMap(),
	}
	if !s.Battery2.Empty() {
		m["battery2"] = s.Battery2.ToMap()
	}
	if !s.Settings.Empty() {
		m["settings"] = s.Settings.ToMap()
	}
	return m
}

// Clone returns an independent copy
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	return &c
}
