// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import "time"

// Record is one decoded message.
// Field is nil when the (producer, channel) pair is not registered; Value
// then holds the raw integer.
type Record struct {
	Producer  Producer
	Channel   uint8
	Raw       uint32
	Value     any
	Field     *FieldDefinition
	Timestamp time.Time
}

// Known reports whether the record matched a registered field
func (r *Record) Known() bool {
	return r.Field != nil
}

// Name returns the field name, or "" for unregistered pairs
func (r *Record) Name() string {
	if r.Field == nil {
		return ""
	}
	return r.Field.Name
}

// Unit returns the field unit, or "" for unregistered pairs
func (r *Record) Unit() string {
	if r.Field == nil {
		return ""
	}
	return r.Field.Unit
}

// Key returns the wire key of the record
func (r *Record) Key() FieldKey {
	return FieldKey{Producer: r.Producer, Channel: r.Channel}
}
