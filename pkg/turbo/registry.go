// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRegistrySealed is returned when registering into a sealed registry
var ErrRegistrySealed = errors.New("registry is sealed")

// FieldKey identifies a field on the wire
type FieldKey struct {
	Producer Producer
	Channel  uint8
}

// String formats the key as producer/channel hex
func (k FieldKey) String() string {
	return fmt.Sprintf("0x%02X/0x%02X", uint8(k.Producer), k.Channel)
}

// FieldDefinition describes one (producer, channel) pair.
// Encode is nil for read-only fields.
type FieldDefinition struct {
	Producer Producer
	Channel  uint8
	Name     string
	Unit     string
	Width    int
	Convert  ConvertFunc
	Encode   EncodeFunc
}

// Key returns the wire key of the definition
func (d *FieldDefinition) Key() FieldKey {
	return FieldKey{Producer: d.Producer, Channel: d.Channel}
}

// Writable reports whether the field has an inverse conversion
func (d *FieldDefinition) Writable() bool {
	return d.Encode != nil
}

// Registry maps (producer, channel) keys to field definitions
type Registry struct {
	defs   map[FieldKey]*FieldDefinition
	byName map[string]*FieldDefinition
	sealed bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[FieldKey]*FieldDefinition),
		byName: make(map[string]*FieldDefinition),
	}
}

// Register adds a definition. A battery definition is mirrored onto the
// secondary battery producer with the same channel, name, unit, width and
// conversions. Nothing is added when either key is already taken.
func (r *Registry) Register(def FieldDefinition) error {
	if r.sealed {
		return ErrRegistrySealed
	}
	if def.Width < 1 || def.Width > MaxValueWidth {
		return fmt.Errorf("field %s: invalid width %d (valid 1-%d)", def.Name, def.Width, MaxValueWidth)
	}
	if def.Convert == nil {
		def.Convert = Identity
	}

	defs := []FieldDefinition{def}
	if def.Producer == ProducerBattery {
		mirror := def
		mirror.Producer = ProducerBattery2
		defs = append(defs, mirror)
	}

	for i := range defs {
		if existing, ok := r.defs[defs[i].Key()]; ok {
			return fmt.Errorf("%w: %s already registered as %s", ErrDuplicateField, defs[i].Key(), existing.Name)
		}
	}

	for i := range defs {
		d := defs[i]
		r.defs[d.Key()] = &d
		if _, ok := r.byName[d.Name]; !ok {
			r.byName[d.Name] = &d
		}
	}
	return nil
}

// Seal makes the registry read-only
func (r *Registry) Seal() {
	r.sealed = true
}

// Lookup returns the definition for a key
func (r *Registry) Lookup(producer Producer, channel uint8) (*FieldDefinition, bool) {
	def, ok := r.defs[FieldKey{Producer: producer, Channel: channel}]
	return def, ok
}

// LookupName returns the first definition registered under a name.
// For battery fields that is the primary pack; use Lookup with
// ProducerBattery2 for the secondary one.
func (r *Registry) LookupName(name string) (*FieldDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Fields returns every definition ordered by producer, then channel
func (r *Registry) Fields() []*FieldDefinition {
	fields := make([]*FieldDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		fields = append(fields, def)
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Producer != fields[j].Producer {
			return fields[i].Producer < fields[j].Producer
		}
		return fields[i].Channel < fields[j].Channel
	})
	return fields
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	return len(r.defs)
}
