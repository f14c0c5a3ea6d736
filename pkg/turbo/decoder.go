// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"time"
)

// Decoder turns raw message buffers into records using a registry.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	registry *Registry
}

// NewDecoder creates a decoder bound to r (DefaultRegistry when nil)
func NewDecoder(r *Registry) *Decoder {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Decoder{registry: r}
}

// Registry returns the registry the decoder consults
func (d *Decoder) Registry() *Registry {
	return d.registry
}

// Decode parses one message buffer.
//
// Registered fields read exactly Width payload bytes; anything after them
// is ignored. Unregistered pairs still decode: up to four payload bytes are
// folded into Raw and the record carries no Field.
func (d *Decoder) Decode(buf []byte) (*Record, error) {
	if len(buf) < MinMessageSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(buf), MinMessageSize)
	}

	rec := &Record{
		Producer:  Producer(buf[0]),
		Channel:   buf[1],
		Timestamp: time.Now(),
	}
	payload := buf[HeaderSize:]

	def, ok := d.registry.Lookup(rec.Producer, rec.Channel)
	if !ok {
		n := len(payload)
		if n > MaxValueWidth {
			n = MaxValueWidth
		}
		rec.Raw = readUintLE(payload[:n])
		rec.Value = int64(rec.Raw)
		return rec, nil
	}

	if len(payload) < def.Width {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformedMessage, def.Name, HeaderSize+def.Width, len(buf))
	}

	rec.Raw = readUintLE(payload[:def.Width])
	value, err := def.Convert(rec.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", def.Name, err)
	}
	rec.Value = value
	rec.Field = def
	return rec, nil
}

// Decode parses one message buffer with the default registry
func Decode(buf []byte) (*Record, error) {
	return NewDecoder(nil).Decode(buf)
}

// readUintLE reads up to four bytes as an unsigned little-endian integer
func readUintLE(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

// putUintLE appends width little-endian bytes of v
func putUintLE(dst []byte, v uint32, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}
