// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame is one decoded bridge frame
type Frame struct {
	kind      Kind
	payload   []byte
	crc       uint16
	timestamp time.Time
}

// NewFrame creates a frame for encoding
func NewFrame(kind Kind, payload []byte) *Frame {
	return &Frame{
		kind:      kind,
		payload:   payload,
		timestamp: time.Now(),
	}
}

// NewNotify wraps a notify buffer (bridge side, used by simulators and tests)
func NewNotify(msg []byte) *Frame {
	return NewFrame(KindNotify, msg)
}

// NewRequest wraps a Request-Read query
func NewRequest(query []byte) *Frame {
	return NewFrame(KindRequest, query)
}

// NewWrite wraps a command for the write characteristic
func NewWrite(cmd []byte) *Frame {
	return NewFrame(KindWrite, cmd)
}

// NewPing creates a PING frame
func NewPing() *Frame {
	return NewFrame(KindPing, nil)
}

// NewPong creates a PONG frame carrying an uptime
func NewPong(uptime time.Duration) *Frame {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(uptime.Milliseconds()))
	return NewFrame(KindPong, payload)
}

// Kind returns the frame kind
func (f *Frame) Kind() Kind {
	return f.kind
}

// Payload returns the frame payload
func (f *Frame) Payload() []byte {
	return f.payload
}

// Length returns the payload length
func (f *Frame) Length() int {
	return len(f.payload)
}

// CRC returns the frame CRC (zero for frames built locally)
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was decoded or created
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Uptime returns the uptime carried by a PONG frame
func (f *Frame) Uptime() (time.Duration, error) {
	if f.kind != KindPong {
		return 0, fmt.Errorf("%s frame carries no uptime", f.kind)
	}
	if len(f.payload) < 8 {
		return 0, fmt.Errorf("%w: PONG payload %d bytes, want 8", ErrFraming, len(f.payload))
	}
	return time.Duration(binary.LittleEndian.Uint64(f.payload)) * time.Millisecond, nil
}

// ErrorText returns the reason carried by an ERROR frame
func (f *Frame) ErrorText() string {
	if f.kind != KindError {
		return ""
	}
	return string(f.payload)
}

// String formats the frame header and payload
func (f *Frame) String() string {
	return fmt.Sprintf("%s (0x%02X) len=%d % X", f.kind, uint8(f.kind), len(f.payload), f.payload)
}
