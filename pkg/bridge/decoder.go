// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCRCMismatch is returned when a complete frame fails its checksum
	ErrCRCMismatch = errors.New("CRC mismatch")

	// ErrFraming is returned for length, overflow and delimiter violations
	ErrFraming = errors.New("framing error")
)

// stateEnd waits for the END byte after both CRC bytes
const stateEnd = stateCRC2 + 1

// Decoder implements the bridge frame decoder state machine
type Decoder struct {
	state      int
	buffer     []byte // length + kind + payload, the CRC input
	escapeNext bool
	length     int
	frame      *Frame
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
	d.length = 0
	d.frame = nil
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder then waits for the next START.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	// START and END are never stuffed, so they always delimit
	if b == StartByte {
		d.Reset()
		d.state = stateLength
		return nil, nil
	}

	if b == EndByte {
		state := d.state
		if state != stateEnd {
			d.Reset()
			return nil, fmt.Errorf("%w: unexpected END byte in state %d", ErrFraming, state)
		}
		frame := d.frame
		calculated := CalculateCRC(d.buffer)
		d.Reset()
		if frame.crc != calculated {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, frame.crc)
		}
		frame.timestamp = time.Now()
		return frame, nil
	}

	if d.state == stateIdle {
		// Waiting for START byte
		return nil, nil
	}

	// Handle byte stuffing
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: invalid length %d (max %d)", ErrFraming, b, MaxPayloadSize)
		}
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateKind
		return nil, nil

	case stateKind:
		d.frame = &Frame{kind: Kind(b), payload: make([]byte, 0, d.length)}
		d.buffer = append(d.buffer, b)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.frame.payload = append(d.frame.payload, b)
		d.buffer = append(d.buffer, b)
		if len(d.frame.payload) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.frame.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.frame.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: expected END, got 0x%02X", ErrFraming, b)

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("%w: invalid state %d", ErrFraming, state)
	}
}

// Decode feeds a buffer through the decoder and returns every completed
// frame together with any errors met along the way
func (d *Decoder) Decode(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}
