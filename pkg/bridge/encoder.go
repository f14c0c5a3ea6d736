// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "fmt"

// Encode creates a complete wire-formatted frame.
// Returns the frame bytes ready for transmission, including framing and byte stuffing.
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	// length + kind + payload is what gets CRC'd and byte-stuffed
	data := make([]byte, 0, 2+len(payload)+2)
	data = append(data, byte(len(payload)), byte(kind))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// EncodeFrame encodes an existing Frame to wire format
func EncodeFrame(f *Frame) ([]byte, error) {
	return Encode(f.kind, f.payload)
}

// MustEncodeFrame encodes a frame and panics on error.
// Only use with frames whose payload size is known to be valid.
func MustEncodeFrame(f *Frame) []byte {
	data, err := EncodeFrame(f)
	if err != nil {
		panic(fmt.Sprintf("bridge: encode error: %v", err))
	}
	return data
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}
