// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge implements the framing spoken between turbostat and a
// BLE bridge. The bridge owns the radio link to the bike and relays raw
// GATT buffers in both directions; each buffer travels in one frame:
//
//	START | length | kind | payload[length] | CRC16 (BE) | END
//
// Bytes between START and END are stuffed so START, END and ESC never
// appear inside a frame. The CRC-16-CCITT covers length, kind and payload.
package bridge

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 32
	MaxFrameSize   = 4 + MaxPayloadSize // length + kind + payload + 2 CRC bytes
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Kind identifies what a frame carries
type Kind uint8

// Frame kinds - Bridge → Host 0x01-0x0F
const (
	KindNotify       Kind = 0x01 // Buffer from the notify characteristic
	KindReadResponse Kind = 0x02 // Buffer read back from the request-read characteristic
	KindAdvert       Kind = 0x03 // Manufacturer data from a scan result
)

// Frame kinds - Host → Bridge 0x10-0x1F
const (
	KindRequest Kind = 0x10 // [producer, channel] for the request-write characteristic
	KindWrite   Kind = 0x11 // Command for the write characteristic
)

// Frame kinds - Link maintenance
const (
	KindPing  Kind = 0x2F
	KindPong  Kind = 0x3F // 8-byte little-endian uptime in milliseconds
	KindError Kind = 0xE0 // UTF-8 reason
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateKind
	statePayload
	stateCRC1
	stateCRC2
)

// String returns the human-readable name for a frame kind
func (k Kind) String() string {
	switch k {
	case KindNotify:
		return "NOTIFY"
	case KindReadResponse:
		return "READ_RESPONSE"
	case KindAdvert:
		return "ADVERT"
	case KindRequest:
		return "REQUEST"
	case KindWrite:
		return "WRITE"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CarriesMessage reports whether the payload is a Turbo protocol message
func (k Kind) CarriesMessage() bool {
	return k == KindNotify || k == KindReadResponse || k == KindWrite
}
