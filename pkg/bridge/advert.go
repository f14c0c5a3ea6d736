// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"
)

// advertHeaderSize is address (6) + RSSI (1)
const advertHeaderSize = 7

// Advert is one scan result relayed by the bridge.
// Payload layout: address[6] (MSB first) | rssi (int8) | manufacturer AD data
// where the AD data starts with the little-endian company ID.
type Advert struct {
	Address      string
	RSSI         int8
	Manufacturer []byte
}

// ParseAdvert decodes the payload of an ADVERT frame
func ParseAdvert(payload []byte) (*Advert, error) {
	if len(payload) < advertHeaderSize {
		return nil, fmt.Errorf("%w: advert payload %d bytes, need at least %d", ErrFraming, len(payload), advertHeaderSize)
	}

	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = fmt.Sprintf("%02X", payload[i])
	}

	return &Advert{
		Address:      strings.Join(parts, ":"),
		RSSI:         int8(payload[6]),
		Manufacturer: payload[advertHeaderSize:],
	}, nil
}

// NewAdvert builds an ADVERT frame (bridge side, used by simulators and tests)
func NewAdvert(address [6]byte, rssi int8, manufacturer []byte) *Frame {
	payload := make([]byte, 0, advertHeaderSize+len(manufacturer))
	payload = append(payload, address[:]...)
	payload = append(payload, byte(rssi))
	payload = append(payload, manufacturer...)
	return NewFrame(KindAdvert, payload)
}
