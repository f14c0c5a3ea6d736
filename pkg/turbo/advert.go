// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"bytes"
	"encoding/binary"
)

// IsTurboAdvertisement reports whether BLE manufacturer data (keyed by
// company ID, IDs already stripped from the payloads) belongs to a Turbo
// bike: the "TURBOHMI" magic under Nordic's company ID.
func IsTurboAdvertisement(manufacturerData map[uint16][]byte) bool {
	payload, ok := manufacturerData[NordicCompanyID]
	if !ok {
		return false
	}
	return bytes.Contains(payload, []byte(AdvertisingMagic))
}

// ParseManufacturerData splits a raw manufacturer-specific AD structure
// ([company id LE:2][payload...]) into the map form IsTurboAdvertisement takes.
// Returns false when the buffer is too short to hold a company ID.
func ParseManufacturerData(raw []byte) (map[uint16][]byte, bool) {
	if len(raw) < 2 {
		return nil, false
	}
	id := binary.LittleEndian.Uint16(raw[:2])
	return map[uint16][]byte{id: raw[2:]}, true
}
