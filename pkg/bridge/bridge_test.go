// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	// Standard CRC-16-CCITT (FALSE) check value
	if crc := CalculateCRC([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
}

// ============================================================
// Helpers
// ============================================================

func decodeAll(t *testing.T, data []byte) ([]*Frame, []error) {
	t.Helper()
	return NewDecoder().Decode(data)
}

// ============================================================
// Encode / Decode Tests
// ============================================================

func TestEncode_Layout(t *testing.T) {
	wire, err := Encode(KindWrite, []byte{0x01, 0x05, 0x02})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
		t.Errorf("missing delimiters: % X", wire)
	}

	if wire[1] != 3 || Kind(wire[2]) != KindWrite {
		t.Errorf("unexpected header: % X", wire[1:3])
	}

	frames, errs := decodeAll(t, wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("expected one frame, got %d frames, %v", len(frames), errs)
	}
	want := CalculateCRC([]byte{3, byte(KindWrite), 0x01, 0x05, 0x02})
	if frames[0].CRC() != want {
		t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", want, frames[0].CRC())
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		payload []byte
	}{
		{"notify speed", KindNotify, []byte{0x01, 0x02, 0xFD, 0x00}},
		{"read response", KindReadResponse, []byte{0x00, 0x0C, 0x57}},
		{"request", KindRequest, []byte{0x00, 0x0C}},
		{"write peak assist", KindWrite, []byte{0x01, 0x10, 0x1E, 0x3C, 0x64, 0x32}},
		{"ping", KindPing, nil},
		{"needs stuffing", KindNotify, []byte{0x7E, 0x7F, 0x7D, 0x00, 0x7E}},
		{"max payload", KindNotify, bytes.Repeat([]byte{0x7D}, MaxPayloadSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.kind, tt.payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			for _, b := range wire[1 : len(wire)-1] {
				if b == StartByte || b == EndByte {
					t.Fatalf("unstuffed delimiter inside frame: % X", wire)
				}
			}

			frames, errs := decodeAll(t, wire)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if len(frames) != 1 {
				t.Fatalf("expected 1 frame, got %d", len(frames))
			}
			f := frames[0]
			if f.Kind() != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, f.Kind())
			}
			if !bytes.Equal(f.Payload(), tt.payload) && !(len(f.Payload()) == 0 && len(tt.payload) == 0) {
				t.Errorf("expected payload % X, got % X", tt.payload, f.Payload())
			}
		})
	}
}

func TestEncode_TooLarge(t *testing.T) {
	if _, err := Encode(KindNotify, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestDecode_CRCMismatch(t *testing.T) {
	wire, _ := Encode(KindNotify, []byte{0x01, 0x02, 0xFD, 0x00})
	// Flip a payload bit that does not need stuffing either way
	wire[4] ^= 0x01

	frames, errs := decodeAll(t, wire)
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %d", len(frames))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrCRCMismatch) {
		t.Errorf("expected one ErrCRCMismatch, got %v", errs)
	}
}

func TestDecode_InvalidLength(t *testing.T) {
	_, errs := decodeAll(t, []byte{StartByte, MaxPayloadSize + 1})
	if len(errs) != 1 || !errors.Is(errs[0], ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", errs)
	}
}

func TestDecode_UnexpectedEnd(t *testing.T) {
	_, errs := decodeAll(t, []byte{StartByte, 0x03, byte(KindNotify), 0x01, EndByte})
	if len(errs) != 1 || !errors.Is(errs[0], ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", errs)
	}
}

func TestDecode_ResyncOnStart(t *testing.T) {
	good, _ := Encode(KindNotify, []byte{0x00, 0x0C, 0x57})
	// Garbage, then a truncated frame, then a good one
	stream := append([]byte{0x11, 0x22, StartByte, 0x05, 0x01}, good...)

	frames, errs := decodeAll(t, stream)
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload(), []byte{0x00, 0x0C, 0x57}) {
		t.Errorf("expected the good frame after resync, got %v", frames)
	}
}

func TestDecode_BackToBack(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		wire, _ := Encode(KindNotify, []byte{0x01, 0x02, byte(i), 0x00})
		stream = append(stream, wire...)
	}
	frames, errs := decodeAll(t, stream)
	if len(errs) != 0 || len(frames) != 5 {
		t.Fatalf("expected 5 frames and no errors, got %d frames, %v", len(frames), errs)
	}
	for i, f := range frames {
		if f.Payload()[2] != byte(i) {
			t.Errorf("frame %d out of order", i)
		}
	}
}

// ============================================================
// Frame Tests
// ============================================================

func TestFrame_Pong(t *testing.T) {
	wire := MustEncodeFrame(NewPong(90 * time.Minute))
	frames, errs := decodeAll(t, wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("decode failed: %v", errs)
	}
	uptime, err := frames[0].Uptime()
	if err != nil {
		t.Fatalf("Uptime failed: %v", err)
	}
	if uptime != 90*time.Minute {
		t.Errorf("expected 90m, got %v", uptime)
	}

	if _, err := NewPing().Uptime(); err == nil {
		t.Error("PING should carry no uptime")
	}
	if _, err := NewFrame(KindPong, []byte{1, 2}).Uptime(); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming for short PONG, got %v", err)
	}
}

func TestFrame_ErrorText(t *testing.T) {
	f := NewFrame(KindError, []byte("not connected"))
	if f.ErrorText() != "not connected" {
		t.Errorf("unexpected error text %q", f.ErrorText())
	}
	if NewNotify([]byte{1, 2, 3}).ErrorText() != "" {
		t.Error("non-error frame should have no error text")
	}
}

func TestKind_CarriesMessage(t *testing.T) {
	for _, k := range []Kind{KindNotify, KindReadResponse, KindWrite} {
		if !k.CarriesMessage() {
			t.Errorf("%s should carry a message", k)
		}
	}
	for _, k := range []Kind{KindRequest, KindPing, KindPong, KindError, KindAdvert} {
		if k.CarriesMessage() {
			t.Errorf("%s should not carry a message", k)
		}
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := 0; i < getFuzzRounds(); i++ {
		payload := make([]byte, rng.Intn(MaxPayloadSize+1))
		rng.Read(payload)
		kind := Kind(rng.Intn(256))

		wire, err := Encode(kind, payload)
		if err != nil {
			t.Fatalf("round %d: Encode failed: %v", i, err)
		}
		frames, errs := d.Decode(wire)
		if len(errs) != 0 || len(frames) != 1 {
			t.Fatalf("round %d: expected 1 frame, got %d (%v)", i, len(frames), errs)
		}
		if frames[0].Kind() != kind || !bytes.Equal(frames[0].Payload(), payload) {
			t.Fatalf("round %d: frame mismatch", i)
		}
	}
}

func TestFuzz_RandomBytesNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	d := NewDecoder()

	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(128))
		rng.Read(data)
		frames, _ := d.Decode(data)
		for _, f := range frames {
			if f.Length() > MaxPayloadSize {
				t.Fatalf("round %d: oversized frame decoded", i)
			}
		}
	}
}

// ============================================================
// Advert Tests
// ============================================================

func TestAdvert_RoundTrip(t *testing.T) {
	mfr := append([]byte{0x59, 0x00}, []byte("TURBOHMI")...)
	wire := MustEncodeFrame(NewAdvert([6]byte{0xC0, 0x01, 0x02, 0x03, 0x04, 0x05}, -67, mfr))

	frames, errs := decodeAll(t, wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("decode failed: %v", errs)
	}
	adv, err := ParseAdvert(frames[0].Payload())
	if err != nil {
		t.Fatalf("ParseAdvert: %v", err)
	}
	if adv.Address != "C0:01:02:03:04:05" {
		t.Errorf("address = %s", adv.Address)
	}
	if adv.RSSI != -67 {
		t.Errorf("rssi = %d", adv.RSSI)
	}
	if !bytes.Equal(adv.Manufacturer, mfr) {
		t.Errorf("manufacturer = % X", adv.Manufacturer)
	}
}

func TestAdvert_TooShort(t *testing.T) {
	if _, err := ParseAdvert([]byte{1, 2, 3}); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
}
