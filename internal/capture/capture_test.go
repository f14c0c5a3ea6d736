// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
)

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	entries := []Entry{
		{Time: 1_000, Kind: bridge.KindNotify, Data: []byte{0x00, 0x0C, 0x57}},
		{Time: 2_000, Kind: bridge.KindWrite, Outbound: true, Data: []byte{0x01, 0x05, 0x02}},
		{Time: 3_000, Kind: bridge.KindPing},
	}
	for _, e := range entries {
		if err := rec.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Count() != len(entries) {
		t.Errorf("expected %d entries, got %d", len(entries), rec.Count())
	}

	p := NewPlayer(&buf)
	for i, want := range entries {
		got, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if got.Time != want.Time || got.Kind != want.Kind || got.Outbound != want.Outbound {
			t.Errorf("entry %d: expected %+v, got %+v", i, want, got)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Errorf("entry %d: expected data % X, got % X", i, want.Data, got.Data)
		}
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRecorder_FrameHook(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	rec.Frame(bridge.NewNotify([]byte{0x01, 0x02, 0xFD, 0x00}), false)
	rec.Frame(bridge.NewRequest([]byte{0x00, 0x0C}), true)
	if err := rec.Flush(); err != nil {
		t.Fatal(err)
	}

	p := NewPlayer(&buf)
	first, err := p.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != bridge.KindNotify || first.Outbound || first.Time == 0 {
		t.Errorf("unexpected first entry %+v", first)
	}
	second, err := p.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Kind != bridge.KindRequest || !second.Outbound {
		t.Errorf("unexpected second entry %+v", second)
	}
}

func TestRecorder_Closed(t *testing.T) {
	rec := NewRecorder(io.Discard)
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Append(Entry{Kind: bridge.KindNotify}); !errors.Is(err, ErrRecorderClosed) {
		t.Errorf("expected ErrRecorderClosed, got %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCreate_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.cbor")

	for i := 0; i < 2; i++ {
		rec, err := Create(path)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		rec.Append(Entry{Kind: bridge.KindNotify, Data: []byte{0x00, 0x0C, byte(i)}})
		if err := rec.Close(); err != nil {
			t.Fatal(err)
		}
	}

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	n := 0
	for {
		_, err := p.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestPlayer_Truncated(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	rec.Append(Entry{Time: 1, Kind: bridge.KindNotify, Data: []byte{0x00, 0x0C, 0x57}})
	rec.Close()

	data := buf.Bytes()
	p := NewPlayer(bytes.NewReader(data[:len(data)-2]))
	if _, err := p.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected a truncation error, got %v", err)
	}
}

func TestPlayer_Realtime(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	base := time.Now().UnixNano()
	rec.Append(Entry{Time: base, Kind: bridge.KindNotify})
	rec.Append(Entry{Time: base + int64(40*time.Millisecond), Kind: bridge.KindNotify})
	rec.Close()

	p := NewPlayer(bytes.NewReader(buf.Bytes()), WithRealtime(2))
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := p.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("replay was not paced: %v", elapsed)
	}

	t.Run("cancel", func(t *testing.T) {
		p := NewPlayer(bytes.NewReader(buf.Bytes()), WithRealtime(0.001))
		ctx, cancel := context.WithCancel(context.Background())
		if _, err := p.Next(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()
		if _, err := p.Next(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestPlayer_Feed(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	rec.Append(Entry{Kind: bridge.KindNotify, Data: []byte{0x00, 0x0C, 0x57}})
	rec.Append(Entry{Kind: bridge.KindRequest, Outbound: true, Data: []byte{0x01, 0x02}})
	rec.Append(Entry{Kind: bridge.KindReadResponse, Data: []byte{0x01, 0x02, 0xFD, 0x00}})
	rec.Append(Entry{Kind: bridge.KindNotify, Data: []byte{0x00, 0x02}})
	rec.Append(Entry{Kind: bridge.KindNotify, Data: []byte{0x01, 0x05, 0x02, 0x00}})
	rec.Close()

	m := telemetry.NewMonitor()
	fed, err := NewPlayer(&buf).Feed(context.Background(), m)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if fed != 3 {
		t.Errorf("expected 3 notifications fed, got %d", fed)
	}

	summary := m.Summary()
	if summary.MessageCount != 2 {
		t.Errorf("expected 2 decoded messages, got %d", summary.MessageCount)
	}
	if stats := m.Statistics(); stats.DecodeErrors+stats.MalformedMessages == 0 {
		t.Errorf("malformed buffer not counted: %+v", stats)
	}
	if got := summary.Snapshot.Battery.ChargePct; got == nil || *got != 87 {
		t.Errorf("charge not replayed: %v", got)
	}
	if summary.Snapshot.Motor.SpeedKmh != nil {
		t.Error("read responses must not be replayed as notifications")
	}
}
