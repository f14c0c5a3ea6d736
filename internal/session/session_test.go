// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// ============================================================
// Helpers
// ============================================================

// pipeDialer hands out one end of a fresh pipe per dial and passes the
// bridge end to serve. Dials listed in fail return an error instead.
type pipeDialer struct {
	mu    sync.Mutex
	dials int
	fail  map[int]bool
	serve func(dial int, dev net.Conn)
}

func (d *pipeDialer) dial(ctx context.Context) (transport.Connection, string, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()

	if d.fail[n] {
		return nil, "", errors.New("no bridge")
	}
	host, dev := net.Pipe()
	go d.serve(n, dev)
	return host, "pipe", nil
}

func (d *pipeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type stateLog struct {
	mu     sync.Mutex
	states []string
}

func (l *stateLog) hook(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *stateLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.states...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func notify(dev net.Conn, msg []byte) error {
	_, err := dev.Write(bridge.MustEncodeFrame(bridge.NewNotify(msg)))
	return err
}

// ============================================================
// Session Tests
// ============================================================

func TestSession_StreamsIntoMonitor(t *testing.T) {
	d := &pipeDialer{serve: func(_ int, dev net.Conn) {
		notify(dev, []byte{0x00, 0x0C, 0x57})
		notify(dev, []byte{0x01, 0x02, 0xFD, 0x00})
		// Keep the link up until the session closes it
		buf := make([]byte, 16)
		for {
			if _, err := dev.Read(buf); err != nil {
				return
			}
		}
	}}

	monitor := telemetry.NewMonitor()
	states := &stateLog{}
	s := New(d.dial, monitor, WithStateHook(states.hook))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitFor(t, "two messages", func() bool { return monitor.Summary().MessageCount == 2 })

	snap := monitor.Snapshot()
	if snap.Battery.ChargePct == nil || *snap.Battery.ChargePct != 87 {
		t.Errorf("charge not applied: %+v", snap.Battery)
	}
	if snap.Motor.SpeedKmh == nil || *snap.Motor.SpeedKmh != 25.3 {
		t.Errorf("speed not applied: %+v", snap.Motor)
	}
	if s.State() != StateStreaming {
		t.Errorf("expected streaming, got %s", s.State())
	}
	if s.Info() != "pipe" {
		t.Errorf("unexpected info %q", s.Info())
	}
	if _, err := s.Link(); err != nil {
		t.Errorf("expected a live link: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if _, err := s.Link(); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("expected ErrNotStreaming, got %v", err)
	}

	want := []string{StateConnecting, StateStreaming, StateClosed}
	got := states.get()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSession_Reconnects(t *testing.T) {
	d := &pipeDialer{
		fail: map[int]bool{2: true},
		serve: func(n int, dev net.Conn) {
			notify(dev, []byte{0x00, 0x0C, byte(n)})
			if n == 1 {
				// Drop the first connection after one message
				dev.Close()
				return
			}
			buf := make([]byte, 16)
			for {
				if _, err := dev.Read(buf); err != nil {
					return
				}
			}
		},
	}

	monitor := telemetry.NewMonitor()
	states := &stateLog{}
	s := New(d.dial, monitor,
		WithBackoff(time.Millisecond, 4*time.Millisecond),
		WithStateHook(states.hook))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, "the third dial", func() bool { return d.count() >= 3 })
	waitFor(t, "the second message", func() bool { return monitor.Summary().MessageCount == 2 })
	waitFor(t, "streaming", func() bool { return s.State() == StateStreaming })

	if got := monitor.Snapshot().Battery.ChargePct; got == nil || *got != 3 {
		t.Errorf("expected charge from the third connection, got %v", got)
	}
	if s.Attempts() != 0 {
		t.Errorf("attempts should reset after a successful dial, got %d", s.Attempts())
	}

	seen := map[string]bool{}
	for _, st := range states.get() {
		seen[st] = true
	}
	if !seen[StateReconnecting] {
		t.Errorf("never entered reconnecting: %v", states.get())
	}
}

func TestSession_NoReconnect(t *testing.T) {
	t.Run("dial error", func(t *testing.T) {
		d := &pipeDialer{fail: map[int]bool{1: true}}
		s := New(d.dial, telemetry.NewMonitor(), WithReconnect(false))

		err := s.Run(context.Background())
		if err == nil || err.Error() != "no bridge" {
			t.Errorf("expected dial error, got %v", err)
		}
		if s.State() != StateClosed {
			t.Errorf("expected closed, got %s", s.State())
		}
	})

	t.Run("link drop", func(t *testing.T) {
		d := &pipeDialer{serve: func(_ int, dev net.Conn) {
			dev.Close()
		}}
		s := New(d.dial, telemetry.NewMonitor(), WithReconnect(false))

		done := make(chan error, 1)
		go func() { done <- s.Run(context.Background()) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
		if d.count() != 1 {
			t.Errorf("expected a single dial, got %d", d.count())
		}
	})
}

// unpluggedConn fails every read, like a bridge pulled from the port
type unpluggedConn struct {
	closed *atomic.Int32
}

func (c unpluggedConn) Read(p []byte) (int, error)  { return 0, errors.New("device unplugged") }
func (c unpluggedConn) Write(p []byte) (int, error) { return len(p), nil }
func (c unpluggedConn) Close() error {
	c.closed.Add(1)
	return nil
}

func TestSession_ClosesFailedConnections(t *testing.T) {
	var opened, closed atomic.Int32
	dial := func(ctx context.Context) (transport.Connection, string, error) {
		opened.Add(1)
		return unpluggedConn{closed: &closed}, "unplugged", nil
	}

	s := New(dial, telemetry.NewMonitor(), WithBackoff(time.Millisecond, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "several reconnects", func() bool { return opened.Load() >= 5 })
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if o, c := opened.Load(), closed.Load(); c < o {
		t.Errorf("connections leaked: opened=%d closed=%d", o, c)
	}
}

func TestSession_StopsWhenMonitorCloses(t *testing.T) {
	d := &pipeDialer{serve: func(_ int, dev net.Conn) {
		for i := 0; i < 100; i++ {
			if err := notify(dev, []byte{0x00, 0x0C, 0x40}); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}}

	monitor := telemetry.NewMonitor()
	monitor.Close()
	s := New(d.dial, monitor, WithBackoff(time.Millisecond, time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, telemetry.ErrMonitorClosed) {
			t.Errorf("expected ErrMonitorClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSession_LinkRequests(t *testing.T) {
	d := &pipeDialer{serve: func(_ int, dev net.Conn) {
		decoder := bridge.NewDecoder()
		buf := make([]byte, 64)
		for {
			n, err := dev.Read(buf)
			if err != nil {
				return
			}
			frames, _ := decoder.Decode(buf[:n])
			for _, f := range frames {
				if f.Kind() == bridge.KindRequest {
					resp := append(f.Payload(), 0x2A)
					dev.Write(bridge.MustEncodeFrame(bridge.NewFrame(bridge.KindReadResponse, resp)))
				}
			}
		}
	}}

	s := New(d.dial, telemetry.NewMonitor())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, "streaming", func() bool { return s.State() == StateStreaming })
	link, err := s.Link()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := link.Request(ctx, turbo.ProducerBattery, turbo.ChannelBatteryHealth)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	rec, err := turbo.Decode(resp)
	if err != nil || rec.Value != int64(42) {
		t.Errorf("unexpected response %v %v", rec, err)
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   string
		ok     bool
	}{
		{"connect", []string{EventConnect}, StateConnecting, true},
		{"established", []string{EventConnect, EventEstablished}, StateStreaming, true},
		{"lost while connecting", []string{EventConnect, EventLost}, StateReconnecting, true},
		{"retry", []string{EventConnect, EventEstablished, EventLost, EventRetry}, StateConnecting, true},
		{"close anywhere", []string{EventConnect, EventEstablished, EventClose}, StateClosed, true},
		{"established without connect", []string{EventEstablished}, StateDisconnected, false},
		{"nothing after close", []string{EventClose, EventConnect}, StateClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLifecycle(func() []StateHook { return nil })
			var lastErr error
			for _, ev := range tt.events {
				lastErr = l.Event(context.Background(), ev)
			}
			if l.Current() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, l.Current())
			}
			if (lastErr == nil) != tt.ok {
				t.Errorf("unexpected last error %v", lastErr)
			}
		})
	}
}
