// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records bridge traffic to a CBOR stream and plays it back.
//
// A capture file is a plain sequence of CBOR maps, one per frame:
//
//	{"t": unix-nanos, "k": frame kind, "o": outbound, "d": payload}
//
// Files can be appended to across runs and concatenated with cat.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
)

// ErrRecorderClosed is returned when appending to a closed recorder
var ErrRecorderClosed = errors.New("recorder closed")

// Entry is one captured frame
type Entry struct {
	Time     int64       `cbor:"t"`
	Kind     bridge.Kind `cbor:"k"`
	Outbound bool        `cbor:"o,omitempty"`
	Data     []byte      `cbor:"d"`
}

// Timestamp returns the capture time
func (e *Entry) Timestamp() time.Time {
	return time.Unix(0, e.Time)
}

// Recorder appends entries to a writer
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *cbor.Encoder
	closer io.Closer
	count  int
	err    error
	closed bool
}

// NewRecorder writes entries to w. Close flushes and, when w is an
// io.Closer, closes it.
func NewRecorder(w io.Writer) *Recorder {
	bw := bufio.NewWriter(w)
	r := &Recorder{
		w:   bw,
		enc: cbor.NewEncoder(bw),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Create opens path for appending and returns a recorder on it
func Create(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewRecorder(f), nil
}

// Append writes one entry
func (r *Recorder) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if r.err != nil {
		return r.err
	}
	if e.Time == 0 {
		e.Time = time.Now().UnixNano()
	}
	if err := r.enc.Encode(e); err != nil {
		r.err = fmt.Errorf("encode capture entry: %w", err)
		return r.err
	}
	r.count++
	return nil
}

// Frame records f. It has the transport.FrameHook signature so a
// recorder can be attached to a link directly; errors are kept and
// returned by Err and Close.
func (r *Recorder) Frame(f *bridge.Frame, outbound bool) {
	r.Append(Entry{
		Time:     f.Timestamp().UnixNano(),
		Kind:     f.Kind(),
		Outbound: outbound,
		Data:     f.Payload(),
	})
}

// Count returns how many entries were written
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Flush pushes buffered entries to the underlying writer
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	return r.w.Flush()
}

// Close flushes and closes the recorder
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.w.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = r.err
	}
	return err
}

// Player reads entries back
type Player struct {
	dec      *cbor.Decoder
	closer   io.Closer
	realtime bool
	speed    float64

	last  int64
	count int
}

// PlayerOption configures a Player
type PlayerOption func(*Player)

// WithRealtime paces Next by the recorded timestamps, scaled by speed
// (2 plays twice as fast)
func WithRealtime(speed float64) PlayerOption {
	return func(p *Player) {
		if speed <= 0 {
			speed = 1
		}
		p.realtime = true
		p.speed = speed
	}
}

// NewPlayer reads entries from r
func NewPlayer(r io.Reader, opts ...PlayerOption) *Player {
	p := &Player{
		dec:   cbor.NewDecoder(bufio.NewReader(r)),
		speed: 1,
	}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open returns a player for the capture file at path
func Open(path string, opts ...PlayerOption) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewPlayer(f, opts...), nil
}

// Next returns the next entry, or io.EOF when the capture is exhausted.
// A truncated trailing entry is reported as io.ErrUnexpectedEOF.
func (p *Player) Next(ctx context.Context) (*Entry, error) {
	var e Entry
	if err := p.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		return nil, fmt.Errorf("decode capture entry %d: %w", p.count, err)
	}

	if p.realtime && p.last != 0 && e.Time > p.last {
		wait := time.Duration(float64(e.Time-p.last) / p.speed)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	p.last = e.Time
	p.count++
	return &e, nil
}

// Count returns how many entries have been read
func (p *Player) Count() int {
	return p.count
}

// Feed plays every inbound notification into m and returns how many were
// fed. Decode errors are counted by the monitor, not returned.
func (p *Player) Feed(ctx context.Context, m *telemetry.Monitor) (int, error) {
	fed := 0
	for {
		e, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			return fed, nil
		}
		if err != nil {
			return fed, err
		}
		if e.Outbound || e.Kind != bridge.KindNotify {
			continue
		}
		if _, err := m.Feed(e.Data); errors.Is(err, telemetry.ErrMonitorClosed) {
			return fed, err
		}
		fed++
	}
}

// Close closes the underlying reader when it is an io.Closer
func (p *Player) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
