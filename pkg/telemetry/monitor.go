// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// ErrMonitorClosed is returned by Feed after Close
var ErrMonitorClosed = errors.New("monitor closed")

// DefaultStreamBuffer is the record stream capacity
const DefaultStreamBuffer = 256

// Summary is a point-in-time copy of a monitor
type Summary struct {
	Snapshot     *Snapshot `json:"snapshot" yaml:"snapshot"`
	MessageCount uint64    `json:"message_count" yaml:"message_count"`
	UnknownCount uint64    `json:"unknown_count" yaml:"unknown_count"`
	LastUpdated  time.Time `json:"last_updated" yaml:"last_updated"`
}

// ToMap returns the snapshot view plus the message count
func (s *Summary) ToMap() map[string]any {
	m := s.Snapshot.ToMap()
	m["message_count"] = s.MessageCount
	return m
}

// UpdateFunc is called after each decoded record with a copy of the snapshot
type UpdateFunc func(rec *turbo.Record, snap *Snapshot)

// Monitor decodes raw buffers and is the only writer of its snapshot.
// Readers get copies, so all methods are safe for concurrent use.
type Monitor struct {
	decoder  *turbo.Decoder
	log      logr.Logger
	validate bool

	mu          sync.RWMutex
	snapshot    *Snapshot
	stats       *turbo.Statistics
	messages    uint64
	unknown     uint64
	dropped     uint64
	lastUpdated time.Time
	onUpdate    []UpdateFunc
	stream      chan *turbo.Record
	closed      bool
}

// Option configures a Monitor
type Option func(*Monitor)

// WithRegistry decodes with r instead of the default field table
func WithRegistry(r *turbo.Registry) Option {
	return func(m *Monitor) {
		m.decoder = turbo.NewDecoder(r)
	}
}

// WithLogger sets the logger for decode failures and dropped records
func WithLogger(log logr.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// WithStreamBuffer sets the capacity of the Stream channel
func WithStreamBuffer(n int) Option {
	return func(m *Monitor) {
		if n < 0 {
			n = 0
		}
		m.stream = make(chan *turbo.Record, n)
	}
}

// WithValidation runs every record through turbo.ValidateRecord so the
// statistics count anomalies
func WithValidation() Option {
	return func(m *Monitor) {
		m.validate = true
	}
}

// NewMonitor creates a monitor with an empty snapshot
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		decoder: turbo.NewDecoder(nil),
		stats:   turbo.NewStatistics(),
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.stream == nil {
		m.stream = make(chan *turbo.Record, DefaultStreamBuffer)
	}
	m.snapshot = NewSnapshot(m.log.WithName("snapshot"))
	return m
}

// OnUpdate registers fn to run after every decoded record.
// Callbacks run on the feeding goroutine, outside the monitor lock.
func (m *Monitor) OnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = append(m.onUpdate, fn)
}

// Feed decodes one buffer and applies it to the snapshot.
// Decode errors are logged, counted and returned; they never poison later
// buffers.
func (m *Monitor) Feed(buf []byte) (*turbo.Record, error) {
	rec, err := m.decoder.Decode(buf)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}

	if err != nil {
		m.stats.Update(nil, err, nil)
		m.mu.Unlock()
		m.log.Error(err, "failed to decode message", "data", turbo.FormatHex(buf))
		return nil, err
	}

	var anomalies []turbo.ValidationError
	if m.validate {
		anomalies = turbo.ValidateRecord(rec)
	}
	m.stats.Update(rec, nil, anomalies)
	m.messages++
	m.lastUpdated = rec.Timestamp
	if !m.snapshot.UpdateFromRecord(rec) {
		m.unknown++
	}

	select {
	case m.stream <- rec:
	default:
		m.dropped++
	}

	callbacks := m.onUpdate
	var snap *Snapshot
	if len(callbacks) > 0 {
		snap = m.snapshot.Clone()
	}
	m.mu.Unlock()

	if rec.Known() {
		m.log.V(2).Info("decoded", "field", rec.Name(), "value", rec.Value, "unit", rec.Unit())
	}
	for _, fn := range callbacks {
		fn(rec, snap)
	}
	return rec, nil
}

// Run feeds every buffer from source until source is closed or ctx is done
func (m *Monitor) Run(ctx context.Context, source <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-source:
			if !ok {
				return nil
			}
			if _, err := m.Feed(buf); errors.Is(err, ErrMonitorClosed) {
				return err
			}
		}
	}
}

// Stream returns the channel of decoded records. Records are dropped when
// the consumer falls behind. The channel is closed by Close.
func (m *Monitor) Stream() <-chan *turbo.Record {
	return m.stream
}

// Snapshot returns a copy of the current snapshot
func (m *Monitor) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone()
}

// Summary returns a copy of the snapshot with the message counters
func (m *Monitor) Summary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Summary{
		Snapshot:     m.snapshot.Clone(),
		MessageCount: m.messages,
		UnknownCount: m.unknown,
		LastUpdated:  m.lastUpdated,
	}
}

// Statistics returns a copy of the decode statistics with rates filled in
func (m *Monitor) Statistics() turbo.Statistics {
	m.mu.RLock()
	stats := *m.stats
	m.mu.RUnlock()
	stats.CalculateRates()
	return stats
}

// Dropped returns how many records the stream consumer missed
func (m *Monitor) Dropped() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// Ready reports whether at least one record has been decoded
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.messages > 0
}

// Close stops the monitor and closes the stream. It is safe to call twice.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stream)
}
