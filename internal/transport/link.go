// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	// ErrRequestTimeout is returned when the bridge does not answer in time
	ErrRequestTimeout = errors.New("request timed out")

	// ErrLinkClosed is returned by operations on a link whose reader stopped
	ErrLinkClosed = errors.New("link closed")
)

// BridgeError is an ERROR frame sent by the bridge
type BridgeError struct {
	Reason string
}

func (e *BridgeError) Error() string {
	return "bridge error: " + e.Reason
}

// LinkStats counts what the reader has seen
type LinkStats struct {
	Frames        uint64
	Notifications uint64
	Dropped       uint64
	CRCErrors     uint64
	FramingErrors uint64
}

// FrameHook observes every frame read from or written to the bridge
type FrameHook func(f *bridge.Frame, outbound bool)

// Link speaks bridge frames over a Connection.
//
// Run owns the read side. Notifications and adverts are fanned out to
// buffered channels that drop when full; read responses and pongs are
// delivered to the single request in flight.
type Link struct {
	conn    Connection
	log     log.Logger
	timeout time.Duration
	hooks   []FrameHook

	writeMu sync.Mutex
	reqMu   sync.Mutex

	notifications chan []byte
	adverts       chan *bridge.Advert
	replies       chan *bridge.Frame
	done          chan struct{}
	closeOnce     sync.Once

	frames        atomic.Uint64
	notifyCount   atomic.Uint64
	dropped       atomic.Uint64
	crcErrors     atomic.Uint64
	framingErrors atomic.Uint64
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithRequestTimeout bounds Request and Ping round trips
func WithRequestTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		l.timeout = d
	}
}

// WithLinkLogger sets the link logger
func WithLinkLogger(logger log.Logger) LinkOption {
	return func(l *Link) {
		l.log = logger
	}
}

// WithFrameHook adds an observer for every frame in both directions
func WithFrameHook(h FrameHook) LinkOption {
	return func(l *Link) {
		l.hooks = append(l.hooks, h)
	}
}

// WithNotificationBuffer sets the notification channel capacity
func WithNotificationBuffer(n int) LinkOption {
	return func(l *Link) {
		l.notifications = make(chan []byte, n)
	}
}

// NewLink wraps conn. Call Run to start reading.
func NewLink(conn Connection, opts ...LinkOption) *Link {
	l := &Link{
		conn:    conn,
		log:     log.NewNopLogger(),
		timeout: 2 * time.Second,
		adverts: make(chan *bridge.Advert, 32),
		replies: make(chan *bridge.Frame, 4),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.notifications == nil {
		l.notifications = make(chan []byte, 256)
	}
	return l
}

// Run reads frames until the connection fails or ctx is done. The
// connection is closed and the notification and advert channels are
// closed when it returns.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer stop()
	defer l.shutdown()
	defer l.conn.Close()

	decoder := bridge.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := l.conn.Read(buf)
		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				l.countError(decodeErr)
				continue
			}
			if frame != nil {
				l.dispatch(frame)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (l *Link) shutdown() {
	l.closeOnce.Do(func() {
		close(l.done)
		close(l.notifications)
		close(l.adverts)
	})
}

func (l *Link) countError(err error) {
	switch {
	case errors.Is(err, bridge.ErrCRCMismatch):
		l.crcErrors.Add(1)
	default:
		l.framingErrors.Add(1)
	}
	l.log.Debug("bridge frame error", "err", err)
}

func (l *Link) dispatch(f *bridge.Frame) {
	l.frames.Add(1)
	for _, h := range l.hooks {
		h(f, false)
	}

	switch f.Kind() {
	case bridge.KindNotify:
		l.notifyCount.Add(1)
		select {
		case l.notifications <- f.Payload():
		default:
			l.dropped.Add(1)
		}

	case bridge.KindAdvert:
		adv, err := bridge.ParseAdvert(f.Payload())
		if err != nil {
			l.log.Warn("bad advert", "err", err)
			return
		}
		select {
		case l.adverts <- adv:
		default:
		}

	case bridge.KindReadResponse, bridge.KindPong, bridge.KindError:
		select {
		case l.replies <- f:
		default:
			l.log.Warn("unsolicited reply dropped", "kind", f.Kind().String())
		}

	default:
		l.log.Debug("ignoring frame", "kind", f.Kind().String(), "payload", f.Payload())
	}
}

// Notifications returns raw notify buffers in arrival order
func (l *Link) Notifications() <-chan []byte {
	return l.notifications
}

// Adverts returns scan results relayed by the bridge
func (l *Link) Adverts() <-chan *bridge.Advert {
	return l.adverts
}

// Done is closed when Run returns
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) send(f *bridge.Frame) error {
	wire, err := bridge.EncodeFrame(f)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.conn.Write(wire); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Kind(), err)
	}
	for _, h := range l.hooks {
		h(f, true)
	}
	return nil
}

// Write sends a command buffer to the write characteristic
func (l *Link) Write(cmd []byte) error {
	return l.send(bridge.NewWrite(cmd))
}

// Request performs a Request-Read: the (producer, channel) pair goes to the
// request characteristic and the bridge answers with what the
// request-read characteristic holds afterwards. A response for another
// pair is logged and returned as-is.
func (l *Link) Request(ctx context.Context, producer turbo.Producer, channel uint8) ([]byte, error) {
	l.reqMu.Lock()
	defer l.reqMu.Unlock()

	l.drainReplies()
	query := turbo.BuildRequest(producer, channel)
	if err := l.send(bridge.NewRequest(query)); err != nil {
		return nil, err
	}

	f, err := l.awaitReply(ctx, bridge.KindReadResponse)
	if err != nil {
		return nil, fmt.Errorf("request %s/0x%02X: %w", producer, channel, err)
	}

	resp := f.Payload()
	if len(resp) < 2 || !bytes.Equal(resp[:2], query) {
		l.log.Warn("response does not match request",
			"producer", producer.String(), "channel", channel, "response", resp)
	}
	return resp, nil
}

// Ping checks the bridge is alive and returns its uptime and the round trip time
func (l *Link) Ping(ctx context.Context) (uptime, rtt time.Duration, err error) {
	l.reqMu.Lock()
	defer l.reqMu.Unlock()

	l.drainReplies()
	start := time.Now()
	if err := l.send(bridge.NewPing()); err != nil {
		return 0, 0, err
	}

	f, err := l.awaitReply(ctx, bridge.KindPong)
	if err != nil {
		return 0, 0, fmt.Errorf("ping: %w", err)
	}
	rtt = time.Since(start)
	uptime, err = f.Uptime()
	return uptime, rtt, err
}

func (l *Link) drainReplies() {
	for {
		select {
		case <-l.replies:
		default:
			return
		}
	}
}

func (l *Link) awaitReply(ctx context.Context, want bridge.Kind) (*bridge.Frame, error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-l.replies:
			switch f.Kind() {
			case want:
				return f, nil
			case bridge.KindError:
				return nil, &BridgeError{Reason: f.ErrorText()}
			default:
				l.log.Debug("skipping stale reply", "kind", f.Kind().String())
			}
		case <-timer.C:
			return nil, ErrRequestTimeout
		case <-l.done:
			return nil, ErrLinkClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stats returns the reader counters
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Frames:        l.frames.Load(),
		Notifications: l.notifyCount.Load(),
		Dropped:       l.dropped.Load(),
		CRCErrors:     l.crcErrors.Load(),
		FramingErrors: l.framingErrors.Load(),
	}
}

// Close closes the underlying connection, which stops Run
func (l *Link) Close() error {
	return l.conn.Close()
}
