// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session keeps a bridge link alive and feeds everything it
// notifies into a single telemetry monitor.
//
// The lifecycle is a small state machine:
//
//	disconnected -> connecting -> streaming
//	                    ^             |
//	                    |             v
//	                    +---- reconnecting
//
// Any state can move to closed. Reconnects back off exponentially.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
)

const (
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// ErrNotStreaming is returned by Link when no bridge is attached
var ErrNotStreaming = errors.New("session is not streaming")

// Session owns the connection to a bridge
type Session struct {
	dial     transport.Dialer
	monitor  *telemetry.Monitor
	log      log.Logger
	linkOpts []transport.LinkOption

	reconnect  bool
	minBackoff time.Duration
	maxBackoff time.Duration

	fsm *lifecycle

	mu       sync.RWMutex
	link     *transport.Link
	info     string
	attempts int
	hooks    []StateHook
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger log.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithBackoff bounds the delay between reconnect attempts
func WithBackoff(initial, limit time.Duration) Option {
	return func(s *Session) {
		s.minBackoff = initial
		s.maxBackoff = limit
	}
}

// WithReconnect controls whether a lost or failed connection is retried.
// Without it Run returns the first connection error.
func WithReconnect(enabled bool) Option {
	return func(s *Session) {
		s.reconnect = enabled
	}
}

// WithLinkOptions applies opts to every link the session creates
func WithLinkOptions(opts ...transport.LinkOption) Option {
	return func(s *Session) {
		s.linkOpts = append(s.linkOpts, opts...)
	}
}

// WithStateHook registers h for state changes
func WithStateHook(h StateHook) Option {
	return func(s *Session) {
		s.hooks = append(s.hooks, h)
	}
}

// New creates a session that dials with dial and feeds monitor
func New(dial transport.Dialer, monitor *telemetry.Monitor, opts ...Option) *Session {
	s := &Session{
		dial:       dial,
		monitor:    monitor,
		log:        log.NewNopLogger(),
		reconnect:  true,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = s.minBackoff
	}
	s.fsm = newLifecycle(s.stateHooks)
	return s
}

func (s *Session) stateHooks() []StateHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

// OnStateChange registers h after construction
func (s *Session) OnStateChange(h StateHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// State returns the current lifecycle state
func (s *Session) State() string {
	return s.fsm.Current()
}

// Info describes the current connection, or is empty when not streaming
func (s *Session) Info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Attempts returns how many dials have failed since the last success
func (s *Session) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Link returns the live link for requests and writes
func (s *Session) Link() (*transport.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link == nil {
		return nil, ErrNotStreaming
	}
	return s.link, nil
}

// Monitor returns the monitor the session feeds
func (s *Session) Monitor() *telemetry.Monitor {
	return s.monitor
}

func (s *Session) event(ctx context.Context, name string) {
	if err := s.fsm.Event(ctx, name); err != nil {
		s.log.Debug("state transition rejected", "event", name, "state", s.fsm.Current(), "err", err)
	}
}

// Run connects and streams until ctx is done. With reconnect enabled it
// only returns on cancellation; otherwise the first connection error or
// link failure ends it. The session is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.event(context.Background(), EventClose)

	s.event(ctx, EventConnect)
	backoff := s.minBackoff

	for {
		conn, info, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !s.reconnect {
				return err
			}
			s.mu.Lock()
			s.attempts++
			attempts := s.attempts
			s.mu.Unlock()
			s.log.Warn("connect failed", "err", err.Error(), "attempt", attempts, "retry_in", backoff.String())
		} else {
			backoff = s.minBackoff
			err = s.stream(ctx, conn, info)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, telemetry.ErrMonitorClosed) {
				return err
			}
			if !s.reconnect {
				return err
			}
			s.log.Warn("connection lost", "err", errString(err), "retry_in", backoff.String())
		}

		s.event(ctx, EventLost)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
		s.event(ctx, EventRetry)
	}
}

// stream runs one link until it fails, feeding notifications to the monitor
func (s *Session) stream(ctx context.Context, conn transport.Connection, info string) error {
	link := transport.NewLink(conn, s.linkOpts...)

	s.mu.Lock()
	s.link = link
	s.info = info
	s.attempts = 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.link = nil
		s.info = ""
		s.mu.Unlock()
	}()

	s.log.Info("connected", "conn", info)
	s.event(ctx, EventEstablished)

	errCh := make(chan error, 1)
	go func() {
		errCh <- link.Run(ctx)
	}()

	var feedErr error
	for buf := range link.Notifications() {
		if feedErr != nil {
			continue
		}
		if _, err := s.monitor.Feed(buf); errors.Is(err, telemetry.ErrMonitorClosed) {
			feedErr = err
			link.Close()
		}
	}

	runErr := <-errCh
	if feedErr != nil {
		return feedErr
	}
	return runErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return "eof"
	}
	return err.Error()
}
