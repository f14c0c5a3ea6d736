// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"

	"github.com/looplab/fsm"
)

// Connection states
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateStreaming    = "streaming"
	StateReconnecting = "reconnecting"
	StateClosed       = "closed"
)

// Lifecycle events
const (
	// EventConnect starts the first dial
	EventConnect = "connect"
	// EventEstablished marks a live link
	EventEstablished = "established"
	// EventLost is fired when a dial fails or a live link drops
	EventLost = "lost"
	// EventRetry starts another dial after backoff
	EventRetry = "retry"
	// EventClose is terminal
	EventClose = "close"
)

// StateHook observes every state change
type StateHook func(from, to string)

type lifecycle struct {
	*fsm.FSM
}

func newLifecycle(hooks func() []StateHook) *lifecycle {
	l := &lifecycle{}

	events := fsm.Events{
		{Name: EventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
		{Name: EventEstablished, Src: []string{StateConnecting}, Dst: StateStreaming},
		{Name: EventLost, Src: []string{StateConnecting, StateStreaming}, Dst: StateReconnecting},
		{Name: EventRetry, Src: []string{StateReconnecting}, Dst: StateConnecting},
		{Name: EventClose, Src: []string{StateDisconnected, StateConnecting, StateStreaming, StateReconnecting}, Dst: StateClosed},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			for _, h := range hooks() {
				h(e.Src, e.Dst)
			}
		},
	}

	l.FSM = fsm.NewFSM(StateDisconnected, events, callbacks)
	return l
}
