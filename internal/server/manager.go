// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server runs the long-lived parts of `turbostat serve`: the bridge
// session, the HTTP API and the MQTT publisher.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/turbostat/internal/log"
)

// Server is anything the manager can supervise
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a function to Server
type ServerFunc func(ctx context.Context) error

// Start calls f
func (f ServerFunc) Start(ctx context.Context) error {
	return f(ctx)
}

// Manager runs servers together. The first one to fail cancels the rest.
type Manager struct {
	servers []Server
	log     log.Logger
}

// NewManager creates a manager for servers
func NewManager(logger log.Logger, servers ...Server) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{servers: servers, log: logger}
}

// Add appends a server. Call before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers and waits for them to return
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	m.log.Info("all servers starting", "count", len(m.servers))
	return g.Wait()
}
