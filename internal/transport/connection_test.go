// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/turbostat/internal/options"
	"github.com/Thermoquad/turbostat/pkg/bridge"
)

func newBridgeServer(t *testing.T, user, pass string, serve func(c *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		serve(c)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_BinaryOnly(t *testing.T) {
	wire := bridge.MustEncodeFrame(bridge.NewNotify([]byte{0x01, 0x05, 0x02, 0x00}))

	url := newBridgeServer(t, "", "", func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("hello"))
		c.WriteMessage(websocket.BinaryMessage, wire)
		// Hold the connection until the client is done
		c.ReadMessage()
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := make([]byte, 0, len(wire))
	buf := make([]byte, 4)
	for len(got) < len(wire) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, wire) {
		t.Errorf("expected % X, got % X", wire, got)
	}
}

func TestWebSocketConnection_BasicAuth(t *testing.T) {
	url := newBridgeServer(t, "rider", "s3cret", func(c *websocket.Conn) {
		c.WriteMessage(websocket.BinaryMessage, []byte{0x7E})
	})

	if _, err := OpenWebSocketConnection(context.Background(), url, "rider", "wrong", false); err == nil {
		t.Error("expected auth failure")
	}

	conn, err := OpenWebSocketConnection(context.Background(), url, "rider", "s3cret", false)
	if err != nil {
		t.Fatalf("dial with credentials: %v", err)
	}
	conn.Close()
}

func TestWebSocketConnection_ClosedAfterError(t *testing.T) {
	url := newBridgeServer(t, "", "", func(c *websocket.Conn) {})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 8)
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed on second read, got %v", err)
	}
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	if _, err := OpenWebSocketConnection(context.Background(), "http://localhost/", "", "", false); err == nil {
		t.Error("expected error for http scheme")
	}
}

func TestNewDialer(t *testing.T) {
	if _, err := NewDialer(options.NewConnectionOptions()); !errors.Is(err, ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}

	wire := bridge.MustEncodeFrame(bridge.NewNotify([]byte{0x00, 0x0C, 0x40}))
	url := newBridgeServer(t, "", "", func(c *websocket.Conn) {
		c.WriteMessage(websocket.BinaryMessage, wire)
		c.ReadMessage()
	})

	opts := options.NewConnectionOptions()
	opts.URL = url
	dial, err := NewDialer(opts)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}

	conn, info, err := dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if !strings.HasPrefix(info, "WebSocket: ") {
		t.Errorf("unexpected info %q", info)
	}

	link := NewLink(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	select {
	case msg := <-link.Notifications():
		if !bytes.Equal(msg, []byte{0x00, 0x0C, 0x40}) {
			t.Errorf("unexpected notification % X", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
