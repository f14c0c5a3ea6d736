// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt publishes telemetry snapshots and field updates to an MQTT
// broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/options"
)

// Client is the part of an MQTT connection the publisher uses
type Client interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// Status payloads published retained on {root}/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PahoClient is a Client backed by an autopaho connection manager, which
// reconnects on its own
type PahoClient struct {
	opts *options.MQTTOptions
	log  log.Logger
	cm   *autopaho.ConnectionManager
}

// Dial starts connecting to the configured broker. It does not wait for
// the connection; use AwaitConnection for that.
func Dial(ctx context.Context, opts *options.MQTTOptions, logger log.Logger) (*PahoClient, error) {
	if !opts.Enabled() {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	brokerURL, err := url.Parse(opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	c := &PahoClient{opts: opts, log: logger}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("turbostat-%d", time.Now().UnixNano()%1_000_000)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     uint16(opts.KeepAlive / time.Second),
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                opts.ConnectTimeout,
		ConnectUsername:               opts.Username,
		ConnectPassword:               []byte(opts.Password),
		TlsCfg:                        &tls.Config{},
		WillMessage: &paho.WillMessage{
			Topic:   StatusTopic(opts.TopicRoot),
			Payload: []byte(StatusOffline),
			QoS:     opts.QoS,
			Retain:  true,
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           clientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
		},
	}

	c.log.Info("starting mqtt client", "broker", opts.Broker, "client_id", clientID)
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("start mqtt client: %w", err)
	}
	c.cm = cm
	return c, nil
}

// Publish sends payload to topic
func (c *PahoClient) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// AwaitConnection blocks until the broker accepted the connection
func (c *PahoClient) AwaitConnection(ctx context.Context) error {
	return c.cm.AwaitConnection(ctx)
}

// Disconnect marks the client offline and closes the connection
func (c *PahoClient) Disconnect(ctx context.Context) error {
	if err := c.Publish(ctx, StatusTopic(c.opts.TopicRoot), c.opts.QoS, true, []byte(StatusOffline)); err != nil {
		c.log.Debug("could not publish offline status", "err", err)
	}
	return c.cm.Disconnect(ctx)
}

func (c *PahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.log.Info("mqtt connection established")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
		defer cancel()
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   StatusTopic(c.opts.TopicRoot),
			QoS:     c.opts.QoS,
			Retain:  true,
			Payload: []byte(StatusOnline),
		}); err != nil {
			c.log.Error(err, "failed to publish online status")
		}
	}()
}

func (c *PahoClient) onConnectError(err error) {
	c.log.Warn("mqtt connection failed, retrying", "err", err.Error())
}

func (c *PahoClient) onClientError(err error) {
	c.log.Error(err, "mqtt client error")
}

func (c *PahoClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.log.Warn("mqtt server requested disconnect", "reason", reason)
}
