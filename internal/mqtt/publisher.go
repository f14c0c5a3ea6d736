// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// SnapshotTopic is where the retained snapshot is published
func SnapshotTopic(root string) string {
	return root + "/snapshot"
}

// StatusTopic carries the online/offline marker
func StatusTopic(root string) string {
	return root + "/status"
}

// FieldTopic is the per-field topic of a record: {root}/{producer}/{field}.
// Unregistered pairs use the channel number as the field.
func FieldTopic(root string, rec *turbo.Record) string {
	field := rec.Name()
	if field == "" {
		field = fmt.Sprintf("0x%02x", rec.Channel)
	}
	return root + "/" + producerSegment(rec.Producer) + "/" + field
}

func producerSegment(p turbo.Producer) string {
	switch p {
	case turbo.ProducerBattery:
		return "battery"
	case turbo.ProducerMotor:
		return "motor"
	case turbo.ProducerSettings:
		return "settings"
	case turbo.ProducerBattery2:
		return "battery2"
	default:
		return fmt.Sprintf("producer_%02x", uint8(p))
	}
}

// FieldMessage is the payload of a per-field topic
type FieldMessage struct {
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Raw       uint32    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

func newFieldMessage(rec *turbo.Record) FieldMessage {
	value := rec.Value
	if level, ok := value.(turbo.AssistLevel); ok {
		value = level.String()
	}
	return FieldMessage{
		Value:     value,
		Unit:      rec.Unit(),
		Raw:       rec.Raw,
		Timestamp: rec.Timestamp,
	}
}

// Publisher mirrors a monitor onto MQTT topics
type Publisher struct {
	client   Client
	monitor  *telemetry.Monitor
	log      log.Logger
	root     string
	qos      byte
	interval time.Duration
	fields   bool

	records   chan *turbo.Record
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithTopicRoot sets the topic prefix
func WithTopicRoot(root string) PublisherOption {
	return func(p *Publisher) {
		p.root = strings.TrimSuffix(root, "/")
	}
}

// WithQoS sets the QoS of every publication
func WithQoS(qos byte) PublisherOption {
	return func(p *Publisher) {
		p.qos = qos
	}
}

// WithInterval sets how often the snapshot is republished
func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.interval = d
	}
}

// WithFieldTopics publishes each decoded record on its own topic
func WithFieldTopics(enabled bool) PublisherOption {
	return func(p *Publisher) {
		p.fields = enabled
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger log.Logger) PublisherOption {
	return func(p *Publisher) {
		p.log = logger
	}
}

// NewPublisher creates a publisher. Field updates are collected from m
// as soon as this returns.
func NewPublisher(client Client, m *telemetry.Monitor, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:   client,
		monitor:  m,
		log:      log.NewNopLogger(),
		root:     "turbostat",
		interval: 5 * time.Second,
		records:  make(chan *turbo.Record, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fields {
		m.OnUpdate(func(rec *turbo.Record, _ *telemetry.Snapshot) {
			select {
			case p.records <- rec:
			default:
				p.dropped.Add(1)
			}
		})
	}
	return p
}

// Start publishes until ctx is done, then publishes a final snapshot
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("publishing telemetry", "root", p.root, "interval", p.interval.String(), "fields", p.fields)

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), time.Second)
			p.PublishSnapshot(final)
			cancel()
			return nil
		case <-ticker.C:
			p.PublishSnapshot(ctx)
		case rec := <-p.records:
			p.PublishRecord(ctx, rec)
		}
	}
}

// PublishSnapshot sends the current summary, retained. Nothing is sent
// before the first record arrives.
func (p *Publisher) PublishSnapshot(ctx context.Context) error {
	if !p.monitor.Ready() {
		return nil
	}
	payload, err := json.Marshal(p.monitor.Summary().ToMap())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return p.publish(ctx, SnapshotTopic(p.root), true, payload)
}

// PublishRecord sends one record to its field topic
func (p *Publisher) PublishRecord(ctx context.Context, rec *turbo.Record) error {
	payload, err := json.Marshal(newFieldMessage(rec))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rec.Name(), err)
	}
	return p.publish(ctx, FieldTopic(p.root, rec), false, payload)
}

func (p *Publisher) publish(ctx context.Context, topic string, retain bool, payload []byte) error {
	if err := p.client.Publish(ctx, topic, p.qos, retain, payload); err != nil {
		p.failed.Add(1)
		p.log.Warn("publish failed", "topic", topic, "err", err.Error())
		return err
	}
	p.published.Add(1)
	return nil
}

// Published returns how many messages the broker accepted
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Failed returns how many publications returned an error
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}
