// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package options

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*MQTTOptions)(nil)

// MQTTOptions configures the snapshot publisher. Publishing is off while
// Broker is empty.
type MQTTOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	QoS            byte          `json:"qos" mapstructure:"qos"`

	// TopicRoot prefixes every topic: {TopicRoot}/snapshot, {TopicRoot}/{producer}/{field}
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// Interval between retained snapshot publications
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// Fields publishes every known record on its own topic
	Fields bool `json:"fields" mapstructure:"fields"`
}

// NewMQTTOptions returns the default MQTT options
func NewMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		TopicRoot:      "turbostat",
		Interval:       5 * time.Second,
	}
}

// Enabled reports whether a broker is configured
func (o *MQTTOptions) Enabled() bool {
	return o != nil && o.Broker != ""
}

// Validate checks broker URL, QoS, topic root and interval
func (o *MQTTOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errs := []error{}
	if u, err := url.Parse(o.Broker); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("--mqtt.broker: invalid URL %q", o.Broker))
	}
	if o.QoS > 2 {
		errs = append(errs, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	if o.TopicRoot == "" || strings.ContainsAny(o.TopicRoot, "#+") {
		errs = append(errs, fmt.Errorf("--mqtt.topic-root %q is not a valid topic prefix", o.TopicRoot))
	}
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("--mqtt.interval must be positive"))
	}
	return errs
}

// AddFlags binds the mqtt.* flags
func (o *MQTTOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "MQTT broker URL (mqtt://, tls://, ws://); empty disables publishing.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit client ID (generated when empty).")
	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing the MQTT connection.")
	fs.Uint8Var(&o.QoS, "mqtt.qos", o.QoS, "QoS for published messages.")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix for published telemetry.")
	fs.DurationVar(&o.Interval, "mqtt.interval", o.Interval, "Interval between snapshot publications.")
	fs.BoolVar(&o.Fields, "mqtt.fields", o.Fields, "Also publish every decoded field on its own topic.")
}
