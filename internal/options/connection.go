// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ConnectionOptions)(nil)

// ConnectionOptions selects and configures the link to the BLE bridge.
// The WebSocket password is never a flag; see transport.GetPassword.
type ConnectionOptions struct {
	Port string `json:"port" mapstructure:"port"`
	Baud int    `json:"baud" mapstructure:"baud"`

	URL         string `json:"url" mapstructure:"url"`
	Username    string `json:"username" mapstructure:"username"`
	NoSSLVerify bool   `json:"no-ssl-verify" mapstructure:"no-ssl-verify"`

	// RequestTimeout bounds one Request-Read round trip
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
}

// NewConnectionOptions returns the default connection options
func NewConnectionOptions() *ConnectionOptions {
	return &ConnectionOptions{
		Baud:           115200,
		RequestTimeout: 2 * time.Second,
	}
}

// Configured reports whether a serial port or URL was given
func (o *ConnectionOptions) Configured() bool {
	return o.Port != "" || o.URL != ""
}

// Validate checks that at most one transport is selected and that it is
// well formed
func (o *ConnectionOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Port != "" && o.URL != "" {
		errs = append(errs, fmt.Errorf("--port and --url are mutually exclusive"))
	}
	if o.Baud <= 0 {
		errs = append(errs, fmt.Errorf("--baud must be positive, got %d", o.Baud))
	}
	if o.URL != "" {
		u, err := url.Parse(o.URL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("--url: %w", err))
		case u.Scheme != "ws" && u.Scheme != "wss":
			errs = append(errs, fmt.Errorf("--url: unsupported scheme %q (use ws:// or wss://)", u.Scheme))
		}
	}
	if o.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--request-timeout must be positive"))
	}

	return errs
}

// AddFlags binds the connection flags
func (o *ConnectionOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "p", o.Port, "Serial port of the BLE bridge")
	fs.IntVarP(&o.Baud, "baud", "b", o.Baud, "Baud rate (serial only)")

	fs.StringVarP(&o.URL, "url", "u", o.URL, "WebSocket URL of the BLE bridge (ws:// or wss://)")
	fs.StringVar(&o.Username, "username", o.Username, "Username for HTTP Basic auth")
	fs.BoolVar(&o.NoSSLVerify, "no-ssl-verify", o.NoSSLVerify, "Skip TLS certificate verification (wss:// only)")

	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "Timeout for a Request-Read round trip")
}
