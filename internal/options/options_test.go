// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package options

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newFlagSet(o *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turbostat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ============================================================
// Validation Tests
// ============================================================

func TestOptions_DefaultsValidate(t *testing.T) {
	if err := NewOptions().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConnectionOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *ConnectionOptions)
		wantErr string
	}{
		{"serial ok", func(o *ConnectionOptions) { o.Port = "/dev/ttyACM0" }, ""},
		{"websocket ok", func(o *ConnectionOptions) { o.URL = "wss://bridge.local/ws" }, ""},
		{"both", func(o *ConnectionOptions) { o.Port = "/dev/ttyACM0"; o.URL = "ws://x/" }, "mutually exclusive"},
		{"bad scheme", func(o *ConnectionOptions) { o.URL = "http://x/" }, "unsupported scheme"},
		{"bad baud", func(o *ConnectionOptions) { o.Baud = 0 }, "--baud"},
		{"bad timeout", func(o *ConnectionOptions) { o.RequestTimeout = 0 }, "--request-timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewConnectionOptions()
			tt.mutate(o)
			errs := o.Validate()
			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) == 0 || !strings.Contains(errs[0].Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, errs)
			}
		})
	}
}

func TestMQTTOptions_Validate(t *testing.T) {
	o := NewMQTTOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("disabled publisher should not validate anything: %v", errs)
	}

	o.Broker = "mqtt://broker:1883"
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}

	o.QoS = 3
	o.TopicRoot = "bike/#"
	if errs := o.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}
}

func TestValidateAddress(t *testing.T) {
	for _, addr := range []string{":9120", "127.0.0.1:0", "[::1]:8080"} {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("%s: %v", addr, err)
		}
	}
	for _, addr := range []string{"9120", "host:http", "host:70000"} {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("%s: expected error", addr)
		}
	}
}

// ============================================================
// Load Tests
// ============================================================

func TestLoad_ConfigFile(t *testing.T) {
	o := NewOptions()
	fs := newFlagSet(o)
	o.ConfigFile = writeConfig(t, `
port: /dev/ttyUSB1
log:
  level: debug
  output-paths: [stdout, /tmp/turbostat.log]
mqtt:
  broker: mqtt://localhost:1883
  interval: 10s
`)

	if err := o.Load(viper.New(), fs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if o.Connection.Port != "/dev/ttyUSB1" {
		t.Errorf("port = %q", o.Connection.Port)
	}
	if o.Log.Level != "debug" {
		t.Errorf("log level = %q", o.Log.Level)
	}
	if len(o.Log.OutputPaths) != 2 || o.Log.OutputPaths[1] != "/tmp/turbostat.log" {
		t.Errorf("output paths = %v", o.Log.OutputPaths)
	}
	if o.MQTT.Broker != "mqtt://localhost:1883" || o.MQTT.Interval != 10*time.Second {
		t.Errorf("mqtt = %+v", o.MQTT)
	}
	if o.Connection.Baud != 115200 {
		t.Errorf("unset value should keep its default, got %d", o.Connection.Baud)
	}
}

func TestLoad_Precedence(t *testing.T) {
	o := NewOptions()
	fs := newFlagSet(o)
	o.ConfigFile = writeConfig(t, "baud: 9600\nusername: file\nhttp:\n  addr: 0.0.0.0:1\n")

	if err := fs.Parse([]string{"--baud", "57600"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TURBOSTAT_USERNAME", "env")

	if err := o.Load(viper.New(), fs); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if o.Connection.Baud != 57600 {
		t.Errorf("flag should win, got baud %d", o.Connection.Baud)
	}
	if o.Connection.Username != "env" {
		t.Errorf("env should beat file, got %q", o.Connection.Username)
	}
	if o.HTTP.Addr != "0.0.0.0:1" {
		t.Errorf("file value not applied, got %q", o.HTTP.Addr)
	}
}

func TestLoad_MissingExplicitConfig(t *testing.T) {
	o := NewOptions()
	fs := newFlagSet(o)
	o.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := o.Load(viper.New(), fs); err == nil {
		t.Error("expected error for missing --config file")
	}
}

func TestLoad_BadValue(t *testing.T) {
	o := NewOptions()
	fs := newFlagSet(o)
	o.ConfigFile = writeConfig(t, "baud: fast\n")

	if err := o.Load(viper.New(), fs); err == nil {
		t.Error("expected error for non-numeric baud")
	}
}
