// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package options holds the command-line and config-file settings of
// turbostat. Every group binds its own flags and validates itself; Load
// layers a YAML file and TURBOSTAT_* environment variables underneath the
// flags with viper.
package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Thermoquad/turbostat/internal/log"
)

// EnvPrefix is the prefix for environment overrides (TURBOSTAT_LOG_LEVEL)
const EnvPrefix = "TURBOSTAT"

// DefaultConfigName is looked up in $HOME when no --config is given
const DefaultConfigName = ".turbostat"

// IOptions is implemented by every option group
type IOptions interface {
	Validate() []error
	AddFlags(fs *pflag.FlagSet)
}

// Options is the full turbostat configuration
type Options struct {
	Connection *ConnectionOptions `json:"connection" mapstructure:"connection"`
	Log        *log.Options       `json:"log" mapstructure:"log"`
	HTTP       *HTTPOptions       `json:"http" mapstructure:"http"`
	MQTT       *MQTTOptions       `json:"mqtt" mapstructure:"mqtt"`
	Capture    *CaptureOptions    `json:"capture" mapstructure:"capture"`

	// ConfigFile overrides the $HOME/.turbostat.yaml lookup
	ConfigFile string `json:"-" mapstructure:"-"`
}

// NewOptions returns options with every group at its defaults
func NewOptions() *Options {
	return &Options{
		Connection: NewConnectionOptions(),
		Log:        log.NewOptions(),
		HTTP:       NewHTTPOptions(),
		MQTT:       NewMQTTOptions(),
		Capture:    NewCaptureOptions(),
	}
}

// AddFlags binds every group's flags plus --config
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "Config file (default $HOME/.turbostat.yaml)")
	o.Connection.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.HTTP.AddFlags(fs)
	o.MQTT.AddFlags(fs)
	o.Capture.AddFlags(fs)
}

// Validate joins the errors of every group
func (o *Options) Validate() error {
	errs := []error{}
	errs = append(errs, o.Connection.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.MQTT.Validate()...)
	errs = append(errs, o.Capture.Validate()...)
	return errors.Join(errs...)
}

// Load reads the config file and environment into v and copies every value
// whose flag was not set on the command line back into fs. Flags therefore
// win over the environment, which wins over the file.
//
// A missing default config file is not an error; a missing --config is.
func (o *Options) Load(v *viper.Viper, fs *pflag.FlagSet) error {
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.ConfigFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, configValue(v, f)); err != nil {
			errs = append(errs, fmt.Errorf("config %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func configValue(v *viper.Viper, f *pflag.Flag) string {
	switch f.Value.Type() {
	case "stringSlice", "stringArray":
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return v.GetString(f.Name)
}

// UsedConfigFile returns the absolute path of the file Load read, if any
func UsedConfigFile(v *viper.Viper) string {
	if f := v.ConfigFileUsed(); f != "" {
		if abs, err := filepath.Abs(f); err == nil {
			return abs
		}
		return f
	}
	return ""
}

// Watch calls onChange with the new log level whenever the config file
// is written
func Watch(v *viper.Viper, onChange func(level string, ev fsnotify.Event)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		onChange(v.GetString("log.level"), ev)
	})
	v.WatchConfig()
}
