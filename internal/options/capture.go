// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*CaptureOptions)(nil)

// CaptureOptions controls recording of raw bridge traffic
type CaptureOptions struct {
	// Record is a file to append captured frames to; empty disables recording
	Record string `json:"record" mapstructure:"record"`

	// Realtime paces replay by the recorded timestamps
	Realtime bool `json:"realtime" mapstructure:"realtime"`

	// Speed scales realtime replay (2 plays twice as fast)
	Speed float64 `json:"speed" mapstructure:"speed"`
}

// NewCaptureOptions returns the default capture options
func NewCaptureOptions() *CaptureOptions {
	return &CaptureOptions{Speed: 1}
}

// Validate checks the replay speed
func (o *CaptureOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	if o.Speed <= 0 {
		errs = append(errs, fmt.Errorf("--capture.speed must be positive, got %v", o.Speed))
	}
	return errs
}

// AddFlags binds the capture.* flags
func (o *CaptureOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Record, "capture.record", o.Record, "Append every received frame to this capture file.")
	fs.BoolVar(&o.Realtime, "capture.realtime", o.Realtime, "Replay captures at their recorded pace.")
	fs.Float64Var(&o.Speed, "capture.speed", o.Speed, "Speed factor for realtime replay.")
}
