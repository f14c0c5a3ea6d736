// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks message counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalMessages     uint64
	ValidMessages     uint64
	DecodeErrors      uint64 // Framing and transport-level failures
	MalformedMessages uint64
	InvalidEnums      uint64
	UnknownFields     uint64
	UnknownProducers  uint64
	AnomalousValues   uint64
	OutOfRange        uint64
	InvalidTemp       uint64
	HighSpeed         uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a record and its errors
func (s *Statistics) Update(rec *Record, decodeErr error, validationErrors []ValidationError) {
	s.TotalMessages++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrMalformedMessage):
			s.MalformedMessages++
		case errors.Is(decodeErr, ErrInvalidEnumValue):
			s.InvalidEnums++
		default:
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.ValidMessages++
		return
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyUnknownField:
			s.UnknownFields++
		case AnomalyUnknownProducer:
			s.UnknownProducers++
		case AnomalyOutOfRange:
			s.OutOfRange++
			s.AnomalousValues++
		case AnomalyInvalidTemp:
			s.InvalidTemp++
			s.AnomalousValues++
		case AnomalyHighSpeed:
			s.HighSpeed++
			s.AnomalousValues++
		}
	}
}

// Errors returns the number of messages that failed to decode or looked wrong
func (s *Statistics) Errors() uint64 {
	return s.DecodeErrors + s.MalformedMessages + s.InvalidEnums + s.AnomalousValues
}

// CalculateRates calculates message and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.TotalMessages) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Reset clears all counters and restarts the clock
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalMessages == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalMessages)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Messages:  %8d\n", s.TotalMessages)
	result += fmt.Sprintf("Valid Messages:  %8d (%.1f%%)\n", s.ValidMessages, percent(s.ValidMessages))

	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.MalformedMessages > 0 {
		result += fmt.Sprintf("Malformed Msgs:  %8d (%.1f%%)\n", s.MalformedMessages, percent(s.MalformedMessages))
	}
	if s.InvalidEnums > 0 {
		result += fmt.Sprintf("Invalid Enums:   %8d (%.1f%%)\n", s.InvalidEnums, percent(s.InvalidEnums))
	}
	if s.UnknownFields > 0 || s.UnknownProducers > 0 {
		result += fmt.Sprintf("Unregistered:    %8d (%.1f%%)\n", s.UnknownFields+s.UnknownProducers, percent(s.UnknownFields+s.UnknownProducers))
		if s.UnknownProducers > 0 {
			result += fmt.Sprintf("  Unknown Producer: %5d\n", s.UnknownProducers)
		}
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues))
		if s.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", s.OutOfRange)
		}
		if s.InvalidTemp > 0 {
			result += fmt.Sprintf("  Invalid Temp:     %5d\n", s.InvalidTemp)
		}
		if s.HighSpeed > 0 {
			result += fmt.Sprintf("  High Speed:       %5d\n", s.HighSpeed)
		}
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
