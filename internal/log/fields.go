// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package log

import (
	"fmt"

	"go.uber.org/zap"
)

// badKey names values that arrive without a usable string key, matching
// log/slog.
const badKey = "!BADKEY"

// toFields turns slog-style key/value arguments into zap fields. An error or
// zap.Field may stand alone in place of a pair.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for len(args) > 0 {
		switch v := args[0].(type) {
		case zap.Field:
			fields = append(fields, v)
			args = args[1:]
			continue
		case error:
			fields = append(fields, zap.Error(v))
			args = args[1:]
			continue
		}

		key, ok := args[0].(string)
		if !ok || len(args) == 1 {
			fields = append(fields, zap.Any(badKey, args[0]))
			args = args[1:]
			continue
		}
		fields = append(fields, toField(key, args[1]))
		args = args[2:]
	}
	return fields
}

// toField renders protocol bytes as spaced hex and leaves every other type
// to zap.Any.
func toField(key string, val any) zap.Field {
	switch v := val.(type) {
	case []byte:
		return zap.String(key, fmt.Sprintf("% X", v))
	default:
		return zap.Any(key, v)
	}
}
