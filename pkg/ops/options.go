// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noema-ai/noema/pkg/fault"
)

// Options is the keyword configuration of one operator invocation.
//
// The key set is closed: unrecognized keys are rejected with a
// configuration error rather than silently ignored, so typos surface
// at validation time instead of producing silently-default behavior.
type Options map[string]any

// Recognized option keys.
const (
	OptTemperature = "temperature" // float: sampling randomness
	OptMaxTokens   = "max_tokens"  // int: output length cap
	OptTopP        = "top_p"       // float: nucleus sampling
	OptStop        = "stop"        // []string: stop sequences
	OptBackend     = "backend"     // string: override default backend
	OptFormat      = "format"      // string: desired output format
	OptComparator  = "comparator"  // string: compare operator ("<", ">", ...)
	OptLanguage    = "language"    // string: translate target
)

var recognizedOptions = map[string]bool{
	OptTemperature: true,
	OptMaxTokens:   true,
	OptTopP:        true,
	OptStop:        true,
	OptBackend:     true,
	OptFormat:      true,
	OptComparator:  true,
	OptLanguage:    true,
}

// Validate rejects unrecognized option keys and malformed values.
func (o Options) Validate() error {
	for key, value := range o {
		if !recognizedOptions[key] {
			return fault.Configuration("unrecognized option %q", key)
		}
		switch key {
		case OptTemperature, OptTopP:
			if _, ok := toFloat(value); !ok {
				return fault.Configuration("option %q must be a number, got %T", key, value)
			}
		case OptMaxTokens:
			n, ok := toInt(value)
			if !ok || n < 0 {
				return fault.Configuration("option %q must be a non-negative integer", key)
			}
		case OptStop:
			if _, ok := toStringSlice(value); !ok {
				return fault.Configuration("option %q must be a list of strings", key)
			}
		default:
			if _, ok := value.(string); !ok {
				return fault.Configuration("option %q must be a string, got %T", key, value)
			}
		}
	}
	return nil
}

// Temperature returns the sampling temperature, or nil when unset.
func (o Options) Temperature() *float64 { return o.floatPtr(OptTemperature) }

// TopP returns the nucleus sampling parameter, or nil when unset.
func (o Options) TopP() *float64 { return o.floatPtr(OptTopP) }

// MaxTokens returns the output cap, or nil when unset.
func (o Options) MaxTokens() *int {
	if v, exists := o[OptMaxTokens]; exists {
		if n, ok := toInt(v); ok {
			return &n
		}
	}
	return nil
}

// Stop returns the stop sequences, or nil when unset.
func (o Options) Stop() []string {
	if v, exists := o[OptStop]; exists {
		if s, ok := toStringSlice(v); ok {
			return s
		}
	}
	return nil
}

// Backend returns the per-call backend override ("" when unset).
func (o Options) Backend() string { return o.str(OptBackend) }

// Format returns the requested output format ("" when unset).
func (o Options) Format() string { return o.str(OptFormat) }

// Comparator returns the compare operator ("" when unset).
func (o Options) Comparator() string { return o.str(OptComparator) }

// Language returns the translation target ("" when unset).
func (o Options) Language() string { return o.str(OptLanguage) }

// Canonical renders the options deterministically for cache keying:
// sorted "key=value" pairs joined by ";".
func (o Options) Canonical() string {
	if len(o) == 0 {
		return ""
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, o[k]))
	}
	return strings.Join(parts, ";")
}

func (o Options) str(key string) string {
	if v, exists := o[key]; exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (o Options) floatPtr(key string) *float64 {
	if v, exists := o[key]; exists {
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	return nil
}

// JSON decoding produces float64 for every number, so the numeric
// converters accept both native Go types and wire-decoded values.

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = str
		}
		return out, true
	}
	return nil, false
}
