// Package normalize turns raw upstream records into BuyEvents.
//
// Upstream schemas drift, so every logical value is read through a Field: an
// ordered list of candidate paths where the first present value wins. Adding
// a new upstream shape means adding a path to a table, not a branch.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one opaque upstream JSON object.
type Record = map[string]any

// Path addresses a value through nested objects.
type Path []string

// Field is an ordered list of candidate paths for one logical value.
type Field []Path

// P builds a Path.
func P(keys ...string) Path {
	return keys
}

func (p Path) get(rec Record) any {
	var cur any = rec
	for _, k := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

// Lookup returns the first non-empty value.
func (f Field) Lookup(rec Record) (any, bool) {
	for _, p := range f {
		v := p.get(rec)
		if !empty(v) {
			return v, true
		}
	}
	return nil, false
}

// String returns the first non-empty string value. Objects are unwrapped
// through their address-like keys.
func (f Field) String(rec Record) string {
	for _, p := range f {
		if s := asString(p.get(rec)); s != "" {
			return s
		}
	}
	return ""
}

// Uint returns the first value that parses as an unsigned integer.
func (f Field) Uint(rec Record) (uint64, bool) {
	for _, p := range f {
		if n, ok := asUint(p.get(rec)); ok {
			return n, true
		}
	}
	return 0, false
}

// Amount returns the first value that parses as a number.
func (f Field) Amount(rec Record) (Amount, bool) {
	for _, p := range f {
		if a, ok := parseAmount(p.get(rec)); ok {
			return a, true
		}
	}
	return Amount{}, false
}

// Object returns the first object value.
func (f Field) Object(rec Record) Record {
	for _, p := range f {
		if m, ok := p.get(rec).(map[string]any); ok {
			return m
		}
	}
	return nil
}

// addressKeys unwrap {"address": ...}-style objects.
var addressKeys = []string{"address", "account", "wallet", "hash", "tx_hash", "txHash", "transactionHash"}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if t.String() != "0" {
			return t.String()
		}
	case map[string]any:
		for _, k := range addressKeys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func asUint(v any) (uint64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	case float64:
		if t >= 0 && t == float64(uint64(t)) {
			return uint64(t), true
		}
	case int:
		if t >= 0 {
			return uint64(t), true
		}
	case int64:
		if t >= 0 {
			return uint64(t), true
		}
	case uint64:
		return t, true
	}
	return 0, false
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// truthy reports a JSON true or "true".
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	}
	return false
}
