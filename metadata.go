package rpcgo

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// reservedHeaders are managed exclusively by the runtime; user metadata
// that collides with one of these names is filtered out before merging
// into outbound HTTP headers, and stripped back out of inbound headers
// before the application sees them (spec §3, Metadata filtering).
var reservedHeaders = map[string]bool{
	"te":                      true,
	"user-agent":              true,
	"content-type":            true,
	"content-length":          true,
	"content-encoding":        true,
	"accept-encoding":         true,
	"grpc-status":             true,
	"grpc-message":            true,
	"grpc-status-details-bin": true,
	"grpc-encoding":           true,
	"grpc-accept-encoding":    true,
	"grpc-timeout":            true,
	"trailer":                 true,
}

func isReservedHeader(name string) bool {
	lower := strings.ToLower(name)
	if reservedHeaders[lower] {
		return true
	}
	return strings.HasPrefix(lower, ":") || strings.HasPrefix(lower, "grpc-")
}

// Metadata is an order-preserving, case-insensitive multimap of
// ASCII or binary-encoded entries, per spec §3. Binary entries are keyed
// by a name ending in "-bin"; their values are opaque bytes, base64
// encoded when placed on the wire.
type Metadata struct {
	order []string
	vals  map[string][]string
}

// NewMetadata constructs an empty Metadata.
func NewMetadata() Metadata {
	return Metadata{vals: make(map[string][]string)}
}

func (m *Metadata) init() {
	if m.vals == nil {
		m.vals = make(map[string][]string)
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(key)
}

// Set replaces all values associated with key.
func (m *Metadata) Set(key, value string) error {
	if err := validateEntry(key, value); err != nil {
		return err
	}
	m.init()
	key = normalizeKey(key)
	if _, exists := m.vals[key]; !exists {
		m.order = append(m.order, key)
	}
	m.vals[key] = []string{value}
	return nil
}

// Append adds an additional value for key, preserving insertion order.
func (m *Metadata) Append(key, value string) error {
	if err := validateEntry(key, value); err != nil {
		return err
	}
	m.init()
	key = normalizeKey(key)
	if _, exists := m.vals[key]; !exists {
		m.order = append(m.order, key)
	}
	m.vals[key] = append(m.vals[key], value)
	return nil
}

// Get returns the first value for key, if any.
func (m Metadata) Get(key string) (string, bool) {
	vs, ok := m.vals[normalizeKey(key)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Values returns all values for key, in insertion order.
func (m Metadata) Values(key string) []string {
	return append([]string(nil), m.vals[normalizeKey(key)]...)
}

// GetBinary decodes the base64-encoded value(s) of a "-bin" key.
func (m Metadata) GetBinary(key string) ([]byte, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	raw, err := decodeBinaryHeader(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// SetBinary base64-encodes value and stores it under key, which must end
// in "-bin".
func (m *Metadata) SetBinary(key string, value []byte) error {
	if !strings.HasSuffix(normalizeKey(key), "-bin") {
		return fmt.Errorf("binary metadata key %q must end in -bin", key)
	}
	return m.Set(key, encodeBinaryHeader(value))
}

// Delete removes all values for key.
func (m *Metadata) Delete(key string) {
	key = normalizeKey(key)
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Range calls fn for every key in insertion order, once per key (with
// all of that key's values).
func (m Metadata) Range(fn func(key string, values []string)) {
	for _, key := range m.order {
		fn(key, m.vals[key])
	}
}

// Len reports the number of distinct keys.
func (m Metadata) Len() int { return len(m.order) }

func validateEntry(key, value string) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("metadata key must not be empty")
	}
	if strings.HasSuffix(key, "-bin") {
		return nil // binary values are arbitrary bytes, caller pre-encodes
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x20 && c != '\t' || c == 0x7f {
			return fmt.Errorf("metadata value for %q contains invalid byte 0x%02x", key, c)
		}
	}
	return nil
}

func encodeBinaryHeader(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

func decodeBinaryHeader(s string) ([]byte, error) {
	if len(s)%4 == 0 {
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// mergeIntoHeader writes m's entries into dst, skipping reserved names
// (spec §3: "when merging user metadata into outbound headers, ... strips
// all reserved and pseudo-header names"). Because every reserved name is
// skipped, user attempts to override the runtime's own headers are
// silently ignored, whether the runtime sets them before or after this
// call.
func mergeIntoHeader(dst http.Header, m Metadata) {
	m.Range(func(key string, values []string) {
		if isReservedHeader(key) {
			return
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	})
}

// metadataFromHeader extracts user-visible metadata from HTTP headers,
// stripping the same reserved set that mergeIntoHeader filters on the
// way out (spec §3: inbound extraction strips the same names).
func metadataFromHeader(h http.Header) Metadata {
	m := NewMetadata()
	for key, values := range h {
		if isReservedHeader(key) {
			continue
		}
		for _, v := range values {
			_ = m.Append(key, v)
		}
	}
	return m
}
