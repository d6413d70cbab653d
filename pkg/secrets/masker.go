// Package secrets provides utilities for masking sensitive values before
// they reach logs or error messages.
package secrets

import (
	"strings"
)

// Mask is the replacement string substituted for registered secret values.
const Mask = "***"

// Masker replaces known secret values in strings with a mask. It is used on
// every error-construction path that might embed credential material, so a
// store error that echoes a secret ID back never reaches a log line intact.
type Masker struct {
	// secrets is the set of literal values to mask
	secrets map[string]bool
}

// NewMasker creates an empty masker.
func NewMasker() *Masker {
	return &Masker{secrets: make(map[string]bool)}
}

// NewMaskerFor creates a masker pre-loaded with the given values.
// Empty values are ignored.
func NewMaskerFor(values ...string) *Masker {
	m := NewMasker()
	for _, v := range values {
		m.AddSecret(v)
	}
	return m
}

// AddSecret registers a value to be masked.
func (m *Masker) AddSecret(value string) {
	if value != "" {
		m.secrets[value] = true
	}
}

// MaskString replaces all known secrets in a string with the mask.
func (m *Masker) MaskString(s string) string {
	result := s
	for secret := range m.secrets {
		if strings.Contains(result, secret) {
			result = strings.ReplaceAll(result, secret, Mask)
		}
	}
	return result
}

// MaskError returns err's message with all known secrets masked.
// Returns an empty string for a nil error.
func (m *Masker) MaskError(err error) string {
	if err == nil {
		return ""
	}
	return m.MaskString(err.Error())
}

// MaskMap returns a copy of data with secrets masked in every value.
// Used when logging flat configuration maps.
func (m *Masker) MaskMap(data map[string]string) map[string]string {
	result := make(map[string]string, len(data))
	for k, v := range data {
		result[k] = m.MaskString(v)
	}
	return result
}
