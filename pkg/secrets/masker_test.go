package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestMaskString(t *testing.T) {
	m := NewMaskerFor("s3cret-id-value")

	got := m.MaskString("failed to validate SecretID: s3cret-id-value is expired")
	if strings.Contains(got, "s3cret-id-value") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, Mask) {
		t.Errorf("mask missing: %q", got)
	}
}

func TestMaskString_MultipleOccurrences(t *testing.T) {
	m := NewMaskerFor("abc123")

	got := m.MaskString("abc123 then abc123 again")
	if strings.Contains(got, "abc123") {
		t.Errorf("secret leaked: %q", got)
	}
}

func TestMaskString_NoSecrets(t *testing.T) {
	m := NewMasker()

	input := "nothing sensitive here"
	if got := m.MaskString(input); got != input {
		t.Errorf("MaskString() = %q, want unchanged input", got)
	}
}

func TestAddSecret_IgnoresEmpty(t *testing.T) {
	m := NewMasker()
	m.AddSecret("")

	// An empty registered value would mask every string.
	if got := m.MaskString("untouched"); got != "untouched" {
		t.Errorf("MaskString() = %q, want untouched", got)
	}
}

func TestMaskError(t *testing.T) {
	m := NewMaskerFor("tok-999")

	got := m.MaskError(errors.New("store rejected tok-999"))
	if strings.Contains(got, "tok-999") {
		t.Errorf("secret leaked: %q", got)
	}

	if got := m.MaskError(nil); got != "" {
		t.Errorf("MaskError(nil) = %q, want empty", got)
	}
}

func TestMaskMap(t *testing.T) {
	m := NewMaskerFor("hunter2")

	got := m.MaskMap(map[string]string{
		"secret-id": "hunter2",
		"role-id":   "build-role",
	})
	if got["secret-id"] != Mask {
		t.Errorf("secret-id = %q, want masked", got["secret-id"])
	}
	if got["role-id"] != "build-role" {
		t.Errorf("role-id = %q, want unchanged", got["role-id"])
	}
}
