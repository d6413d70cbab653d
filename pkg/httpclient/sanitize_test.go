package httpclient

import (
	"net/url"
	"strings"
	"testing"
)

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		redacted bool
	}{
		{"token param", "https://vault.example.com/v1/path?token=s.abc123", true},
		{"wrap secret", "https://vault.example.com/v1/path?wrap_secret=xyz", true},
		{"plain param", "https://vault.example.com/v1/path?list=true", false},
		{"no query", "https://vault.example.com/v1/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.input)
			if err != nil {
				t.Fatal(err)
			}

			got := sanitizeURL(u)
			if tt.redacted {
				if !strings.Contains(got, "%5BREDACTED%5D") && !strings.Contains(got, "[REDACTED]") {
					t.Errorf("sanitizeURL(%q) = %q, want redaction", tt.input, got)
				}
			} else if got != tt.input {
				t.Errorf("sanitizeURL(%q) = %q, want unchanged", tt.input, got)
			}
		})
	}
}

func TestSanitizeURL_Nil(t *testing.T) {
	if got := sanitizeURL(nil); got != "" {
		t.Errorf("sanitizeURL(nil) = %q, want empty", got)
	}
}
