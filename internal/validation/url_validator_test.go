package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/video", false},
		{"valid http", "http://example.com/watch?v=abc", false},
		{"empty", "", true},
		{"no scheme", "example.com/video", true},
		{"ftp scheme", "ftp://example.com/file", true},
		{"file scheme", "file:///etc/passwd", true},
		{"no host", "https://", true},
		{"localhost", "http://localhost:8080/x", true},
		{"loopback ip", "http://127.0.0.1/x", true},
		{"ipv6 loopback", "http://[::1]/x", true},
		{"zero address", "http://0.0.0.0/x", true},
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data", true},
		{"private 10.x", "http://10.0.0.5/x", true},
		{"private 192.168.x", "http://192.168.1.1/x", true},
		{"private 172.16.x", "http://172.16.0.1/x", true},
		{"public ip", "http://93.184.216.34/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStruct(t *testing.T) {
	type probe struct {
		URL string `validate:"required,safe_url"`
	}

	require.NoError(t, ValidateStruct(probe{URL: "https://example.com/v"}))
	assert.Error(t, ValidateStruct(probe{URL: "http://localhost/v"}))
	assert.Error(t, ValidateStruct(probe{}))
}
