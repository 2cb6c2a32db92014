package client

import (
	"testing"

	"github.com/Sternrassler/ps-bridge/pkg/response"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		status   response.Status
		expected bool
	}{
		{
			name:     "success should not retry",
			status:   response.Successful,
			expected: false,
		},
		{
			name:     "client error should not retry",
			status:   response.ClientError,
			expected: false,
		},
		{
			name:     "redirect should not retry",
			status:   response.Redirect,
			expected: false,
		},
		{
			name:     "server error should retry",
			status:   response.ServerError,
			expected: true,
		},
		{
			name:     "connection error should retry",
			status:   response.ConnectionError,
			expected: true,
		},
		{
			name:     "io error should retry",
			status:   response.IOError,
			expected: true,
		},
		{
			name:     "process error should not retry",
			status:   response.ProcessError,
			expected: false,
		},
		{
			name:     "unknown should not retry",
			status:   response.Unknown,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.status)
			if result != tt.expected {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.status, result, tt.expected)
			}
		})
	}
}
