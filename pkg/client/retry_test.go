package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/ps-bridge/pkg/response"
)

func statusResponse(code int) *response.Response {
	return response.New(&http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("body")),
	}, response.Options{})
}

func connectionFailure() *response.Response {
	return response.Failed(response.ConnectionError, errors.New("connection refused"), nil)
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        40 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetry_Success(t *testing.T) {
	callCount := 0
	r, err := Retry(context.Background(), fastRetryConfig(), func() *response.Response {
		callCount++
		return statusResponse(http.StatusOK)
	})

	if err != nil {
		t.Errorf("Retry() error = %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if !r.IsSuccessful() {
		t.Errorf("Status = %v, want Successful", r.Status())
	}
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	r, err := Retry(context.Background(), fastRetryConfig(), func() *response.Response {
		callCount++
		if callCount < 3 {
			return connectionFailure()
		}
		return statusResponse(http.StatusOK)
	})

	if err != nil {
		t.Errorf("Retry() error = %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	if !r.IsSuccessful() {
		t.Errorf("Status = %v, want Successful", r.Status())
	}
}

func TestRetry_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	var attempts []*response.Response
	r, err := Retry(context.Background(), fastRetryConfig(), func() *response.Response {
		callCount++
		resp := statusResponse(http.StatusServiceUnavailable)
		attempts = append(attempts, resp)
		return resp
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
	if r.Status() != response.ServerError {
		t.Errorf("Status = %v, want ServerError", r.Status())
	}

	// Failed attempts are released, the last one is handed back.
	for _, a := range attempts[:2] {
		if a.IsAvailable() {
			t.Error("earlier attempts should be closed")
		}
	}
	if !r.IsAvailable() {
		t.Error("last response should still be consumable")
	}
}

func TestRetry_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	r, err := Retry(context.Background(), fastRetryConfig(), func() *response.Response {
		callCount++
		return statusResponse(http.StatusNotFound)
	})

	if err != nil {
		t.Errorf("Retry() error = %v, want nil (no retry attempted)", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if r.Status() != response.ClientError {
		t.Errorf("Status = %v, want ClientError", r.Status())
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Second
	_, err := Retry(ctx, cfg, func() *response.Response {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return connectionFailure()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetry_ExponentialBackoff(t *testing.T) {
	timestamps := []time.Time{}
	cfg := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}
	_, _ = Retry(context.Background(), cfg, func() *response.Response {
		timestamps = append(timestamps, time.Now())
		return connectionFailure()
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	// With jitter (±20%): first ~50ms, second ~100ms
	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	if firstDelay < 40*time.Millisecond {
		t.Errorf("First retry delay %v shorter than the jittered backoff", firstDelay)
	}
	if secondDelay < 80*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than the jittered backoff", secondDelay)
	}
}

func TestRetry_ZeroConfig(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), RetryConfig{}, func() *response.Response {
		callCount++
		return connectionFailure()
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected a single attempt, got %d", callCount)
	}
}
