package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ps-bridge/pkg/response"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_retries_total",
		Help: "Total number of retry attempts by status",
	}, []string{"status"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ps_retry_backoff_seconds",
		Help:    "Backoff duration for retries by status",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by status",
	}, []string{"status"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry calls fn until it returns a response that is not a connection, I/O or
// server failure, backing off exponentially with ±20% jitter in between. The
// client never retries by itself; callers opt in per call:
//
//	r, err := client.Retry(ctx, client.DefaultRetryConfig(), func() *response.Response {
//		return c.Get(ctx, d, nil)
//	})
//
// Responses of failed attempts are closed. The last response is returned
// together with ErrRetryExhausted or ErrContextCancelled when no attempt
// succeeded.
func Retry(ctx context.Context, config RetryConfig, fn func() *response.Response) (*response.Response, error) {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}

	backoff := config.InitialBackoff
	var last *response.Response

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		last = fn()
		status := last.Status()

		if !shouldRetry(status) {
			if attempt > 1 {
				log.Info().
					Str("status", status.String()).
					Int("attempt", attempt).
					Msg("Request settled after retry")
			}
			return last, nil
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxAttempts {
			break
		}
		_ = last.Close()

		retriesTotal.WithLabelValues(status.String()).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(status.String()).Observe(jitter.Seconds())

		log.Debug().
			Str("status", status.String()).
			Str("message", last.Message()).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("status", status.String()).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return last, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	status := last.Status()
	retryExhaustedTotal.WithLabelValues(status.String()).Inc()
	log.Warn().
		Str("status", status.String()).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return last, fmt.Errorf("%w after %d attempts: %s", ErrRetryExhausted, config.MaxAttempts, last.Message())
}
