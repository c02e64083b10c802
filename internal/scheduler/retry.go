package scheduler

import (
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"robocurse/internal/copytool"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
)

// HandleFailedChunk implements the per-chunk retry contract (spec §4.5).
// Called only for completions whose ExitMeaning.Severity is Error or Fatal;
// Warning-severity completions never reach here (routeCompletion routes
// those to WarningChunks directly, per the Open Question the design
// follows: only Error/Fatal count as a "failure").
func (s *Scheduler) HandleFailedChunk(chunk *rcmodel.Chunk, result copytool.Result) {
	if !result.Exit.ShouldRetry {
		s.fail(chunk, result.Exit.Message)
		return
	}

	chunk.RetryCount++
	if chunk.RetryCount >= s.cfg.MaxChunkRetries {
		s.fail(chunk, result.Exit.Message)
		return
	}

	delay := backoffDelay(s.cfg, chunk.RetryCount)
	retryAt := time.Now().Add(delay)
	chunk.RetryAfter = &retryAt
	chunk.Status = rcmodel.StatusPending
	s.ChunkQueue.PushBack(chunk)
}

func (s *Scheduler) fail(chunk *rcmodel.Chunk, msg string) {
	chunk.Status = rcmodel.StatusFailed
	s.FailedChunks.PushBack(chunk)
	s.enqueueError(msg)
}

// backoffDelay computes min(BaseSeconds * Multiplier^(retryCount-1),
// MaxSeconds) using cenkalti/backoff's ExponentialBackOff as the
// implementation of that formula rather than hand-rolling the exponent:
// NextBackOff()'s Nth call (with RandomizationFactor=0) returns exactly
// InitialInterval * Multiplier^(N-1), capped at MaxInterval. retryCount is
// always >= 1 here (spec §4.5: "RetryCount=0 is invalid for the backoff
// formula").
func backoffDelay(cfg *rcconfig.Config, retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.RetryBaseSeconds) * time.Second
	b.Multiplier = cfg.RetryMultiplier
	b.MaxInterval = time.Duration(cfg.RetryMaxSeconds) * time.Second
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}

// CheckCircuitBreaker increments the consecutive-failure counter and trips
// the breaker once it reaches the configured threshold (spec §4.5).
func (s *Scheduler) CheckCircuitBreaker(chunkID int64, errMsg string) {
	n := s.ConsecutiveFailures.Add(1)
	if n < s.cfg.CircuitBreakerThreshold {
		return
	}
	if s.CircuitBreakerTripped.CompareAndSwap(false, true) {
		s.StopRequested.Store(true)
		s.enqueueError("Circuit breaker tripped after " + strconv.FormatInt(n, 10) + " consecutive failures (last chunk " + strconv.FormatInt(chunkID, 10) + "): " + errMsg)
	}
}

// ResetOnSuccess zeroes the consecutive-failure counter; called on every
// Success-severity completion.
func (s *Scheduler) ResetOnSuccess() { s.ConsecutiveFailures.Store(0) }

// Reset untrips the breaker explicitly (spec §4.5's Reset()).
func (s *Scheduler) Reset() {
	s.ConsecutiveFailures.Store(0)
	s.CircuitBreakerTripped.Store(false)
}
