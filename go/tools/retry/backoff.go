// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides backoff state for retry and polling loops.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff manages delay state for retry loops.
// Use the iterator-style StartAttempt method to implement retry logic.
//
// Example usage:
//
//	b := retry.New(100*time.Millisecond, 30*time.Second)
//	for {
//	    if err := b.StartAttempt(ctx); err != nil {
//	        return err // Context cancelled or timed out
//	    }
//	    result, err := makeAPICall()
//	    if err == nil {
//	        return result
//	    }
//	    // Will backoff before next attempt
//	}
type Backoff struct {
	cfg     backoffConfig
	attempt int
	timer   Timer
}

// backoffConfig holds the configuration for backoff behavior.
type backoffConfig struct {
	// BaseDelay is the delay of the first wait. Required.
	BaseDelay time.Duration

	// MaxDelay caps the computed delays. Required.
	MaxDelay time.Duration

	// InitialDelay adds a delay before the first attempt (attempt 0).
	// Useful when you've already tried once before calling StartAttempt().
	InitialDelay bool

	// backoff strategy for calculating delays between retries.
	// Defaults to exponential backoff with full jitter.
	backoff backoff

	// timer overrides the wall-clock timer. Tests only.
	timer Timer
}

// Option is a functional option for configuring a Backoff.
type Option func(*backoffConfig)

// WithInitialDelay configures the backoff to add a delay before the first
// attempt. Use this when you've already tried once before calling
// StartAttempt().
func WithInitialDelay() Option {
	return func(c *backoffConfig) { c.InitialDelay = true }
}

// WithMultiplier replaces the default strategy with a deterministic
// multiplicative one: each delay is the previous delay times factor, starting
// at baseDelay and capped at maxDelay. No jitter is applied, which makes it
// suitable for tight polling loops where predictable latency matters more
// than load spreading.
func WithMultiplier(factor float64) Option {
	return func(c *backoffConfig) {
		c.backoff = newMultiplicativeBackoff(c.BaseDelay, c.MaxDelay, factor)
	}
}

// WithTimer overrides the timer used for delay waits. Tests use this to
// drive the loop without sleeping.
func WithTimer(t Timer) Option {
	return func(c *backoffConfig) { c.timer = t }
}

// New creates a new Backoff with the given baseDelay and maxDelay, plus
// optional configuration. Panics if the parameters are invalid (represents a
// coding error).
//
// The default strategy is exponential backoff with full jitter
// (sleep = random_between(0, min(cap, base * 2^attempt))), which provides
// maximum randomization to prevent thundering herd problems.
func New(baseDelay, maxDelay time.Duration, opts ...Option) *Backoff {
	if baseDelay <= 0 {
		panic("retry: BaseDelay must be positive")
	}
	if maxDelay <= 0 {
		panic("retry: MaxDelay must be positive")
	}
	if baseDelay > maxDelay {
		panic("retry: BaseDelay cannot be greater than MaxDelay")
	}

	cfg := backoffConfig{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		backoff:   newExponentialFullJitterBackoff(baseDelay, maxDelay),
		timer:     realTimer{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Backoff{
		cfg:   cfg,
		timer: cfg.timer,
	}
}

// StartAttempt prepares for the next attempt by waiting for the backoff
// delay. On the first call (attempt 0), it returns immediately unless
// WithInitialDelay was configured. On subsequent calls, it waits for the
// strategy's next delay.
//
// Returns nil if the caller should proceed with the next attempt, or
// ctx.Err() if the context was cancelled or timed out during the wait.
func (b *Backoff) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shouldWait := b.attempt > 0 || b.cfg.InitialDelay
	if shouldWait {
		delay := b.cfg.backoff.nextDelay()
		select {
		case <-b.timer.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.attempt++
	return nil
}

// Attempt returns the current attempt number (1-indexed after the first
// StartAttempt call). Returns 0 before the first call to StartAttempt.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset resets the delay state to the initial delay. Use this when you've
// determined the system is healthy and future errors should start from the
// minimum backoff.
//
// Note: Reset only affects the delay calculation. The attempt counter
// returned by Attempt() is never reset and continues to increment
// monotonically.
func (b *Backoff) Reset() {
	b.cfg.backoff.reset()
}

// backoff calculates retry delays and manages backoff state.
// Implementations determine the strategy (exponential, multiplicative, ...)
// and manage their own configuration and state internally.
//
// Implementations must be thread-safe as reset() may be called from a
// different goroutine than nextDelay().
type backoff interface {
	// nextDelay calculates and returns the next delay, then advances the
	// internal state. Must be thread-safe.
	nextDelay() time.Duration

	// reset resets the state to initial values. Must be thread-safe and
	// safe to call concurrently with nextDelay().
	reset()
}

// exponentialFullJitterBackoff implements the "Full Jitter" algorithm:
// sleep = random_between(0, min(cap, base * 2^attempt)).
//
// Reference: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type exponentialFullJitterBackoff struct {
	baseDelay     time.Duration
	maxDelay      time.Duration
	rng           *rand.Rand
	disableJitter bool // deterministic testing

	mu      sync.Mutex
	attempt int
}

func newExponentialFullJitterBackoff(baseDelay, maxDelay time.Duration) *exponentialFullJitterBackoff {
	return &exponentialFullJitterBackoff{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()))),
	}
}

// newExponentialBackoffNoJitter creates a backoff without jitter (for testing).
func newExponentialBackoffNoJitter(baseDelay, maxDelay time.Duration) *exponentialFullJitterBackoff {
	return &exponentialFullJitterBackoff{
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		disableJitter: true,
	}
}

func (e *exponentialFullJitterBackoff) nextDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	attempt := e.attempt
	// Shifting more than 62 bits would overflow int64.
	if attempt > 62 {
		attempt = 62
	}

	multiplier := int64(1 << attempt)
	baseDelayInt := int64(e.baseDelay)

	var delay time.Duration
	if baseDelayInt > 0 && multiplier > math.MaxInt64/baseDelayInt {
		delay = e.maxDelay
	} else {
		delay = time.Duration(baseDelayInt * multiplier)
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
	}

	// rand.Rand is not thread-safe, so jitter is applied under the mutex.
	if !e.disableJitter {
		delay = time.Duration(float64(delay) * e.rng.Float64())
	}

	e.attempt++
	return delay
}

func (e *exponentialFullJitterBackoff) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempt = 0
}

// multiplicativeBackoff grows the delay geometrically without jitter:
// delay(0) = base, delay(n+1) = min(cap, delay(n) * factor).
type multiplicativeBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	factor    float64

	mu   sync.Mutex
	next time.Duration
}

func newMultiplicativeBackoff(baseDelay, maxDelay time.Duration, factor float64) *multiplicativeBackoff {
	if factor < 1 {
		panic("retry: multiplier factor must be at least 1")
	}
	return &multiplicativeBackoff{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		factor:    factor,
		next:      baseDelay,
	}
}

func (m *multiplicativeBackoff) nextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	delay := m.next
	grown := time.Duration(float64(m.next) * m.factor)
	if grown > m.maxDelay {
		grown = m.maxDelay
	}
	m.next = grown
	return delay
}

func (m *multiplicativeBackoff) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = m.baseDelay
}
