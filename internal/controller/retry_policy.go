package controller

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

// RetryPolicy decides whether a page operation gets another attempt and how
// long to wait first.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ExponentialRetryPolicy retries timeouts with jittered exponential backoff. Attempts are zero-based: attempt 0 is the first try.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 5 * time.Second
)

// NewExponentialRetryPolicy builds a policy allowing a single retry.
// Non-positive delays take the defaults.
func NewExponentialRetryPolicy(base, maxDelay time.Duration) *ExponentialRetryPolicy {
	if base <= 0 {
		base = defaultRetryBase
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMax
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &ExponentialRetryPolicy{maxRetries: 1, baseDelay: base, maxDelay: maxDelay}
}

// ShouldRetry reports whether err after the given attempt warrants a retry.
// Only timeouts retry; cancellation and fatal page source errors never do.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || crawler.IsFatal(err) {
		return false
	}
	return errors.Is(err, crawler.ErrTimeout)
}

// Backoff returns half the capped exponential delay plus up to the same
// amount of random jitter.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + jitter(half)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
