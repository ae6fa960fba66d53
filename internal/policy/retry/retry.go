// Package retry decides when failed fetches are attempted again.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	collyfetcher "github.com/JakeFAU/gel-catalog/internal/fetcher/colly"
)

// permanent errors fail the same way on every attempt.
var permanent = []error{
	colly.ErrRobotsTxtBlocked,
	colly.ErrForbiddenDomain,
	colly.ErrForbiddenURL,
	colly.ErrMissingURL,
	colly.ErrNoURLFiltersMatch,
	colly.ErrMaxDepth,
	colly.ErrMaxRequests,
	collyfetcher.ErrBodyTooLarge,
}

// Config bounds the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ExponentialPolicy implements catalog.RetryPolicy with jittered backoff.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponential builds a policy, filling zero fields with defaults of three
// attempts and 250ms doubling up to 5s.
func NewExponential(cfg Config) *ExponentialPolicy {
	p := &ExponentialPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 3
	}
	if p.baseDelay <= 0 {
		p.baseDelay = 250 * time.Millisecond
	}
	if p.maxDelay <= 0 {
		p.maxDelay = 5 * time.Second
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	return p
}

// ShouldRetry reports whether attempt (1-based count of attempts made so far)
// may be followed by another. Client errors other than 429, collector
// refusals and oversized bodies are final.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return false
		}
	}
	var statusErr *collyfetcher.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait before the next attempt: half the exponential
// delay plus up to the same again in jitter.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
