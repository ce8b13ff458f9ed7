// Package resilience implements the retry policy and the per-node
// failure-rate circuit breaker.
package resilience

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// Strategy is the closed set of backoff strategies a RetryPolicy can use.
type Strategy string

const (
	StrategyNone        Strategy = "None"
	StrategyFixed       Strategy = "Fixed"
	StrategyExponential Strategy = "Exponential"
	StrategyLinear      Strategy = "Linear"
)

// RetryPolicy is the runtime counterpart of domain.RetryPolicyConfig: it
// knows how to compute delays and classify failures as retryable.
type RetryPolicy struct {
	Strategy     Strategy
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	RetryOn      []string
	DoNotRetryOn []string
}

// FromConfig builds a RetryPolicy from the declarative config carried on a
// NodeDefinition, applying defaults for zero-valued fields.
func FromConfig(cfg *domain.RetryPolicyConfig) *RetryPolicy {
	if cfg == nil {
		return &RetryPolicy{Strategy: StrategyNone, MaxAttempts: 1}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxAttempts > 10 {
		maxAttempts = 10
	}
	return &RetryPolicy{
		Strategy:     Strategy(cfg.Strategy),
		MaxAttempts:  maxAttempts,
		InitialDelay: durationFromSeconds(cfg.InitialDelay),
		MaxDelay:     durationFromSeconds(cfg.MaxDelay),
		Multiplier:   cfg.Multiplier,
		RetryOn:      cfg.RetryOn,
		DoNotRetryOn: cfg.DoNotRetryOn,
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// CalculateDelay returns the backoff delay for the given zero-based retry
// count, clamped to MaxDelay and jittered by a uniformly sampled factor in
// [0.75, 1.25].
func (p *RetryPolicy) CalculateDelay(retryCount int) time.Duration {
	var base time.Duration
	switch p.Strategy {
	case StrategyFixed:
		base = p.InitialDelay
	case StrategyExponential:
		multiplier := p.Multiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
		base = time.Duration(float64(p.InitialDelay) * math.Pow(multiplier, float64(retryCount)))
	case StrategyLinear:
		base = time.Duration(float64(p.InitialDelay) * float64(1+retryCount))
	default: // StrategyNone or unrecognized
		return 0
	}

	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}

	jitter := 0.75 + rand.Float64()*0.5 // [0.75, 1.25]
	return time.Duration(float64(base) * jitter)
}

// ShouldRetry classifies exceptionKind against DoNotRetryOn (which takes
// precedence) and RetryOn. An empty RetryOn list means every exception not
// denied is retryable.
func (p *RetryPolicy) ShouldRetry(exceptionKind string) bool {
	if p.Strategy == StrategyNone {
		return false
	}
	for _, kind := range p.DoNotRetryOn {
		if matchesKind(exceptionKind, kind) {
			return false
		}
	}
	if len(p.RetryOn) == 0 {
		return true
	}
	for _, kind := range p.RetryOn {
		if matchesKind(exceptionKind, kind) {
			return true
		}
	}
	return false
}

// matchesKind implements "by ancestry" matching: an exact match, or the
// configured kind being a dotted prefix of the observed kind (e.g.
// "Timeout" matches "Timeout.Read").
func matchesKind(observed, configured string) bool {
	if strings.EqualFold(observed, configured) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(observed), strings.ToLower(configured)+".")
}

// MaxInvocations returns the total number of invocations allowed,
// including the initial attempt: 1 + retries capped at MaxAttempts.
func (p *RetryPolicy) MaxInvocations() int {
	return 1 + p.MaxAttempts
}
