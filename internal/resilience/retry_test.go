package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestFromConfig_Defaults(t *testing.T) {
	p := FromConfig(nil)
	assert.Equal(t, StrategyNone, p.Strategy)
	assert.Equal(t, 1, p.MaxAttempts)
}

func TestFromConfig_ClampsMaxAttempts(t *testing.T) {
	p := FromConfig(&domain.RetryPolicyConfig{Strategy: "Fixed", MaxAttempts: 99})
	assert.Equal(t, 10, p.MaxAttempts)

	p = FromConfig(&domain.RetryPolicyConfig{Strategy: "Fixed", MaxAttempts: 0})
	assert.Equal(t, 1, p.MaxAttempts)
}

func TestCalculateDelay_Fixed(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyFixed, InitialDelay: 100 * time.Millisecond}
	for i := 0; i < 3; i++ {
		d := p.CalculateDelay(i)
		assert.InDelta(t, float64(100*time.Millisecond), float64(d), float64(25*time.Millisecond))
	}
}

func TestCalculateDelay_ExponentialGrows(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyExponential, InitialDelay: 10 * time.Millisecond, Multiplier: 2}
	d0 := p.CalculateDelay(0)
	d2 := p.CalculateDelay(2)
	assert.Greater(t, float64(d2), float64(d0))
}

func TestCalculateDelay_LinearGrows(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyLinear, InitialDelay: 10 * time.Millisecond}
	d0 := p.CalculateDelay(0)
	d3 := p.CalculateDelay(3)
	assert.Greater(t, float64(d3), float64(d0))
}

func TestCalculateDelay_ClampedToMaxDelay(t *testing.T) {
	p := &RetryPolicy{
		Strategy:     StrategyExponential,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   10,
		MaxDelay:     200 * time.Millisecond,
	}
	d := p.CalculateDelay(5)
	assert.LessOrEqual(t, float64(d), float64(200*time.Millisecond)*1.25)
}

func TestCalculateDelay_NoneStrategyIsZero(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyNone, InitialDelay: time.Second}
	assert.Equal(t, time.Duration(0), p.CalculateDelay(0))
}

func TestShouldRetry_NoneStrategyNeverRetries(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyNone}
	assert.False(t, p.ShouldRetry("Timeout"))
}

func TestShouldRetry_DoNotRetryOnTakesPrecedence(t *testing.T) {
	p := &RetryPolicy{
		Strategy:     StrategyFixed,
		RetryOn:      []string{"Timeout"},
		DoNotRetryOn: []string{"Timeout"},
	}
	assert.False(t, p.ShouldRetry("Timeout"))
}

func TestShouldRetry_EmptyRetryOnMeansRetryEverythingNotDenied(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyFixed}
	assert.True(t, p.ShouldRetry("AnythingAtAll"))

	p.DoNotRetryOn = []string{"Validation"}
	assert.False(t, p.ShouldRetry("Validation"))
	assert.True(t, p.ShouldRetry("Timeout"))
}

func TestShouldRetry_AncestryMatch(t *testing.T) {
	p := &RetryPolicy{Strategy: StrategyFixed, RetryOn: []string{"Timeout"}}
	assert.True(t, p.ShouldRetry("Timeout.Read"))
	assert.False(t, p.ShouldRetry("TimeoutSomethingElse"))
}

func TestMaxInvocations(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3}
	require.Equal(t, 4, p.MaxInvocations())
}
