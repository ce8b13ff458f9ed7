package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func policy(threshold, minThroughput int, openMs int64, halfOpenSuccesses int) domain.CircuitBreakerPolicyConfig {
	return domain.CircuitBreakerPolicyConfig{
		FailureThreshold:  threshold,
		MinimumThroughput: minThroughput,
		OpenDurationMs:    openMs,
		HalfOpenSuccesses: halfOpenSuccesses,
	}
}

func TestCircuitBreaker_UnregisteredFailsOpen(t *testing.T) {
	cb := NewCircuitBreaker()
	assert.True(t, cb.AllowRequest("unknown"))
	assert.Equal(t, StateClosed, cb.GetState("unknown"))
}

func TestCircuitBreaker_TripsAtFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(50, 4, 10_000, 1))

	cb.RecordFailure("n1")
	cb.RecordFailure("n1")
	assert.Equal(t, StateClosed, cb.GetState("n1"), "below minimum throughput, must stay closed")

	cb.RecordSuccess("n1")
	cb.RecordFailure("n1")
	// total=4, failures=3, rate=75% >= threshold 50%
	assert.Equal(t, StateOpen, cb.GetState("n1"))
	assert.False(t, cb.AllowRequest("n1"))
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(50, 4, 10_000, 1))

	cb.RecordSuccess("n1")
	cb.RecordSuccess("n1")
	cb.RecordSuccess("n1")
	cb.RecordFailure("n1")
	// total=4, failures=1, rate=25% < 50%
	assert.Equal(t, StateClosed, cb.GetState("n1"))
	assert.True(t, cb.AllowRequest("n1"))
}

func TestCircuitBreaker_HalfOpenAfterOpenDurationThenCloses(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(1, 1, 1, 2)) // trips immediately, 1ms open duration

	cb.RecordFailure("n1")
	require.Equal(t, StateOpen, cb.GetState("n1"))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, cb.AllowRequest("n1"), "AllowRequest should transition Open -> HalfOpen once elapsed")
	assert.Equal(t, StateHalfOpen, cb.GetState("n1"))

	cb.RecordSuccess("n1")
	assert.Equal(t, StateHalfOpen, cb.GetState("n1"), "needs HalfOpenSuccesses consecutive successes")
	cb.RecordSuccess("n1")
	assert.Equal(t, StateClosed, cb.GetState("n1"))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(1, 1, 1, 2))

	cb.RecordFailure("n1")
	time.Sleep(5 * time.Millisecond)
	require.True(t, cb.AllowRequest("n1"))
	require.Equal(t, StateHalfOpen, cb.GetState("n1"))

	cb.RecordFailure("n1")
	assert.Equal(t, StateOpen, cb.GetState("n1"))
}

func TestCircuitBreaker_ResetClearsState(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(1, 1, 10_000, 1))
	cb.RecordFailure("n1")
	require.Equal(t, StateOpen, cb.GetState("n1"))

	cb.Reset("n1")
	assert.Equal(t, StateClosed, cb.GetState("n1"))
	assert.Equal(t, float64(0), cb.GetFailureRate("n1"))
}

func TestCircuitBreaker_GetFailureRate(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.Register("n1", policy(100, 10, 10_000, 1))
	cb.RecordSuccess("n1")
	cb.RecordFailure("n1")
	assert.Equal(t, 50.0, cb.GetFailureRate("n1"))
}
