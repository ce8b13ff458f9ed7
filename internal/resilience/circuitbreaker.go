package resilience

import (
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// State is the circuit breaker state machine position.
type State string

const (
	StateClosed   State = "Closed"
	StateOpen     State = "Open"
	StateHalfOpen State = "HalfOpen"
)

// breakerState is the mutable per-node state, guarded by its own mutex so
// breakers on different nodes never contend.
type breakerState struct {
	mu sync.Mutex

	policy domain.CircuitBreakerPolicyConfig

	state             State
	total             int
	successes         int
	failures          int
	halfOpenSuccesses int
	openUntil         time.Time
}

// CircuitBreaker is a per-node failure-rate state machine: Closed tracks a
// total/failure count, cleared whenever the breaker trips or is reset, and
// opens once the failure rate crosses
// FailureThreshold% with at least MinimumThroughput samples; Open rejects
// requests until OpenDuration elapses, then allows one HalfOpen probe
// window; HalfOpen closes after HalfOpenSuccesses consecutive successes or
// reopens on the first failure.
type CircuitBreaker struct {
	mu    sync.RWMutex
	nodes map[string]*breakerState
}

// NewCircuitBreaker creates an empty per-node circuit breaker registry.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{nodes: make(map[string]*breakerState)}
}

// Register installs a policy for a node id, replacing any prior one.
func (cb *CircuitBreaker) Register(id string, policy domain.CircuitBreakerPolicyConfig) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nodes[id] = &breakerState{policy: policy, state: StateClosed}
}

func (cb *CircuitBreaker) get(id string) *breakerState {
	cb.mu.RLock()
	s, ok := cb.nodes[id]
	cb.mu.RUnlock()
	if ok {
		return s
	}
	return nil
}

// AllowRequest reports whether a call may proceed for node id. Unregistered
// ids fail open (no breaker configured means always allowed).
func (cb *CircuitBreaker) AllowRequest(id string) bool {
	s := cb.get(id)
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().Before(s.openUntil) {
			return false
		}
		s.state = StateHalfOpen
		s.halfOpenSuccesses = 0
		return true
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful call against the breaker for id.
func (cb *CircuitBreaker) RecordSuccess(id string) {
	s := cb.get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		s.total++
		s.successes++
	case StateHalfOpen:
		s.halfOpenSuccesses++
		if s.halfOpenSuccesses >= s.policy.HalfOpenSuccesses {
			cb.resetLocked(s)
		}
	}
}

// RecordFailure records a failed call against the breaker for id.
func (cb *CircuitBreaker) RecordFailure(id string) {
	s := cb.get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		s.total++
		s.failures++
		if s.total >= s.policy.MinimumThroughput && failureRate(s.failures, s.total) >= float64(s.policy.FailureThreshold) {
			cb.tripLocked(s)
		}
	case StateHalfOpen:
		cb.tripLocked(s)
	}
}

func (cb *CircuitBreaker) tripLocked(s *breakerState) {
	s.state = StateOpen
	s.openUntil = time.Now().Add(time.Duration(s.policy.OpenDurationMs) * time.Millisecond)
	s.total = 0
	s.successes = 0
	s.failures = 0
	s.halfOpenSuccesses = 0
}

func (cb *CircuitBreaker) resetLocked(s *breakerState) {
	s.state = StateClosed
	s.total = 0
	s.successes = 0
	s.failures = 0
	s.halfOpenSuccesses = 0
}

func failureRate(failures, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total) * 100
}

// Reset forces the breaker for id back to Closed with cleared counters.
func (cb *CircuitBreaker) Reset(id string) {
	s := cb.get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cb.resetLocked(s)
}

// GetFailureRate returns the current window's failure rate as a percentage
// in [0,100], or 0 if no requests have been recorded in the current window.
func (cb *CircuitBreaker) GetFailureRate(id string) float64 {
	s := cb.get(id)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return failureRate(s.failures, s.total)
}

// GetState returns the current state for id, or StateClosed if id is not
// registered (an unregistered node has no breaker and behaves as always
// closed/allowed).
func (cb *CircuitBreaker) GetState(id string) State {
	s := cb.get(id)
	if s == nil {
		return StateClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
