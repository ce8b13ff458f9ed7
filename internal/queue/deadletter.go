package queue

import (
	"sync"

	"github.com/smilemakc/mbflow/internal/domain"
)

// DeadLetterQueue is a global, append-only, queryable store of messages
// the router could not deliver. Entries are never automatically drained;
// an operator or diagnostic tool reads them with List/ListForInstance.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []domain.DeadLetter
}

// NewDeadLetterQueue creates an empty dead-letter queue.
func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

// Append records a new dead letter.
func (d *DeadLetterQueue) Append(entry domain.DeadLetter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
}

// List returns a snapshot of every dead letter recorded so far.
func (d *DeadLetterQueue) List() []domain.DeadLetter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.DeadLetter, len(d.entries))
	copy(out, d.entries)
	return out
}

// ListForInstance returns the dead letters belonging to one workflow
// instance, in the order they were appended.
func (d *DeadLetterQueue) ListForInstance(instanceID string) []domain.DeadLetter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.DeadLetter
	for _, e := range d.entries {
		if e.Original.WorkflowInstanceID == instanceID {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the total number of recorded dead letters.
func (d *DeadLetterQueue) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
