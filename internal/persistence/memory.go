package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smilemakc/mbflow/internal/domain"
)

// MemoryStore is an in-process checkpoint store, used in tests and for
// workflows that don't need durability across restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	codec Codec
	data  map[string]domain.CheckpointState
}

// NewMemoryStore creates an empty MemoryStore using JSONCodec for size
// accounting in List.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codec: JSONCodec{}, data: make(map[string]domain.CheckpointState)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, checkpointID string, state domain.CheckpointState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[checkpointID] = state
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, checkpointID string) (*domain.CheckpointState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.data[checkpointID]
	if !ok {
		return nil, fmt.Errorf("persistence: checkpoint %q not found", checkpointID)
	}
	return &state, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, instanceID string) ([]CheckpointMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var metas []CheckpointMeta
	for id, state := range s.data {
		if state.InstanceID != instanceID {
			continue
		}
		encoded, _ := s.codec.Encode(state)
		metas = append(metas, metaFromState(id, state, len(encoded)))
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].SavedAt.After(metas[j].SavedAt) })
	return metas, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, checkpointID)
	return nil
}

// DeleteAll implements Store.
func (s *MemoryStore) DeleteAll(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, state := range s.data {
		if state.InstanceID == instanceID {
			delete(s.data, id)
		}
	}
	return nil
}
