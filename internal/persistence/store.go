// Package persistence implements checkpoint save/load/list/delete over
// in-memory, file, and Postgres backends.
package persistence

import (
	"context"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// CheckpointMeta is the lightweight listing entry returned by List,
// without the full serialized state.
type CheckpointMeta struct {
	CheckpointID   string
	WorkflowID     string
	InstanceID     string
	SavedAt        time.Time
	TotalNodes     int
	CompletedNodes int
	PendingNodes   int
	SizeBytes      int
}

// Store is the checkpoint persistence interface implemented by the
// in-memory, file, and Postgres backends.
type Store interface {
	Save(ctx context.Context, checkpointID string, state domain.CheckpointState) error
	Load(ctx context.Context, checkpointID string) (*domain.CheckpointState, error)
	List(ctx context.Context, instanceID string) ([]CheckpointMeta, error)
	Delete(ctx context.Context, checkpointID string) error
	DeleteAll(ctx context.Context, instanceID string) error
}

func metaFromState(checkpointID string, state domain.CheckpointState, size int) CheckpointMeta {
	completed := len(state.CompletedNodeIDs())
	return CheckpointMeta{
		CheckpointID:   checkpointID,
		WorkflowID:     state.WorkflowID,
		InstanceID:     state.InstanceID,
		SavedAt:        state.SavedAt,
		TotalNodes:     len(state.NodeInstances),
		CompletedNodes: completed,
		PendingNodes:   len(state.NodeInstances) - completed,
		SizeBytes:      size,
	}
}
