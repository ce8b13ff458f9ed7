package domain

import "time"

// CheckpointState is the serializable artifact saved and restored by
// internal/persistence. It is a superset snapshot: NodeInstances holds
// every node that has ever run, including ones completed in an earlier
// checkpoint generation, so Load can tell which nodes must not re-execute
// on resume.
type CheckpointState struct {
	CheckpointID string
	WorkflowID   string
	InstanceID   string
	SavedAt      time.Time

	Status    WorkflowStatus
	Variables map[string]any

	// NodeInstances is keyed by NodeInstance.NodeID and holds the latest
	// recorded instance of each node.
	NodeInstances map[string]NodeInstance

	// PendingInbox captures, per node id, the messages still queued but
	// not yet dequeued at save time, so resume can replay them.
	PendingInbox map[string][]Message
}

// CompletedNodeIDs returns the set of node ids with at least one Completed
// instance, matching the resume invariant that completed nodes do not
// re-execute.
func (c CheckpointState) CompletedNodeIDs() map[string]bool {
	out := make(map[string]bool)
	for _, ni := range c.NodeInstances {
		if ni.Status == NodeCompleted {
			out[ni.NodeID] = true
		}
	}
	return out
}

// RunningInstances returns the NodeInstance values that were still Running
// at save time; resume re-queues each with its original inbound message.
func (c CheckpointState) RunningInstances() []NodeInstance {
	var out []NodeInstance
	for _, ni := range c.NodeInstances {
		if ni.Status == NodeRunning {
			out = append(out, ni)
		}
	}
	return out
}
