package events

import (
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// Kind is the discriminant for Event.
type Kind string

const (
	WorkflowStarted   Kind = "WorkflowStarted"
	WorkflowCompleted Kind = "WorkflowCompleted"
	WorkflowFailed    Kind = "WorkflowFailed"
	WorkflowCancelled Kind = "WorkflowCancelled"

	NodeStarted   Kind = "NodeStarted"
	NodeCompleted Kind = "NodeCompleted"
	NodeFailed    Kind = "NodeFailed"
	NodeCancelled Kind = "NodeCancelled"

	ProgressUpdate Kind = "ProgressUpdate"
)

// Event is the single emission type published on a workflow's event
// stream, covering all nine workflow/node categories. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind               Kind
	Timestamp          time.Time
	WorkflowInstanceID string
	NodeID             string
	NodeInstanceID     string

	// Node/workflow terminal fields.
	Duration      time.Duration
	Output        map[string]any
	ErrorMessage  string
	ExceptionKind string
	Reason        string
}

// Progress is the ProgressUpdate payload, emitted on a separate stream
// from Event per §6.
type Progress struct {
	WorkflowInstanceID     string
	PercentComplete        float64
	NodesCompleted         int
	NodesRunning           int
	NodesPending           int
	NodesFailed            int
	NodesCancelled         int
	TotalNodes             int
	EstimatedTimeRemaining *time.Duration
	Timestamp              time.Time
}

// NewWorkflowEvent builds a workflow-lifecycle event.
func NewWorkflowEvent(kind Kind, instanceID, reason string) Event {
	return Event{Kind: kind, Timestamp: time.Now(), WorkflowInstanceID: instanceID, Reason: reason}
}

// NewNodeStartedEvent builds a NodeStarted event.
func NewNodeStartedEvent(instanceID string, ni domain.NodeInstance) Event {
	return Event{
		Kind:               NodeStarted,
		Timestamp:          time.Now(),
		WorkflowInstanceID: instanceID,
		NodeID:             ni.NodeID,
		NodeInstanceID:     ni.InstanceID,
	}
}

// NewNodeCompletedEvent builds a NodeCompleted event.
func NewNodeCompletedEvent(instanceID string, ni domain.NodeInstance) Event {
	return Event{
		Kind:               NodeCompleted,
		Timestamp:          time.Now(),
		WorkflowInstanceID: instanceID,
		NodeID:             ni.NodeID,
		NodeInstanceID:     ni.InstanceID,
		Duration:           ni.Duration(),
		Output:             ni.Output,
	}
}

// NewNodeFailedEvent builds a NodeFailed event.
func NewNodeFailedEvent(instanceID string, ni domain.NodeInstance) Event {
	return Event{
		Kind:               NodeFailed,
		Timestamp:          time.Now(),
		WorkflowInstanceID: instanceID,
		NodeID:             ni.NodeID,
		NodeInstanceID:     ni.InstanceID,
		Duration:           ni.Duration(),
		ErrorMessage:       ni.ErrorMessage,
		ExceptionKind:      ni.ExceptionKind,
	}
}

// NewNodeCancelledEvent builds a NodeCancelled event.
func NewNodeCancelledEvent(instanceID string, ni domain.NodeInstance, reason string) Event {
	return Event{
		Kind:               NodeCancelled,
		Timestamp:          time.Now(),
		WorkflowInstanceID: instanceID,
		NodeID:             ni.NodeID,
		NodeInstanceID:     ni.InstanceID,
		Reason:             reason,
	}
}
