package domain

import "fmt"

// NodeKind is the closed set of node kinds the engine knows how to dispatch.
type NodeKind string

const (
	KindNoop      NodeKind = "Noop"
	KindTask      NodeKind = "Task"
	KindScript    NodeKind = "Script"
	KindIfElse    NodeKind = "IfElse"
	KindForEach   NodeKind = "ForEach"
	KindWhile     NodeKind = "While"
	KindSwitch    NodeKind = "Switch"
	KindSubflow   NodeKind = "Subflow"
	KindTimer     NodeKind = "Timer"
	KindContainer NodeKind = "Container"
)

// IsValid reports whether k is one of the closed set of node kinds.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindNoop, KindTask, KindScript, KindIfElse, KindForEach, KindWhile,
		KindSwitch, KindSubflow, KindTimer, KindContainer:
		return true
	default:
		return false
	}
}

func (k NodeKind) String() string { return string(k) }

// IsControlFlow reports whether the engine executes this kind with a
// built-in body rather than dispatching to a user-supplied NodeBody.
func (k NodeKind) IsControlFlow() bool {
	switch k {
	case KindIfElse, KindForEach, KindWhile, KindSwitch, KindSubflow, KindTimer, KindContainer:
		return true
	default:
		return false
	}
}

// Priority is the three-level priority used by the workflow-wide
// concurrency limiter and by node definitions.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// NumPriorities is the number of distinct priority buckets.
const NumPriorities = 3

// JoinPolicy governs how a node with multiple inbound edges decides it is
// ready to run.
type JoinPolicy string

const (
	// JoinAny triggers execution on the first inbound message to arrive.
	JoinAny JoinPolicy = "Any"
	// JoinAll waits for at least one message from every enabled upstream
	// edge (by distinct source id) before running.
	JoinAll JoinPolicy = "All"
)

// MessageType is the tagged-union discriminant for inter-node messages and
// the trigger type an edge can be gated on.
type MessageType string

const (
	MessageComplete MessageType = "Complete"
	MessageFail     MessageType = "Fail"
	MessageProgress MessageType = "Progress"
	MessageNext     MessageType = "Next"
	MessageCustom   MessageType = "Custom"
)

// Well-known port names emitted by control-flow node kinds.
const (
	PortTrueBranch  = "TrueBranch"
	PortFalseBranch = "FalseBranch"
	PortLoopBody    = "LoopBody"
	PortDefault     = "Default"
)

// WorkflowStatus is the lifecycle status of a WorkflowExecutionContext.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "Running"
	WorkflowCompleted WorkflowStatus = "Completed"
	WorkflowFailed    WorkflowStatus = "Failed"
	WorkflowCancelled WorkflowStatus = "Cancelled"
	WorkflowPaused    WorkflowStatus = "Paused"
)

// IsTerminal reports whether s is a terminal workflow status.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus is the lifecycle status of a single NodeInstance.
type NodeStatus string

const (
	NodePending   NodeStatus = "Pending"
	NodeRunning   NodeStatus = "Running"
	NodeCompleted NodeStatus = "Completed"
	NodeFailed    NodeStatus = "Failed"
	NodeCancelled NodeStatus = "Cancelled"
	NodeSkipped   NodeStatus = "Skipped"
)

// DeadLetterReason classifies why a message could not be delivered.
type DeadLetterReason string

const (
	ReasonTargetQueueNotFound    DeadLetterReason = "TargetQueueNotFound"
	ReasonTargetQueueFull        DeadLetterReason = "TargetQueueFull"
	ReasonConditionEvaluationErr DeadLetterReason = "ConditionEvaluationError"
	ReasonWorkflowTerminated     DeadLetterReason = "WorkflowTerminated"
)

// CancelReason records why a workflow's cancellation token was tripped.
type CancelReason string

const (
	CancelReasonUser       CancelReason = "User"
	CancelReasonTimeout    CancelReason = "Timeout"
	CancelReasonInfiniteLp CancelReason = "InfiniteLoop"
	CancelReasonNodeFailed CancelReason = "NodeFailed"
)
