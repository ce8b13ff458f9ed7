package domain

import "time"

// Message is the tagged union routed between node inboxes. Exactly one of
// the variant-specific fields is meaningful, selected by Type.
type Message struct {
	// Common fields.
	Type              MessageType
	SourceNodeID      string
	Timestamp         time.Time
	WorkflowInstanceID string
	Payload           map[string]any
	SourcePort        string // outgoing port the message was emitted on, if any

	// NodeComplete fields.
	Duration   time.Duration
	OutputData map[string]any

	// NodeFail fields.
	Error         string
	ExceptionKind string

	// NodeProgress fields.
	StatusText string
	Percent    float64

	// NodeNext fields (loop iteration).
	ItemValue any
	ItemIndex int
}

// NewCompleteMessage builds a NodeComplete message.
func NewCompleteMessage(sourceNodeID, instanceID string, duration time.Duration, output map[string]any) Message {
	return Message{
		Type:               MessageComplete,
		SourceNodeID:       sourceNodeID,
		WorkflowInstanceID: instanceID,
		Timestamp:          time.Now(),
		Duration:           duration,
		OutputData:         output,
		Payload:            output,
	}
}

// NewFailMessage builds a NodeFail message.
func NewFailMessage(sourceNodeID, instanceID, errMsg, exceptionKind string) Message {
	return Message{
		Type:               MessageFail,
		SourceNodeID:       sourceNodeID,
		WorkflowInstanceID: instanceID,
		Timestamp:          time.Now(),
		Error:              errMsg,
		ExceptionKind:      exceptionKind,
	}
}

// NewProgressMessage builds a NodeProgress message.
func NewProgressMessage(sourceNodeID, instanceID, statusText string, percent float64) Message {
	return Message{
		Type:               MessageProgress,
		SourceNodeID:       sourceNodeID,
		WorkflowInstanceID: instanceID,
		Timestamp:          time.Now(),
		StatusText:         statusText,
		Percent:            percent,
	}
}

// NewNextMessage builds a NodeNext (loop iteration) message.
func NewNextMessage(sourceNodeID, instanceID string, item any, index int) Message {
	return Message{
		Type:               MessageNext,
		SourceNodeID:       sourceNodeID,
		WorkflowInstanceID: instanceID,
		Timestamp:          time.Now(),
		ItemValue:          item,
		ItemIndex:          index,
	}
}

// DeadLetter is one entry in the dead-letter queue: an undeliverable
// message plus the target it was bound for and why it could not be
// delivered.
type DeadLetter struct {
	Original Message
	TargetID string
	Reason   DeadLetterReason
	Time     time.Time
}
