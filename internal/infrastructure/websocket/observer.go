package websocket

import (
	"github.com/smilemakc/mbflow/internal/events"
)

// Observer bridges one engine's event and progress topics onto a Hub,
// translating internal event Kinds to wire-level WSEvents. Run blocks
// until both topics complete (engine termination), so call it in a
// goroutine per started workflow.
type Observer struct {
	hub        *Hub
	instanceID string
}

func NewObserver(hub *Hub, instanceID string) *Observer {
	return &Observer{hub: hub, instanceID: instanceID}
}

// Run subscribes to both topics and forwards every emission until they
// complete.
func (o *Observer) Run(eventTopic *events.Topic[events.Event], progressTopic *events.Topic[events.Progress]) {
	eventCh, unsubEvents := eventTopic.Subscribe(64)
	progressCh, unsubProgress := progressTopic.Subscribe(16)
	defer unsubEvents()
	defer unsubProgress()

	for eventCh != nil || progressCh != nil {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			o.hub.Broadcast(o.instanceID, eventToWS(ev))
		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			o.hub.Broadcast(o.instanceID, progressToWS(p))
		}
	}
}

func eventToWS(ev events.Event) *WSEvent {
	w := &WSEvent{
		Timestamp:  ev.Timestamp,
		InstanceID: ev.WorkflowInstanceID,
		NodeID:     ev.NodeID,
		DurationMs: ev.Duration.Milliseconds(),
		Error:      ev.ErrorMessage,
		Reason:     ev.Reason,
	}
	if ev.Output != nil {
		w.Output = ev.Output
	}
	switch ev.Kind {
	case events.WorkflowStarted:
		w.Type = EventWorkflowStarted
	case events.WorkflowCompleted:
		w.Type = EventWorkflowCompleted
	case events.WorkflowFailed:
		w.Type = EventWorkflowFailed
	case events.WorkflowCancelled:
		w.Type = EventWorkflowCancelled
	case events.NodeStarted:
		w.Type = EventNodeStarted
	case events.NodeCompleted:
		w.Type = EventNodeCompleted
	case events.NodeFailed:
		w.Type = EventNodeFailed
	case events.NodeCancelled:
		w.Type = EventNodeCancelled
	default:
		w.Type = string(ev.Kind)
	}
	return w
}

func progressToWS(p events.Progress) *WSEvent {
	return &WSEvent{
		Type:            EventProgress,
		Timestamp:       p.Timestamp,
		InstanceID:      p.WorkflowInstanceID,
		PercentComplete: p.PercentComplete,
		NodesCompleted:  p.NodesCompleted,
		NodesRunning:    p.NodesRunning,
		NodesPending:    p.NodesPending,
		NodesFailed:     p.NodesFailed,
	}
}
