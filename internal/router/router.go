// Package router implements the message router: it holds the routing
// table built from a workflow definition's connections and delivers
// messages emitted by a completed node to every downstream inbox whose
// edge accepts them.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/condition"
	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/queue"
)

// FullQueuePolicy controls what the router does when a target inbox is
// at capacity.
type FullQueuePolicy int

const (
	// FullQueueBlock blocks (bounded by BlockTimeout) until space frees up.
	FullQueueBlock FullQueuePolicy = iota
	// FullQueueDeadLetter immediately dead-letters instead of blocking.
	FullQueueDeadLetter
)

// Router builds a routing table keyed by source node id and delivers
// messages to downstream inboxes.
type Router struct {
	mu    sync.RWMutex
	table map[string][]domain.NodeConnection

	mini *condition.MiniEvaluator
	expr *condition.ExprEvaluator

	dlq *queue.DeadLetterQueue

	Policy       FullQueuePolicy
	BlockTimeout time.Duration
}

// New creates a Router backed by the given dead-letter queue.
func New(dlq *queue.DeadLetterQueue) *Router {
	return &Router{
		table:        make(map[string][]domain.NodeConnection),
		mini:         condition.NewMiniEvaluator(),
		expr:         condition.NewExprEvaluator(),
		dlq:          dlq,
		Policy:       FullQueueBlock,
		BlockTimeout: 5 * time.Second,
	}
}

// AddRoute registers a connection in the routing table.
func (r *Router) AddRoute(c domain.NodeConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[c.SourceID] = append(r.table[c.SourceID], c)
}

// RemoveRoute removes every connection matching (sourceID, targetID,
// sourcePort, trigger).
func (r *Router) RemoveRoute(sourceID, targetID, sourcePort string, trigger domain.MessageType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.table[sourceID]
	out := conns[:0]
	for _, c := range conns {
		if c.TargetID == targetID && c.SourcePort == sourcePort && c.Trigger == trigger {
			continue
		}
		out = append(out, c)
	}
	r.table[sourceID] = out
}

// GetTargets returns the connections registered for a source node id.
func (r *Router) GetTargets(sourceID string) []domain.NodeConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NodeConnection, len(r.table[sourceID]))
	copy(out, r.table[sourceID])
	return out
}

// Clear empties the routing table.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = make(map[string][]domain.NodeConnection)
}

// RouteCount returns the total number of registered connections.
func (r *Router) RouteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.table {
		n += len(conns)
	}
	return n
}

// LoadDefinition registers every enabled connection of a workflow
// definition (including nested Container subgraphs) into the routing
// table.
func (r *Router) LoadDefinition(def *domain.WorkflowDefinition) {
	r.Clear()
	var load func(conns []domain.NodeConnection)
	load = func(conns []domain.NodeConnection) {
		for _, c := range conns {
			if c.IsEnabled {
				r.AddRoute(c)
			}
		}
	}
	load(def.Connections)
	for _, n := range def.Nodes {
		if n.Kind == domain.KindContainer {
			load(n.Connections)
		}
	}
}

// Route evaluates every outgoing edge from the message's source node and
// delivers it to each matching, passing target. It returns the number of
// successful deliveries.
func (r *Router) Route(ctx context.Context, wctx *domain.WorkflowExecutionContext, msg domain.Message) int {
	edges := r.GetTargets(msg.SourceNodeID)
	delivered := 0
	for _, edge := range edges {
		if !edge.IsEnabled {
			continue
		}
		if edge.Trigger != msg.Type {
			continue
		}
		if edge.SourcePort != "" && msg.SourcePort != "" && edge.SourcePort != msg.SourcePort {
			continue
		}

		if edge.Condition != "" {
			vars := condition.Vars{Output: msg.OutputData, Variables: wctx.Variables.Snapshot()}.ToMap()
			ok, err := r.mini.Evaluate(edge.Condition, vars)
			if err != nil {
				r.deadLetter(msg, edge.TargetID, domain.ReasonConditionEvaluationErr)
				continue
			}
			if !ok {
				continue
			}
		}

		if r.deliver(ctx, wctx, msg, edge.TargetID) {
			delivered++
		}
	}
	return delivered
}

// RouteTo delivers msg to an explicit set of target node ids, bypassing
// the routing table entirely. An empty target list is an input error.
func (r *Router) RouteTo(ctx context.Context, wctx *domain.WorkflowExecutionContext, msg domain.Message, targets []string) (int, error) {
	if len(targets) == 0 {
		return 0, fmt.Errorf("router: route-to requires at least one target")
	}
	delivered := 0
	for _, target := range targets {
		if r.deliver(ctx, wctx, msg, target) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Router) deliver(ctx context.Context, wctx *domain.WorkflowExecutionContext, msg domain.Message, targetID string) bool {
	inbox, ok := wctx.Inboxes[targetID]
	if !ok {
		r.deadLetter(msg, targetID, domain.ReasonTargetQueueNotFound)
		return false
	}

	if inbox.TryEnqueue(msg) {
		return true
	}

	switch r.Policy {
	case FullQueueDeadLetter:
		r.deadLetter(msg, targetID, domain.ReasonTargetQueueFull)
		return false
	default:
		err := inbox.Enqueue(ctx, msg, r.BlockTimeout)
		if err != nil {
			r.deadLetter(msg, targetID, domain.ReasonTargetQueueFull)
			return false
		}
		return true
	}
}

func (r *Router) deadLetter(msg domain.Message, targetID string, reason domain.DeadLetterReason) {
	if r.dlq == nil {
		return
	}
	r.dlq.Append(domain.DeadLetter{
		Original: msg,
		TargetID: targetID,
		Reason:   reason,
		Time:     time.Now(),
	})
}
