package domain

import (
	"fmt"

	"github.com/smilemakc/mbflow/internal/domain/errors"
)

// RetryPolicyConfig is the per-node retry configuration carried on a
// NodeDefinition. The concrete backoff math lives in internal/resilience;
// this is the declarative, serializable shape.
type RetryPolicyConfig struct {
	Strategy     string // "None", "Fixed", "Exponential", "Linear"
	MaxAttempts  int    // [1,10]
	InitialDelay float64 // seconds
	MaxDelay     float64 // seconds
	Multiplier   float64 // exponential only
	RetryOn      []string
	DoNotRetryOn []string
}

// CircuitBreakerPolicyConfig is the per-node circuit breaker configuration.
type CircuitBreakerPolicyConfig struct {
	FailureThreshold  int // percent, [0,100]
	MinimumThroughput int
	OpenDurationMs    int64
	HalfOpenSuccesses int
}

// NodeDefinition describes one node in a WorkflowDefinition.
type NodeDefinition struct {
	ID                      string
	Name                    string
	Kind                    NodeKind
	Configuration           map[string]any
	RetryPolicy             *RetryPolicyConfig
	CircuitBreakerPolicy    *CircuitBreakerPolicyConfig
	Priority                Priority
	MaxConcurrentExecutions int // 0 = unlimited
	JoinPolicy              JoinPolicy
	CompensationNodeID      string
	FallbackNodeID          string
	Description             string
	Tags                    []string

	// Nested nodes/connections for Kind == Container.
	Nodes       []NodeDefinition
	Connections []NodeConnection
}

// EffectiveJoinPolicy returns the node's join policy, defaulting to Any.
func (n NodeDefinition) EffectiveJoinPolicy() JoinPolicy {
	if n.JoinPolicy == "" {
		return JoinAny
	}
	return n.JoinPolicy
}

func (n NodeDefinition) validate() error {
	if n.ID == "" {
		return fmt.Errorf("node has empty id")
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("node %s: invalid kind %q", n.ID, n.Kind)
	}
	switch n.Kind {
	case KindScript:
		if _, ok := n.Configuration["script"]; !ok {
			return fmt.Errorf("node %s: Script kind requires a 'script' configuration field", n.ID)
		}
	case KindIfElse:
		if _, ok := n.Configuration["condition"]; !ok {
			return fmt.Errorf("node %s: IfElse kind requires a 'condition' configuration field", n.ID)
		}
	case KindForEach:
		if _, ok := n.Configuration["collection"]; !ok {
			return fmt.Errorf("node %s: ForEach kind requires a 'collection' configuration field", n.ID)
		}
		if _, ok := n.Configuration["item_variable"]; !ok {
			return fmt.Errorf("node %s: ForEach kind requires an 'item_variable' configuration field", n.ID)
		}
	case KindWhile:
		if _, ok := n.Configuration["condition"]; !ok {
			return fmt.Errorf("node %s: While kind requires a 'condition' configuration field", n.ID)
		}
	case KindSwitch:
		cases, ok := n.Configuration["cases"]
		if !ok {
			return fmt.Errorf("node %s: Switch kind requires a 'cases' configuration field", n.ID)
		}
		if _, ok := cases.([]SwitchCase); !ok {
			if _, ok := cases.([]any); !ok {
				return fmt.Errorf("node %s: Switch kind 'cases' must be a list", n.ID)
			}
		}
	case KindContainer:
		for _, child := range n.Nodes {
			if err := child.validate(); err != nil {
				return fmt.Errorf("node %s: container child: %w", n.ID, err)
			}
		}
	}
	if n.RetryPolicy != nil {
		if n.RetryPolicy.MaxAttempts < 1 || n.RetryPolicy.MaxAttempts > 10 {
			return fmt.Errorf("node %s: retry MaxAttempts must be in [1,10]", n.ID)
		}
		if n.RetryPolicy.MaxDelay < n.RetryPolicy.InitialDelay {
			return fmt.Errorf("node %s: retry MaxDelay must be >= InitialDelay", n.ID)
		}
	}
	if n.CircuitBreakerPolicy != nil {
		cb := n.CircuitBreakerPolicy
		if cb.FailureThreshold < 0 || cb.FailureThreshold > 100 {
			return fmt.Errorf("node %s: circuit breaker FailureThreshold must be in [0,100]", n.ID)
		}
	}
	return nil
}

// SwitchCase is one entry of a Switch node's case table.
type SwitchCase struct {
	CaseValue string
	Port      string
}

// NodeConnection is a directed edge between two nodes, gated by trigger
// message type, optional source port, and optional condition.
type NodeConnection struct {
	SourceID    string
	TargetID    string
	Trigger     MessageType
	SourcePort  string
	Condition   string
	IsEnabled   bool
	Priority    Priority
	Metadata    map[string]any
	Label       string

	// IsLoopFeedback marks the single restricted back-edge a While node's
	// loop body may carry back to the While node itself (a Complete
	// message). Set during Validate; the acyclicity check ignores edges
	// with this flag.
	IsLoopFeedback bool
}

// key identifies a connection for the duplicate-collapsing invariant:
// duplicate (source, target, port, trigger) tuples collapse on add.
func (c NodeConnection) key() [4]string {
	return [4]string{c.SourceID, c.TargetID, c.SourcePort, string(c.Trigger)}
}

// WorkflowDefinition is the immutable input to a workflow execution.
type WorkflowDefinition struct {
	ID                string
	Name              string
	EntryPointNodeID  string
	MaxConcurrency    int // 0 = unlimited
	TimeoutSeconds    float64
	Nodes             []NodeDefinition
	Connections       []NodeConnection
	DefaultVariables  map[string]any
	Metadata          map[string]any
	Version           string
	AllowPause        bool
}

// NodeByID looks up a top-level node definition by id.
func (w *WorkflowDefinition) NodeByID(id string) (*NodeDefinition, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// Validate checks every invariant from the data model: unique node ids,
// connections reference existing nodes, the entry point (if set) exists,
// and the subgraph of enabled connections is acyclic except for the single
// restricted While-feedback back-edge. It also de-duplicates connections
// sharing a (source, target, port, trigger) tuple and flags While-feedback
// edges. Validate mutates w.Connections to collapse duplicates and set
// IsLoopFeedback, matching "idempotent add" semantics for repeated calls.
func (w *WorkflowDefinition) Validate() error {
	if len(w.Nodes) == 0 {
		return errors.New(errors.KindValidation, w.ID, "", "", "workflow must have at least one node", nil)
	}

	seen := make(map[string]bool, len(w.Nodes))
	kindByID := make(map[string]NodeKind, len(w.Nodes))
	for _, n := range w.Nodes {
		if seen[n.ID] {
			return errors.New(errors.KindValidation, w.ID, "", n.ID, "duplicate node id", nil)
		}
		seen[n.ID] = true
		kindByID[n.ID] = n.Kind
		if err := n.validate(); err != nil {
			return errors.New(errors.KindValidation, w.ID, "", n.ID, err.Error(), err)
		}
	}

	if w.EntryPointNodeID != "" && !seen[w.EntryPointNodeID] {
		return errors.New(errors.KindValidation, w.ID, "", w.EntryPointNodeID, "entry point node does not exist", nil)
	}

	dedup := make([]NodeConnection, 0, len(w.Connections))
	index := make(map[[4]string]int)
	for _, c := range w.Connections {
		if !seen[c.SourceID] {
			return errors.New(errors.KindValidation, w.ID, "", c.SourceID, "connection source node does not exist", nil)
		}
		if !seen[c.TargetID] {
			return errors.New(errors.KindValidation, w.ID, "", c.TargetID, "connection target node does not exist", nil)
		}
		k := c.key()
		if i, ok := index[k]; ok {
			dedup[i] = c // later add wins, matching idempotent-add semantics
			continue
		}
		index[k] = len(dedup)
		dedup = append(dedup, c)
	}

	// Flag the single restricted back-edge class: a Complete-triggered
	// connection whose target is a While node is iteration feedback, not
	// a cycle.
	for i := range dedup {
		c := &dedup[i]
		if c.Trigger == MessageComplete && kindByID[c.TargetID] == KindWhile {
			c.IsLoopFeedback = true
		}
	}
	w.Connections = dedup

	if err := w.checkAcyclic(kindByID); err != nil {
		return err
	}

	return nil
}

// checkAcyclic verifies the subgraph of enabled, non-loop-feedback
// connections is a DAG.
func (w *WorkflowDefinition) checkAcyclic(kindByID map[string]NodeKind) error {
	adjacency := make(map[string][]string)
	for _, c := range w.Connections {
		if !c.IsEnabled || c.IsLoopFeedback {
			continue
		}
		adjacency[c.SourceID] = append(adjacency[c.SourceID], c.TargetID)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(kindByID))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range adjacency[id] {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				return errors.New(errors.KindValidation, w.ID, "", id, fmt.Sprintf("cycle detected through node %s", next), nil)
			}
		}
		color[id] = black
		return nil
	}
	for id := range kindByID {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// EntryNodes returns the set of nodes with no enabled incoming connection,
// or the single explicit entry point if one was set.
func (w *WorkflowDefinition) EntryNodes() []string {
	if w.EntryPointNodeID != "" {
		return []string{w.EntryPointNodeID}
	}
	hasIncoming := make(map[string]bool, len(w.Nodes))
	for _, c := range w.Connections {
		if c.IsEnabled {
			hasIncoming[c.TargetID] = true
		}
	}
	var entries []string
	for _, n := range w.Nodes {
		if !hasIncoming[n.ID] {
			entries = append(entries, n.ID)
		}
	}
	return entries
}

// ConnectionsFrom returns all connections with the given source id.
func (w *WorkflowDefinition) ConnectionsFrom(sourceID string) []NodeConnection {
	var out []NodeConnection
	for _, c := range w.Connections {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsTo returns all connections with the given target id.
func (w *WorkflowDefinition) ConnectionsTo(targetID string) []NodeConnection {
	var out []NodeConnection
	for _, c := range w.Connections {
		if c.TargetID == targetID {
			out = append(out, c)
		}
	}
	return out
}
