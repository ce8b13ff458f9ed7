// Package loader converts between the external workflow definition
// document format (§6) and domain.WorkflowDefinition, with JSON and YAML
// encodings. The document-level Description is read but not carried into
// the definition, and a connection's Label has no document field, so
// neither survives a round trip.
package loader

import "github.com/smilemakc/mbflow/internal/domain"

// Document is the hierarchical, serializable shape of a workflow
// definition as consumed from an external file, independent of encoding.
type Document struct {
	WorkflowID       string             `json:"workflowId" yaml:"workflowId"`
	WorkflowName     string             `json:"workflowName" yaml:"workflowName"`
	Description      string             `json:"description,omitempty" yaml:"description,omitempty"`
	Version          string             `json:"version,omitempty" yaml:"version,omitempty"`
	EntryPointNodeID string             `json:"entryPointNodeId,omitempty" yaml:"entryPointNodeId,omitempty"`
	MaxConcurrency   int                `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	AllowPause       bool               `json:"allowPause,omitempty" yaml:"allowPause,omitempty"`
	TimeoutSeconds   float64            `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	Nodes            []NodeDocument     `json:"nodes" yaml:"nodes"`
	Connections      []ConnectionDoc    `json:"connections" yaml:"connections"`
	DefaultVariables map[string]any     `json:"defaultVariables,omitempty" yaml:"defaultVariables,omitempty"`
	Metadata         map[string]any     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeDocument is one Nodes[] entry.
type NodeDocument struct {
	NodeID                  string          `json:"nodeId" yaml:"nodeId"`
	NodeName                string          `json:"nodeName" yaml:"nodeName"`
	Kind                    string          `json:"kind" yaml:"kind"`
	Configuration           map[string]any  `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	RetryPolicy             *RetryPolicyDoc `json:"retryPolicy,omitempty" yaml:"retryPolicy,omitempty"`
	CircuitBreakerPolicy    *CircuitBreakerDoc `json:"circuitBreakerPolicy,omitempty" yaml:"circuitBreakerPolicy,omitempty"`
	Priority                string          `json:"priority,omitempty" yaml:"priority,omitempty"`
	MaxConcurrentExecutions int             `json:"maxConcurrentExecutions,omitempty" yaml:"maxConcurrentExecutions,omitempty"`
	JoinType                string          `json:"joinType,omitempty" yaml:"joinType,omitempty"`
	CompensationNodeID      string          `json:"compensationNodeId,omitempty" yaml:"compensationNodeId,omitempty"`
	FallbackNodeID          string          `json:"fallbackNodeId,omitempty" yaml:"fallbackNodeId,omitempty"`
	Description             string          `json:"description,omitempty" yaml:"description,omitempty"`
	Tags                    []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Nodes                   []NodeDocument  `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Connections             []ConnectionDoc `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// RetryPolicyDoc is the serialized form of domain.RetryPolicyConfig.
type RetryPolicyDoc struct {
	Strategy     string   `json:"strategy" yaml:"strategy"`
	MaxAttempts  int      `json:"maxAttempts" yaml:"maxAttempts"`
	InitialDelay float64  `json:"initialDelay" yaml:"initialDelay"`
	MaxDelay     float64  `json:"maxDelay" yaml:"maxDelay"`
	Multiplier   float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	RetryOn      []string `json:"retryOn,omitempty" yaml:"retryOn,omitempty"`
	DoNotRetryOn []string `json:"doNotRetryOn,omitempty" yaml:"doNotRetryOn,omitempty"`
}

// CircuitBreakerDoc is the serialized form of domain.CircuitBreakerPolicyConfig.
type CircuitBreakerDoc struct {
	FailureThreshold  int   `json:"failureThreshold" yaml:"failureThreshold"`
	MinimumThroughput int   `json:"minimumThroughput" yaml:"minimumThroughput"`
	OpenDurationMs    int64 `json:"openDurationMs" yaml:"openDurationMs"`
	HalfOpenSuccesses int   `json:"halfOpenSuccesses" yaml:"halfOpenSuccesses"`
}

// ConnectionDoc is one Connections[] entry.
type ConnectionDoc struct {
	SourceNodeID       string         `json:"sourceNodeId" yaml:"sourceNodeId"`
	TargetNodeID       string         `json:"targetNodeId" yaml:"targetNodeId"`
	TriggerMessageType string         `json:"triggerMessageType" yaml:"triggerMessageType"`
	SourcePort         string         `json:"sourcePort,omitempty" yaml:"sourcePort,omitempty"`
	Condition          string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	IsEnabled          bool           `json:"isEnabled" yaml:"isEnabled"`
	Priority           string         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

var priorityNames = map[string]domain.Priority{
	"High": domain.PriorityHigh, "Normal": domain.PriorityNormal, "Low": domain.PriorityLow,
}

func priorityFromString(s string) domain.Priority {
	if p, ok := priorityNames[s]; ok {
		return p
	}
	return domain.PriorityNormal
}

// ToDefinition converts a Document into a domain.WorkflowDefinition.
func (d Document) ToDefinition() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		ID:               d.WorkflowID,
		Name:             d.WorkflowName,
		EntryPointNodeID: d.EntryPointNodeID,
		MaxConcurrency:   d.MaxConcurrency,
		TimeoutSeconds:   d.TimeoutSeconds,
		Nodes:            nodesToDomain(d.Nodes),
		Connections:      connectionsToDomain(d.Connections),
		DefaultVariables: d.DefaultVariables,
		Metadata:         d.Metadata,
		Version:          d.Version,
		AllowPause:       d.AllowPause,
	}
}

func nodesToDomain(docs []NodeDocument) []domain.NodeDefinition {
	out := make([]domain.NodeDefinition, len(docs))
	for i, n := range docs {
		out[i] = domain.NodeDefinition{
			ID:                      n.NodeID,
			Name:                    n.NodeName,
			Kind:                    domain.NodeKind(n.Kind),
			Configuration:           n.Configuration,
			RetryPolicy:             retryToDomain(n.RetryPolicy),
			CircuitBreakerPolicy:    breakerToDomain(n.CircuitBreakerPolicy),
			Priority:                priorityFromString(n.Priority),
			MaxConcurrentExecutions: n.MaxConcurrentExecutions,
			JoinPolicy:              domain.JoinPolicy(n.JoinType),
			CompensationNodeID:      n.CompensationNodeID,
			FallbackNodeID:          n.FallbackNodeID,
			Description:             n.Description,
			Tags:                    n.Tags,
			Nodes:                   nodesToDomain(n.Nodes),
			Connections:             connectionsToDomain(n.Connections),
		}
	}
	return out
}

func retryToDomain(d *RetryPolicyDoc) *domain.RetryPolicyConfig {
	if d == nil {
		return nil
	}
	return &domain.RetryPolicyConfig{
		Strategy: d.Strategy, MaxAttempts: d.MaxAttempts, InitialDelay: d.InitialDelay,
		MaxDelay: d.MaxDelay, Multiplier: d.Multiplier, RetryOn: d.RetryOn, DoNotRetryOn: d.DoNotRetryOn,
	}
}

func breakerToDomain(d *CircuitBreakerDoc) *domain.CircuitBreakerPolicyConfig {
	if d == nil {
		return nil
	}
	return &domain.CircuitBreakerPolicyConfig{
		FailureThreshold: d.FailureThreshold, MinimumThroughput: d.MinimumThroughput,
		OpenDurationMs: d.OpenDurationMs, HalfOpenSuccesses: d.HalfOpenSuccesses,
	}
}

func connectionsToDomain(docs []ConnectionDoc) []domain.NodeConnection {
	out := make([]domain.NodeConnection, len(docs))
	for i, c := range docs {
		out[i] = domain.NodeConnection{
			SourceID:   c.SourceNodeID,
			TargetID:   c.TargetNodeID,
			Trigger:    domain.MessageType(c.TriggerMessageType),
			SourcePort: c.SourcePort,
			Condition:  c.Condition,
			IsEnabled:  c.IsEnabled,
			Priority:   priorityFromString(c.Priority),
			Metadata:   c.Metadata,
		}
	}
	return out
}

// FromDefinition converts a domain.WorkflowDefinition into a Document for
// serialization.
func FromDefinition(def domain.WorkflowDefinition) Document {
	return Document{
		WorkflowID:       def.ID,
		WorkflowName:     def.Name,
		Version:          def.Version,
		EntryPointNodeID: def.EntryPointNodeID,
		MaxConcurrency:   def.MaxConcurrency,
		AllowPause:       def.AllowPause,
		TimeoutSeconds:   def.TimeoutSeconds,
		Nodes:            nodesFromDomain(def.Nodes),
		Connections:      connectionsFromDomain(def.Connections),
		DefaultVariables: def.DefaultVariables,
		Metadata:         def.Metadata,
	}
}

func nodesFromDomain(defs []domain.NodeDefinition) []NodeDocument {
	out := make([]NodeDocument, len(defs))
	for i, n := range defs {
		var retry *RetryPolicyDoc
		if n.RetryPolicy != nil {
			retry = &RetryPolicyDoc{
				Strategy: n.RetryPolicy.Strategy, MaxAttempts: n.RetryPolicy.MaxAttempts,
				InitialDelay: n.RetryPolicy.InitialDelay, MaxDelay: n.RetryPolicy.MaxDelay,
				Multiplier: n.RetryPolicy.Multiplier, RetryOn: n.RetryPolicy.RetryOn, DoNotRetryOn: n.RetryPolicy.DoNotRetryOn,
			}
		}
		var breaker *CircuitBreakerDoc
		if n.CircuitBreakerPolicy != nil {
			breaker = &CircuitBreakerDoc{
				FailureThreshold: n.CircuitBreakerPolicy.FailureThreshold, MinimumThroughput: n.CircuitBreakerPolicy.MinimumThroughput,
				OpenDurationMs: n.CircuitBreakerPolicy.OpenDurationMs, HalfOpenSuccesses: n.CircuitBreakerPolicy.HalfOpenSuccesses,
			}
		}
		out[i] = NodeDocument{
			NodeID: n.ID, NodeName: n.Name, Kind: string(n.Kind), Configuration: n.Configuration,
			RetryPolicy: retry, CircuitBreakerPolicy: breaker, Priority: n.Priority.String(),
			MaxConcurrentExecutions: n.MaxConcurrentExecutions, JoinType: string(n.JoinPolicy),
			CompensationNodeID: n.CompensationNodeID, FallbackNodeID: n.FallbackNodeID,
			Description: n.Description, Tags: n.Tags,
			Nodes: nodesFromDomain(n.Nodes), Connections: connectionsFromDomain(n.Connections),
		}
	}
	return out
}

func connectionsFromDomain(conns []domain.NodeConnection) []ConnectionDoc {
	out := make([]ConnectionDoc, len(conns))
	for i, c := range conns {
		out[i] = ConnectionDoc{
			SourceNodeID: c.SourceID, TargetNodeID: c.TargetID, TriggerMessageType: string(c.Trigger),
			SourcePort: c.SourcePort, Condition: c.Condition, IsEnabled: c.IsEnabled,
			Priority: c.Priority.String(), Metadata: c.Metadata,
		}
	}
	return out
}
