// Package workflow is a fluent builder over domain.WorkflowDefinition,
// letting callers assemble a workflow in Go instead of hand-writing a
// document for the loader package.
package workflow

import "github.com/smilemakc/mbflow/internal/domain"

// DefinitionBuilder assembles a domain.WorkflowDefinition.
type DefinitionBuilder struct {
	d domain.WorkflowDefinition
}

// NewDefinitionBuilder starts a new builder for workflow id.
func NewDefinitionBuilder(id string) *DefinitionBuilder {
	return &DefinitionBuilder{d: domain.WorkflowDefinition{ID: id}}
}

func (b *DefinitionBuilder) Name(name string) *DefinitionBuilder { b.d.Name = name; return b }
func (b *DefinitionBuilder) Version(v string) *DefinitionBuilder { b.d.Version = v; return b }

func (b *DefinitionBuilder) EntryPoint(nodeID string) *DefinitionBuilder {
	b.d.EntryPointNodeID = nodeID
	return b
}

func (b *DefinitionBuilder) MaxConcurrency(n int) *DefinitionBuilder {
	b.d.MaxConcurrency = n
	return b
}

func (b *DefinitionBuilder) TimeoutSeconds(s float64) *DefinitionBuilder {
	b.d.TimeoutSeconds = s
	return b
}

func (b *DefinitionBuilder) AllowPause(allow bool) *DefinitionBuilder {
	b.d.AllowPause = allow
	return b
}

func (b *DefinitionBuilder) DefaultVariable(key string, value any) *DefinitionBuilder {
	if b.d.DefaultVariables == nil {
		b.d.DefaultVariables = map[string]any{}
	}
	b.d.DefaultVariables[key] = value
	return b
}

func (b *DefinitionBuilder) AddNode(n domain.NodeDefinition) *DefinitionBuilder {
	b.d.Nodes = append(b.d.Nodes, n)
	return b
}

func (b *DefinitionBuilder) AddConnection(c domain.NodeConnection) *DefinitionBuilder {
	b.d.Connections = append(b.d.Connections, c)
	return b
}

// Build returns the assembled definition. Callers should call Validate on
// the result before starting an engine against it.
func (b *DefinitionBuilder) Build() domain.WorkflowDefinition { return b.d }

// NodeBuilder assembles one domain.NodeDefinition.
type NodeBuilder struct {
	n domain.NodeDefinition
}

// NewNodeBuilder starts a new node builder with id and kind.
func NewNodeBuilder(id string, kind domain.NodeKind) *NodeBuilder {
	return &NodeBuilder{n: domain.NodeDefinition{ID: id, Kind: kind, Priority: domain.PriorityNormal}}
}

func (b *NodeBuilder) Name(name string) *NodeBuilder { b.n.Name = name; return b }

func (b *NodeBuilder) Config(key string, value any) *NodeBuilder {
	if b.n.Configuration == nil {
		b.n.Configuration = map[string]any{}
	}
	b.n.Configuration[key] = value
	return b
}

func (b *NodeBuilder) Priority(p domain.Priority) *NodeBuilder { b.n.Priority = p; return b }

func (b *NodeBuilder) JoinPolicy(p domain.JoinPolicy) *NodeBuilder { b.n.JoinPolicy = p; return b }

func (b *NodeBuilder) MaxConcurrentExecutions(n int) *NodeBuilder {
	b.n.MaxConcurrentExecutions = n
	return b
}

func (b *NodeBuilder) Retry(policy domain.RetryPolicyConfig) *NodeBuilder {
	b.n.RetryPolicy = &policy
	return b
}

func (b *NodeBuilder) CircuitBreaker(policy domain.CircuitBreakerPolicyConfig) *NodeBuilder {
	b.n.CircuitBreakerPolicy = &policy
	return b
}

func (b *NodeBuilder) Fallback(nodeID string) *NodeBuilder { b.n.FallbackNodeID = nodeID; return b }

func (b *NodeBuilder) Compensation(nodeID string) *NodeBuilder {
	b.n.CompensationNodeID = nodeID
	return b
}

func (b *NodeBuilder) Description(desc string) *NodeBuilder { b.n.Description = desc; return b }

func (b *NodeBuilder) Tags(tags ...string) *NodeBuilder { b.n.Tags = tags; return b }

// Children attaches a nested subgraph, valid only on Kind == KindContainer.
func (b *NodeBuilder) Children(nodes []domain.NodeDefinition, conns []domain.NodeConnection) *NodeBuilder {
	b.n.Nodes = nodes
	b.n.Connections = conns
	return b
}

func (b *NodeBuilder) Build() domain.NodeDefinition { return b.n }

// ConnectionBuilder assembles one domain.NodeConnection.
type ConnectionBuilder struct {
	c domain.NodeConnection
}

// NewConnectionBuilder starts a new connection from source to target on
// trigger, enabled by default.
func NewConnectionBuilder(sourceID, targetID string, trigger domain.MessageType) *ConnectionBuilder {
	return &ConnectionBuilder{c: domain.NodeConnection{
		SourceID: sourceID, TargetID: targetID, Trigger: trigger,
		IsEnabled: true, Priority: domain.PriorityNormal,
	}}
}

func (b *ConnectionBuilder) SourcePort(port string) *ConnectionBuilder { b.c.SourcePort = port; return b }
func (b *ConnectionBuilder) Condition(expr string) *ConnectionBuilder  { b.c.Condition = expr; return b }
func (b *ConnectionBuilder) Priority(p domain.Priority) *ConnectionBuilder {
	b.c.Priority = p
	return b
}
func (b *ConnectionBuilder) Enabled(enabled bool) *ConnectionBuilder { b.c.IsEnabled = enabled; return b }
func (b *ConnectionBuilder) Label(label string) *ConnectionBuilder  { b.c.Label = label; return b }
func (b *ConnectionBuilder) Metadata(key string, value any) *ConnectionBuilder {
	if b.c.Metadata == nil {
		b.c.Metadata = map[string]any{}
	}
	b.c.Metadata[key] = value
	return b
}

func (b *ConnectionBuilder) Build() domain.NodeConnection { return b.c }
