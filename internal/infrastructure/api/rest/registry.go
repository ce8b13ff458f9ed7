package rest

import (
	"fmt"
	"sync"

	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/engine"
)

// runningWorkflow pairs an Engine with its execution context, letting
// handlers look one up by instance id after StartAsync or Resume hands out
// the id.
type runningWorkflow struct {
	engine *engine.Engine
	ctx    *domain.WorkflowExecutionContext
}

// Registry tracks workflow definitions available for execution and the
// in-flight engines started against them.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]domain.WorkflowDefinition
	running     map[string]*runningWorkflow
	bodies      map[string]engine.NodeBody
	cfg         engine.Config
	onStart     func(e *engine.Engine, wctx *domain.WorkflowExecutionContext)
}

// NewRegistry constructs an empty Registry. bodies is the set of
// user-supplied node implementations shared by every started engine.
// onStart, if non-nil, runs synchronously right after a new engine starts
// (e.g. to launch a websocket observer goroutine); it may be nil.
func NewRegistry(bodies map[string]engine.NodeBody, cfg engine.Config, onStart func(e *engine.Engine, wctx *domain.WorkflowExecutionContext)) *Registry {
	return &Registry{
		definitions: make(map[string]domain.WorkflowDefinition),
		running:     make(map[string]*runningWorkflow),
		bodies:      bodies,
		cfg:         cfg,
		onStart:     onStart,
	}
}

// PutDefinition registers or replaces a workflow definition by id.
func (reg *Registry) PutDefinition(def domain.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.definitions[def.ID] = def
	return nil
}

// GetDefinition looks up a registered definition by id.
func (reg *Registry) GetDefinition(id string) (domain.WorkflowDefinition, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	def, ok := reg.definitions[id]
	return def, ok
}

// ListDefinitions returns every registered definition.
func (reg *Registry) ListDefinitions() []domain.WorkflowDefinition {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]domain.WorkflowDefinition, 0, len(reg.definitions))
	for _, def := range reg.definitions {
		out = append(out, def)
	}
	return out
}

// Start launches a new engine for a registered definition and returns its
// execution context.
func (reg *Registry) Start(workflowID string) (*domain.WorkflowExecutionContext, error) {
	def, ok := reg.GetDefinition(workflowID)
	if !ok {
		return nil, fmt.Errorf("rest: workflow %q not found", workflowID)
	}

	e := engine.New(&def, reg.bodies, reg.cfg)
	wctx, err := e.StartAsync()
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.running[wctx.InstanceID] = &runningWorkflow{engine: e, ctx: wctx}
	reg.mu.Unlock()

	if reg.onStart != nil {
		reg.onStart(e, wctx)
	}

	return wctx, nil
}

// Resume constructs a new engine for state.WorkflowID's registered
// definition and resumes it from state, tracking the result exactly like
// Start so handlers can look it up by the checkpoint's InstanceID.
func (reg *Registry) Resume(state domain.CheckpointState) (*domain.WorkflowExecutionContext, error) {
	def, ok := reg.GetDefinition(state.WorkflowID)
	if !ok {
		return nil, fmt.Errorf("rest: workflow %q not found", state.WorkflowID)
	}

	e, wctx, err := engine.NewFromCheckpoint(&def, reg.bodies, reg.cfg, state)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.running[wctx.InstanceID] = &runningWorkflow{engine: e, ctx: wctx}
	reg.mu.Unlock()

	if reg.onStart != nil {
		reg.onStart(e, wctx)
	}

	return wctx, nil
}

// Get looks up a running (or terminal but not yet evicted) workflow by
// instance id.
func (reg *Registry) Get(instanceID string) (*runningWorkflow, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rw, ok := reg.running[instanceID]
	return rw, ok
}

// ListInstances returns the execution context of every tracked instance.
func (reg *Registry) ListInstances() []*domain.WorkflowExecutionContext {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*domain.WorkflowExecutionContext, 0, len(reg.running))
	for _, rw := range reg.running {
		out = append(out, rw.ctx)
	}
	return out
}
