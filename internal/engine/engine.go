// Package engine implements the workflow engine: the dispatch loop that
// seeds entry nodes, selects ready nodes per their join policy, runs node
// executors concurrently, and feeds resulting messages to the router
// until the workflow settles.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smilemakc/mbflow/internal/concurrency"
	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/events"
	"github.com/smilemakc/mbflow/internal/queue"
	"github.com/smilemakc/mbflow/internal/resilience"
	"github.com/smilemakc/mbflow/internal/router"
	"github.com/smilemakc/mbflow/internal/utils"
)

// inboxCapacityOverride reads a per-node inbox_capacity configuration
// field, returning 0 (the DefaultValue zero case) when absent or
// non-numeric so the engine's configured default applies.
func inboxCapacityOverride(n *domain.NodeDefinition) int {
	v, ok := n.Configuration["inbox_capacity"]
	if !ok {
		return 0
	}
	switch c := v.(type) {
	case int:
		return c
	case float64:
		return int(c)
	default:
		return 0
	}
}

// Config tunes engine-wide defaults not carried on the workflow definition
// itself.
type Config struct {
	DefaultInboxCapacity int
	DispatchIdlePoll     time.Duration
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultInboxCapacity: queue.DefaultCapacity,
		DispatchIdlePoll:     10 * time.Millisecond,
	}
}

// Engine runs one workflow definition to completion. A fresh Engine is
// created per Start call; Container and Subflow node bodies construct a
// nested Engine for their child graph.
type Engine struct {
	config Config
	def    *domain.WorkflowDefinition

	wctx   *domain.WorkflowExecutionContext
	router *router.Router
	dlq    *queue.DeadLetterQueue

	limiter   *concurrency.Limiter
	throttler *concurrency.Throttler
	breaker   *resilience.CircuitBreaker

	eventTopic    *events.Topic[events.Event]
	progressTopic *events.Topic[events.Progress]

	executor *NodeExecutor
	bodies   map[string]NodeBody

	mu            sync.Mutex
	instances     map[string]*domain.NodeInstance // latest instance per node id
	running       sync.WaitGroup
	inFlight      int
	joinSeen      map[string]map[string]bool // nodeID -> set of source ids that have delivered
	completedIDs  map[string]bool
	failedNodeIDs map[string]bool
}

// New constructs an Engine for def. bodies maps non-control-flow node ids
// to their implementation; a node with no entry falls back to NoOpBody.
func New(def *domain.WorkflowDefinition, bodies map[string]NodeBody, cfg Config) *Engine {
	dlq := queue.NewDeadLetterQueue()
	e := &Engine{
		config:        cfg,
		def:           def,
		router:        router.New(dlq),
		dlq:           dlq,
		limiter:       concurrency.NewLimiter(def.MaxConcurrency),
		throttler:     concurrency.NewThrottler(),
		breaker:       resilience.NewCircuitBreaker(),
		eventTopic:    events.NewTopic[events.Event](),
		progressTopic: events.NewTopic[events.Progress](),
		bodies:        bodies,
		instances:     make(map[string]*domain.NodeInstance),
		joinSeen:      make(map[string]map[string]bool),
		completedIDs:  make(map[string]bool),
		failedNodeIDs: make(map[string]bool),
	}
	e.executor = &NodeExecutor{
		Limiter:   e.limiter,
		Throttler: e.throttler,
		Breaker:   e.breaker,
		Events:    e.eventTopic,
		Bodies:    bodies,
	}
	return e
}

// DeadLetters exposes the engine's dead-letter queue.
func (e *Engine) DeadLetters() *queue.DeadLetterQueue { return e.dlq }

// Events exposes the workflow-lifecycle and per-node event stream.
func (e *Engine) Events() *events.Topic[events.Event] { return e.eventTopic }

// Progress exposes the progress-snapshot stream.
func (e *Engine) Progress() *events.Topic[events.Progress] { return e.progressTopic }

// Context returns the workflow execution context once Start has been
// called.
func (e *Engine) Context() *domain.WorkflowExecutionContext { return e.wctx }

// StartAsync constructs the workflow execution context, wires inboxes and
// routes, seeds entry nodes, and launches the dispatch loop in the
// background. It returns the context immediately; callers observe
// completion via the event stream or by polling wctx.Status().
func (e *Engine) StartAsync() (*domain.WorkflowExecutionContext, error) {
	if err := e.def.Validate(); err != nil {
		return nil, err
	}

	instanceID := uuid.NewString()
	wctx := domain.NewWorkflowExecutionContext(instanceID, e.def.ID, e.def.DefaultVariables)
	e.wctx = wctx
	e.wireWorkflow(wctx)
	e.watchTimeout(wctx)

	e.eventTopic.Publish(events.NewWorkflowEvent(events.WorkflowStarted, instanceID, ""))

	entries := e.def.EntryNodes()
	if len(entries) == 0 {
		return nil, fmt.Errorf("engine: workflow %s has no entry node", e.def.ID)
	}
	for _, id := range entries {
		wctx.Inboxes[id].TryEnqueue(domain.Message{
			Type:               domain.MessageNext,
			SourceNodeID:       "__start__",
			WorkflowInstanceID: instanceID,
			Timestamp:          time.Now(),
		})
	}

	go e.dispatchLoop()

	return wctx, nil
}

// ResumeAsync restores the workflow from a checkpoint and launches the
// dispatch loop, per §4.10's resume invariant: nodes with a Completed
// instance in state are never re-executed, nodes still Running at save
// time are re-queued with their captured input, and any message still
// buffered in a node's inbox at save time is replayed before dispatch
// resumes.
func (e *Engine) ResumeAsync(state domain.CheckpointState) (*domain.WorkflowExecutionContext, error) {
	if err := e.def.Validate(); err != nil {
		return nil, err
	}

	wctx := domain.NewWorkflowExecutionContext(state.InstanceID, e.def.ID, state.Variables)
	e.wctx = wctx
	e.wireWorkflow(wctx)
	e.watchTimeout(wctx)

	completed := state.CompletedNodeIDs()
	for nodeID, ni := range indexLatestByNode(state.NodeInstances) {
		inst := ni
		e.mu.Lock()
		e.instances[nodeID] = &inst
		e.mu.Unlock()
		switch {
		case completed[nodeID]:
			e.mu.Lock()
			e.completedIDs[nodeID] = true
			e.mu.Unlock()
		case ni.Status == domain.NodeFailed && !e.hasEnabledFailHandler(nodeID):
			e.mu.Lock()
			e.failedNodeIDs[nodeID] = true
			e.mu.Unlock()
		}
	}

	for _, ni := range state.RunningInstances() {
		inbox := wctx.Inboxes[ni.NodeID]
		if inbox == nil {
			continue
		}
		inbox.TryEnqueue(domain.Message{
			Type:               domain.MessageComplete,
			SourceNodeID:       "__resume__",
			WorkflowInstanceID: wctx.InstanceID,
			Timestamp:          time.Now(),
			OutputData:         ni.Input,
		})
	}

	for nodeID, pending := range state.PendingInbox {
		inbox := wctx.Inboxes[nodeID]
		if inbox == nil {
			continue
		}
		for _, m := range pending {
			inbox.TryEnqueue(m)
		}
	}

	e.eventTopic.Publish(events.NewWorkflowEvent(events.WorkflowStarted, wctx.InstanceID, "resumed"))

	go e.dispatchLoop()

	return wctx, nil
}

// indexLatestByNode picks, for each node id, the instance with the latest
// EndedAt among a checkpoint's NodeInstances. Checkpoints taken through
// Instances already hold one instance per node id; for a map that holds
// several instances of one node, only the latest-ended one is kept.
func indexLatestByNode(instances map[string]domain.NodeInstance) map[string]domain.NodeInstance {
	out := make(map[string]domain.NodeInstance)
	for _, ni := range instances {
		existing, ok := out[ni.NodeID]
		if !ok {
			out[ni.NodeID] = ni
			continue
		}
		if ni.EndedAt != nil && (existing.EndedAt == nil || ni.EndedAt.After(*existing.EndedAt)) {
			out[ni.NodeID] = ni
		}
	}
	return out
}

// wireWorkflow wires per-node inboxes, breaker/throttle policies, and the
// router's routing table; shared by a fresh start and a checkpoint resume.
func (e *Engine) wireWorkflow(wctx *domain.WorkflowExecutionContext) {
	for i := range e.def.Nodes {
		n := &e.def.Nodes[i]
		wctx.Inboxes[n.ID] = queue.NewInbox(utils.DefaultValue(inboxCapacityOverride(n), e.config.DefaultInboxCapacity))
		if n.CircuitBreakerPolicy != nil {
			e.breaker.Register(n.ID, *n.CircuitBreakerPolicy)
		}
		if n.MaxConcurrentExecutions > 0 {
			e.throttler.Register(n.ID, n.MaxConcurrentExecutions)
		}
	}
	e.router.LoadDefinition(e.def)
}

// watchTimeout starts the workflow-wide timeout goroutine, if configured.
func (e *Engine) watchTimeout(wctx *domain.WorkflowExecutionContext) {
	if e.def.TimeoutSeconds > 0 {
		go func() {
			timer := time.NewTimer(time.Duration(e.def.TimeoutSeconds * float64(time.Second)))
			defer timer.Stop()
			select {
			case <-timer.C:
				wctx.Cancel(domain.CancelReasonTimeout)
			case <-wctx.Context().Done():
			}
		}()
	}
}

// NewFromCheckpoint constructs an Engine for def and immediately resumes it
// from a previously saved CheckpointState.
func NewFromCheckpoint(def *domain.WorkflowDefinition, bodies map[string]NodeBody, cfg Config, state domain.CheckpointState) (*Engine, *domain.WorkflowExecutionContext, error) {
	e := New(def, bodies, cfg)
	wctx, err := e.ResumeAsync(state)
	if err != nil {
		return nil, nil, err
	}
	return e, wctx, nil
}

// Cancel trips the workflow's shared cancellation token.
func (e *Engine) Cancel(reason domain.CancelReason) {
	if e.wctx != nil {
		e.wctx.Cancel(reason)
	}
}

// dispatchLoop repeatedly scans for ready nodes, launches their executor,
// and routes the resulting message, until every inbox is empty and no
// executor is in flight.
func (e *Engine) dispatchLoop() {
	ctx := e.wctx.Context()
	ticker := time.NewTicker(e.config.DispatchIdlePoll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			e.finishCancelled()
			return
		}

		dispatched := e.dispatchReady(ctx)

		e.mu.Lock()
		idle := !dispatched && e.inFlight == 0 && e.allInboxesEmpty()
		e.mu.Unlock()

		if idle {
			e.finishSettled()
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}
}

func (e *Engine) allInboxesEmpty() bool {
	for _, inbox := range e.wctx.Inboxes {
		if inbox.Count() > 0 {
			return false
		}
	}
	return true
}

// dispatchReady finds every node with a satisfied join policy and launches
// its executor; it returns whether anything was dispatched this pass.
func (e *Engine) dispatchReady(ctx context.Context) bool {
	dispatched := false
	for i := range e.def.Nodes {
		def := &e.def.Nodes[i]
		inbox := e.wctx.Inboxes[def.ID]
		if inbox == nil || inbox.Count() == 0 {
			continue
		}

		msg, ready := e.tryConsumeForJoin(def, inbox)
		if !ready {
			continue
		}
		dispatched = true

		e.mu.Lock()
		e.inFlight++
		e.mu.Unlock()
		e.running.Add(1)

		go func(def *domain.NodeDefinition, msg domain.Message) {
			defer e.running.Done()
			defer func() {
				e.mu.Lock()
				e.inFlight--
				e.mu.Unlock()
			}()

			instanceID := uuid.NewString()
			started := time.Now()
			e.markRunning(def, instanceID, started, mergePayload(msg))

			var result domain.Message
			if def.Kind.IsControlFlow() {
				result = e.runControlFlow(ctx, def, msg)
			} else {
				result = e.executor.Run(ctx, e.wctx, def, msg)
			}
			e.recordInstance(def, instanceID, started, result)
			e.router.Route(ctx, e.wctx, result)
		}(def, msg)
	}
	return dispatched
}

// tryConsumeForJoin applies the node's join policy. Any consumes and
// returns the first message. All consumes one message per call and records
// its source id; it reports ready once every enabled upstream source has
// delivered at least one message, returning the message consumed last with
// its OutputData copied into Payload. Messages consumed earlier while
// waiting are dropped: their outputs are not merged into the result.
func (e *Engine) tryConsumeForJoin(def *domain.NodeDefinition, inbox domain.Inbox) (domain.Message, bool) {
	if def.EffectiveJoinPolicy() != domain.JoinAll {
		m, ok := inbox.Dequeue(e.wctx.Context())
		return m, ok
	}

	upstream := e.distinctEnabledSources(def.ID)
	if len(upstream) == 0 {
		m, ok := inbox.Dequeue(e.wctx.Context())
		return m, ok
	}

	e.mu.Lock()
	seen := e.joinSeen[def.ID]
	if seen == nil {
		seen = make(map[string]bool)
		e.joinSeen[def.ID] = seen
	}
	e.mu.Unlock()

	// Peek by draining up to len(upstream) messages, tracking distinct
	// sources seen; only a node's own inbox count as trivially satisfied
	// since inboxes are strict FIFO and we don't have a non-destructive
	// peek, so All-join nodes consume eagerly as sources accumulate,
	// completing once every source id has been seen.
	m, ok := inbox.Dequeue(e.wctx.Context())
	if !ok {
		return m, false
	}

	e.mu.Lock()
	seen[m.SourceNodeID] = true
	satisfied := len(seen) >= len(upstream)
	if satisfied {
		delete(e.joinSeen, def.ID)
	}
	e.mu.Unlock()

	merged := m
	if merged.Payload == nil {
		merged.Payload = map[string]any{}
	}
	if m.OutputData != nil {
		for k, v := range m.OutputData {
			merged.Payload[k] = v
		}
	}

	return merged, satisfied
}

// hasEnabledFailHandler reports whether nodeID has an enabled outgoing
// connection triggered by Fail, meaning a downstream node handles the
// failure locally instead of it propagating to the workflow's aggregate
// status (§7).
func (e *Engine) hasEnabledFailHandler(nodeID string) bool {
	for _, c := range e.def.ConnectionsFrom(nodeID) {
		if c.IsEnabled && c.Trigger == domain.MessageFail {
			return true
		}
	}
	return false
}

func (e *Engine) distinctEnabledSources(nodeID string) []string {
	var sources []string
	seen := map[string]bool{}
	for _, c := range e.def.ConnectionsTo(nodeID) {
		if c.IsEnabled && !seen[c.SourceID] {
			seen[c.SourceID] = true
			sources = append(sources, c.SourceID)
		}
	}
	return sources
}

// markRunning records a node instance as Running the moment its executor
// is dispatched, so a checkpoint taken mid-execution can capture the
// node's captured input and re-queue it on resume.
func (e *Engine) markRunning(def *domain.NodeDefinition, instanceID string, started time.Time, input map[string]any) {
	e.mu.Lock()
	e.instances[def.ID] = &domain.NodeInstance{
		InstanceID:         instanceID,
		NodeID:             def.ID,
		WorkflowInstanceID: e.wctx.InstanceID,
		Status:             domain.NodeRunning,
		StartedAt:          started,
		Input:              input,
	}
	e.mu.Unlock()
}

func (e *Engine) recordInstance(def *domain.NodeDefinition, instanceID string, started time.Time, result domain.Message) {
	status := domain.NodeCompleted
	switch result.Type {
	case domain.MessageFail:
		status = domain.NodeFailed
		if !e.hasEnabledFailHandler(def.ID) {
			e.mu.Lock()
			e.failedNodeIDs[def.ID] = true
			e.mu.Unlock()
		}
	case domain.MessageCustom:
		status = domain.NodeCancelled
	}

	now := time.Now()
	e.mu.Lock()
	var input map[string]any
	if prev, ok := e.instances[def.ID]; ok && prev.InstanceID == instanceID {
		input = prev.Input
	}
	e.instances[def.ID] = &domain.NodeInstance{
		InstanceID:         instanceID,
		NodeID:             def.ID,
		WorkflowInstanceID: e.wctx.InstanceID,
		Status:             status,
		StartedAt:          started,
		EndedAt:            &now,
		Input:              input,
		Output:             result.OutputData,
		ErrorMessage:       result.Error,
		ExceptionKind:      result.ExceptionKind,
	}
	if status == domain.NodeCompleted {
		e.completedIDs[def.ID] = true
	}
	e.mu.Unlock()

	e.publishProgress()
}

// Instances returns a snapshot of the latest recorded instance per node id,
// for checkpointing.
func (e *Engine) Instances() map[string]domain.NodeInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.NodeInstance, len(e.instances))
	for id, ni := range e.instances {
		out[id] = *ni
	}
	return out
}

// DrainInboxes removes and returns every message still buffered in each
// node's inbox, for checkpointing a running workflow. Draining is
// destructive: the caller is expected to either resume from the resulting
// CheckpointState or discard the engine.
func (e *Engine) DrainInboxes() map[string][]domain.Message {
	out := make(map[string][]domain.Message)
	for id, inbox := range e.wctx.Inboxes {
		if msgs := inbox.Drain(); len(msgs) > 0 {
			out[id] = msgs
		}
	}
	return out
}

func (e *Engine) publishProgress() {
	e.mu.Lock()
	completed := len(e.completedIDs)
	failed := len(e.failedNodeIDs)
	running := e.inFlight
	total := len(e.def.Nodes)
	e.mu.Unlock()

	pending := total - completed - failed - running
	if pending < 0 {
		pending = 0
	}
	percent := 0.0
	if total > 0 {
		percent = float64(completed+failed) / float64(total) * 100
	}

	e.progressTopic.Publish(events.Progress{
		WorkflowInstanceID: e.wctx.InstanceID,
		PercentComplete:    percent,
		NodesCompleted:     completed,
		NodesRunning:       running,
		NodesPending:       pending,
		NodesFailed:        failed,
		TotalNodes:         total,
		Timestamp:          time.Now(),
	})
}

func (e *Engine) finishSettled() {
	e.mu.Lock()
	anyFailed := len(e.failedNodeIDs) > 0
	e.mu.Unlock()

	status := domain.WorkflowCompleted
	kind := events.WorkflowCompleted
	if anyFailed {
		status = domain.WorkflowFailed
		kind = events.WorkflowFailed
	}
	e.wctx.SetStatus(status, "")
	e.eventTopic.Publish(events.NewWorkflowEvent(kind, e.wctx.InstanceID, ""))
	e.eventTopic.Complete()
	e.progressTopic.Complete()
	e.wctx.Dispose()
}

func (e *Engine) finishCancelled() {
	e.running.Wait()
	reason := e.wctx.Reason()
	e.wctx.SetStatus(domain.WorkflowCancelled, reason)
	e.eventTopic.Publish(events.NewWorkflowEvent(events.WorkflowCancelled, e.wctx.InstanceID, reason))
	e.eventTopic.Complete()
	e.progressTopic.Complete()
	e.wctx.Dispose()
	log.Info().Str("workflow_instance", e.wctx.InstanceID).Str("reason", reason).Msg("workflow cancelled")
}
