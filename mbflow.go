// Package mbflow is the public facade over the workflow execution engine:
// definitions, node bodies, the engine itself, persistence, and the
// document loader, re-exported from their internal packages so callers
// depend on a single stable import path.
package mbflow

import (
	"context"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
	domainerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/loader"
	"github.com/smilemakc/mbflow/internal/nodebody"
	"github.com/smilemakc/mbflow/internal/persistence"
)

// Data model re-exports.
type (
	WorkflowDefinition         = domain.WorkflowDefinition
	NodeDefinition             = domain.NodeDefinition
	NodeConnection             = domain.NodeConnection
	SwitchCase                 = domain.SwitchCase
	RetryPolicyConfig          = domain.RetryPolicyConfig
	CircuitBreakerPolicyConfig = domain.CircuitBreakerPolicyConfig
	WorkflowExecutionContext   = domain.WorkflowExecutionContext
	NodeExecutionContext       = domain.NodeExecutionContext
	NodeInstance               = domain.NodeInstance
	Message                    = domain.Message
	CheckpointState            = domain.CheckpointState
)

// Enum re-exports.
const (
	KindNoop      = domain.KindNoop
	KindTask      = domain.KindTask
	KindScript    = domain.KindScript
	KindIfElse    = domain.KindIfElse
	KindForEach   = domain.KindForEach
	KindWhile     = domain.KindWhile
	KindSwitch    = domain.KindSwitch
	KindSubflow   = domain.KindSubflow
	KindTimer     = domain.KindTimer
	KindContainer = domain.KindContainer

	PriorityHigh   = domain.PriorityHigh
	PriorityNormal = domain.PriorityNormal
	PriorityLow    = domain.PriorityLow

	JoinAny = domain.JoinAny
	JoinAll = domain.JoinAll
)

// NodeBody is the single operation a node implementation provides.
type NodeBody = engine.NodeBody

// NodeBodyFunc adapts a function to NodeBody.
type NodeBodyFunc = engine.NodeBodyFunc

// Built-in node bodies.
var (
	NewHTTPRequestBody   = nodebody.NewHTTPRequestBody
	NewLLMCompletionBody = nodebody.NewLLMCompletionBody
)

// Engine is the workflow execution engine for one definition.
type Engine = engine.Engine

// EngineConfig tunes engine-wide defaults.
type EngineConfig = engine.Config

// DefaultEngineConfig returns sensible engine defaults.
func DefaultEngineConfig() EngineConfig { return engine.DefaultConfig() }

// NewEngine constructs an Engine for def with the given node bodies.
func NewEngine(def *WorkflowDefinition, bodies map[string]NodeBody, cfg EngineConfig) *Engine {
	return engine.New(def, bodies, cfg)
}

// StartAsync constructs the workflow context, seeds entry nodes, and
// launches the dispatch loop in the background.
func StartAsync(e *Engine) (*WorkflowExecutionContext, error) {
	return e.StartAsync()
}

// Cancel trips the workflow's shared cancellation token.
func Cancel(e *Engine, reason domain.CancelReason) {
	e.Cancel(reason)
}

// Persistence re-exports.
type (
	Store          = persistence.Store
	CheckpointMeta = persistence.CheckpointMeta
	Codec          = persistence.Codec
)

var (
	NewMemoryStore   = persistence.NewMemoryStore
	NewFileStore     = persistence.NewFileStore
	NewPostgresStore = persistence.NewPostgresStore
	JSONCodec        = persistence.JSONCodec{}
	MsgpackCodec     = persistence.MsgpackCodec{}
)

// Loader re-exports.
var (
	LoadJSON = loader.LoadJSON
	SaveJSON = loader.SaveJSON
	LoadYAML = loader.LoadYAML
	SaveYAML = loader.SaveYAML
)

// Document is the external workflow definition document shape.
type Document = loader.Document

// Errors re-exports.
type EngineError = domainerrors.EngineError

var (
	ErrKindValidation  = domainerrors.KindValidation
	ErrKindNodeBody    = domainerrors.KindNodeBody
	ErrKindRouting     = domainerrors.KindRouting
	ErrKindResource    = domainerrors.KindResource
	ErrKindCircuitOpen = domainerrors.KindCircuitOpen
	ErrKindCheckpoint  = domainerrors.KindCheckpoint
	ErrKindTimeout     = domainerrors.KindTimeout
)

// Checkpoint saves a running workflow's full state: its variable map,
// remaining inbox contents, and node-instance records. The inbox contents
// are drained out of e (Engine.DrainInboxes), so e no longer holds them
// once Checkpoint returns.
func Checkpoint(ctx context.Context, store Store, checkpointID string, e *Engine) error {
	wctx := e.Context()
	state := CheckpointState{
		CheckpointID:  checkpointID,
		InstanceID:    wctx.InstanceID,
		WorkflowID:    wctx.DefinitionID,
		SavedAt:       time.Now(),
		Status:        wctx.Status(),
		Variables:     wctx.Variables.Snapshot(),
		NodeInstances: e.Instances(),
		PendingInbox:  e.DrainInboxes(),
	}
	return store.Save(ctx, checkpointID, state)
}

// Resume constructs a fresh Engine for def and resumes it from state: nodes
// already Completed are skipped, nodes that were Running when the
// checkpoint was taken are re-queued with their captured input, and
// messages still buffered in PendingInbox are replayed before the dispatch
// loop continues.
func Resume(def *WorkflowDefinition, bodies map[string]NodeBody, cfg EngineConfig, state CheckpointState) (*Engine, *WorkflowExecutionContext, error) {
	return engine.NewFromCheckpoint(def, bodies, cfg, state)
}
