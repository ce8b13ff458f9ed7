package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smilemakc/mbflow/internal/concurrency"
	"github.com/smilemakc/mbflow/internal/domain"
	domainerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/events"
	"github.com/smilemakc/mbflow/internal/resilience"
)

// NodeExecutor invokes a node body, applying circuit-breaker gating,
// concurrency and throttle slot acquisition, and the retry loop, per
// §4.8's exact sequencing.
type NodeExecutor struct {
	Limiter   *concurrency.Limiter
	Throttler *concurrency.Throttler
	Breaker   *resilience.CircuitBreaker
	Events    *events.Topic[events.Event]

	// Bodies maps node id to its body. Populated by the engine at Start
	// time for every non-control-flow node.
	Bodies map[string]NodeBody
}

// Run executes one node invocation end to end and returns the terminal
// message to hand to the router. def is the node's definition (for
// priority, retry/breaker policy, fallback); msg is the triggering inbound
// message.
func (e *NodeExecutor) Run(ctx context.Context, wctx *domain.WorkflowExecutionContext, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	if !e.Breaker.AllowRequest(def.ID) {
		e.Events.Publish(events.Event{
			Kind:               events.NodeFailed,
			Timestamp:          time.Now(),
			WorkflowInstanceID: wctx.InstanceID,
			NodeID:             def.ID,
			ExceptionKind:      "CircuitOpen",
			ErrorMessage:       "circuit breaker open",
		})
		return domain.NewFailMessage(def.ID, wctx.InstanceID, "circuit breaker open", "CircuitOpen")
	}

	concurrencyRelease, err := e.Limiter.Acquire(ctx, def.Priority)
	if err != nil {
		return domain.NewFailMessage(def.ID, wctx.InstanceID, err.Error(), "ResourceError")
	}
	defer concurrencyRelease.Dispose()

	throttleRelease, err := e.Throttler.Acquire(ctx, def.ID)
	if err != nil {
		return domain.NewFailMessage(def.ID, wctx.InstanceID, err.Error(), "ResourceError")
	}
	if throttleRelease != nil {
		defer throttleRelease.Dispose()
	}

	policy := resilience.FromConfig(def.RetryPolicy)
	input := mergePayload(msg)

	var lastErr error
	for attempt := 0; ; attempt++ {
		nctx := domain.NewNodeExecutionContext(wctx.InstanceID, def.ID, input)
		instanceID := uuid.NewString()
		started := time.Now()

		e.Events.Publish(events.Event{
			Kind:               events.NodeStarted,
			Timestamp:          started,
			WorkflowInstanceID: wctx.InstanceID,
			NodeID:             def.ID,
			NodeInstanceID:     instanceID,
		})

		body := e.Bodies[def.ID]
		if body == nil {
			body = NoOpBody
		}
		result, runErr := body.Execute(ctx, wctx, nctx)

		if runErr != nil && errors.Is(runErr, context.Canceled) {
			return e.finishCancelled(wctx, def, instanceID, started)
		}

		if runErr == nil {
			e.Breaker.RecordSuccess(def.ID)
			output := nctx.Output
			if result != nil && result.Output != nil {
				output = result.Output
			}
			ended := time.Now()
			e.Events.Publish(events.Event{
				Kind:               events.NodeCompleted,
				Timestamp:          ended,
				WorkflowInstanceID: wctx.InstanceID,
				NodeID:             def.ID,
				NodeInstanceID:     instanceID,
				Duration:           ended.Sub(started),
				Output:             output,
			})
			return domain.NewCompleteMessage(def.ID, wctx.InstanceID, ended.Sub(started), output)
		}

		e.Breaker.RecordFailure(def.ID)
		lastErr = runErr
		exceptionKind := "NodeBodyError"
		if kind, ok := domainerrors.KindOf(runErr); ok {
			exceptionKind = string(kind)
		}

		if attempt < policy.MaxAttempts && policy.ShouldRetry(exceptionKind) {
			delay := policy.CalculateDelay(attempt)
			log.Debug().Str("node", def.ID).Int("attempt", attempt).Dur("delay", delay).Msg("retrying node")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				continue
			case <-ctx.Done():
				timer.Stop()
				return e.finishCancelled(wctx, def, instanceID, started)
			}
		}

		ended := time.Now()
		e.Events.Publish(events.Event{
			Kind:               events.NodeFailed,
			Timestamp:          ended,
			WorkflowInstanceID: wctx.InstanceID,
			NodeID:             def.ID,
			NodeInstanceID:     instanceID,
			Duration:           ended.Sub(started),
			ErrorMessage:       lastErr.Error(),
			ExceptionKind:      exceptionKind,
		})

		if def.FallbackNodeID != "" {
			return domain.Message{
				Type:               domain.MessageComplete,
				SourceNodeID:       def.FallbackNodeID,
				WorkflowInstanceID: wctx.InstanceID,
				Timestamp:          ended,
			}
		}
		return domain.NewFailMessage(def.ID, wctx.InstanceID, lastErr.Error(), exceptionKind)
	}
}

func (e *NodeExecutor) finishCancelled(wctx *domain.WorkflowExecutionContext, def *domain.NodeDefinition, instanceID string, started time.Time) domain.Message {
	e.Events.Publish(events.Event{
		Kind:               events.NodeCancelled,
		Timestamp:          time.Now(),
		WorkflowInstanceID: wctx.InstanceID,
		NodeID:             def.ID,
		NodeInstanceID:     instanceID,
		Reason:             string(domain.CancelReasonUser),
	})
	return domain.Message{
		Type:               domain.MessageCustom,
		SourceNodeID:        def.ID,
		WorkflowInstanceID:  wctx.InstanceID,
		Timestamp:           time.Now(),
		Error:               "cancelled",
	}
}

// mergePayload extracts the input map a node body should see from the
// triggering message: OutputData for Complete, Payload otherwise, falling
// back to a singleton item/index map for Next (loop iteration) messages.
func mergePayload(msg domain.Message) map[string]any {
	switch msg.Type {
	case domain.MessageComplete:
		if msg.OutputData != nil {
			return msg.OutputData
		}
	case domain.MessageNext:
		return map[string]any{"item": msg.ItemValue, "index": msg.ItemIndex}
	}
	if msg.Payload != nil {
		return msg.Payload
	}
	return map[string]any{}
}
