package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smilemakc/mbflow/internal/condition"
	"github.com/smilemakc/mbflow/internal/domain"
)

// cronParser accepts a 5-field cron expression, a 6-field one with a
// leading seconds field, and descriptors such as "@every <duration>",
// matching the forms a Timer node's "schedule" configuration may use.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// exprEval is the shared richer-form evaluator used by every control-flow
// node kind; it is stateless apart from its compiled-program cache, so one
// instance is safe to share across an Engine's nodes.
var exprEval = condition.NewExprEvaluator()

// runControlFlow dispatches a control-flow node to its built-in body. The
// returned message is fed to the router exactly like a user NodeBody's
// result, with SourcePort set where the kind defines named ports.
func (e *Engine) runControlFlow(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	switch def.Kind {
	case domain.KindIfElse:
		return e.runIfElse(def, msg)
	case domain.KindForEach:
		return e.runForEach(ctx, def, msg)
	case domain.KindWhile:
		return e.runWhile(ctx, def, msg)
	case domain.KindSwitch:
		return e.runSwitch(def, msg)
	case domain.KindSubflow:
		return e.runSubflow(ctx, def, msg)
	case domain.KindTimer:
		return e.runTimer(ctx, def, msg)
	case domain.KindContainer:
		return e.runContainer(ctx, def, msg)
	default:
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, fmt.Sprintf("unknown control-flow kind %s", def.Kind), "ValidationError")
	}
}

func evalVars(wctx *domain.WorkflowExecutionContext, msg domain.Message) map[string]any {
	return condition.Vars{Output: mergePayload(msg), Variables: wctx.Variables.Snapshot()}.ToMap()
}

func (e *Engine) runIfElse(def *domain.NodeDefinition, msg domain.Message) domain.Message {
	exprStr, _ := def.Configuration["condition"].(string)
	ok, err := exprEval.Evaluate(exprStr, evalVars(e.wctx, msg))
	if err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "RoutingError")
	}
	port := domain.PortFalseBranch
	if ok {
		port = domain.PortTrueBranch
	}
	out := domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, mergePayload(msg))
	out.SourcePort = port
	return out
}

func (e *Engine) runForEach(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	exprStr, _ := def.Configuration["collection"].(string)
	items, err := exprEval.EvaluateEnumerable(exprStr, evalVars(e.wctx, msg))
	if err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "RoutingError")
	}

	for i, item := range items {
		next := domain.NewNextMessage(def.ID, e.wctx.InstanceID, item, i)
		next.SourcePort = domain.PortLoopBody
		e.router.Route(ctx, e.wctx, next)
	}

	out := domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, mergePayload(msg))
	out.SourcePort = domain.PortDefault
	return out
}

// maxIterationsDefault is the While loop's guard against runaway
// iteration when a node's configuration does not override it.
const maxIterationsDefault = 1000

func (e *Engine) runWhile(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	exprStr, _ := def.Configuration["condition"].(string)
	maxIterations := maxIterationsDefault
	if v, ok := def.Configuration["max_iterations"].(int); ok && v > 0 {
		maxIterations = v
	}

	iterations := 0
	for {
		ok, err := exprEval.Evaluate(exprStr, evalVars(e.wctx, msg))
		if err != nil {
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "RoutingError")
		}
		if !ok {
			out := domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, mergePayload(msg))
			out.SourcePort = domain.PortDefault
			return out
		}

		iterations++
		if iterations > maxIterations {
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "while loop exceeded max iterations", "InfiniteLoop")
		}

		next := domain.NewNextMessage(def.ID, e.wctx.InstanceID, nil, iterations-1)
		next.SourcePort = domain.PortLoopBody
		e.router.Route(ctx, e.wctx, next)

		// Wait for the loop body's feedback Complete message on this
		// node's own inbox before re-evaluating the condition.
		inbox := e.wctx.Inboxes[def.ID]
		feedback, ok := inbox.Dequeue(e.wctx.Context())
		if !ok {
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "while loop cancelled", "Cancelled")
		}
		msg = feedback
	}
}

func (e *Engine) runSwitch(def *domain.NodeDefinition, msg domain.Message) domain.Message {
	exprStr, _ := def.Configuration["expression"].(string)
	vars := evalVars(e.wctx, msg)

	cases, _ := def.Configuration["cases"].([]domain.SwitchCase)
	port := domain.PortDefault

	value := fmt.Sprintf("%v", vars["output"])
	if exprStr != "" {
		result, err := exprEval.EvaluateValue(exprStr, vars)
		if err != nil {
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "RoutingError")
		}
		value = fmt.Sprintf("%v", result)
	}
	for _, c := range cases {
		if c.CaseValue == value {
			port = c.Port
			break
		}
	}

	out := domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, mergePayload(msg))
	out.SourcePort = port
	return out
}

// runSubflow starts a nested Engine for the node's declared child
// definition, seeding the child's default variables with the inbound
// message's payload, waits for it to reach a terminal status, and emits the
// child's final variables as this node's Complete output. The parent's
// workflow variables are neither passed to the child nor updated from it.
func (e *Engine) runSubflow(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	childDef, ok := def.Configuration["workflow"].(*domain.WorkflowDefinition)
	if !ok || childDef == nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "subflow node missing child workflow definition", "ValidationError")
	}

	childVars := make(map[string]any)
	for k, v := range childDef.DefaultVariables {
		childVars[k] = v
	}
	for k, v := range mergePayload(msg) {
		childVars[k] = v
	}
	clone := *childDef
	clone.DefaultVariables = childVars

	child := New(&clone, e.bodies, e.config)
	childCtx, err := child.StartAsync()
	if err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "NodeBodyError")
	}

	for {
		select {
		case <-ctx.Done():
			child.Cancel(domain.CancelReasonUser)
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "subflow cancelled", "Cancelled")
		case <-time.After(5 * time.Millisecond):
			if childCtx.Status().IsTerminal() {
				output := childCtx.Variables.Snapshot()
				if childCtx.Status() == domain.WorkflowCompleted {
					out := domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, output)
					return out
				}
				return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "subflow failed", "NodeBodyError")
			}
		}
	}
}

// timerWait resolves how long a Timer node should wait before firing. A
// "schedule" string takes a restricted cron spec ("@every 1h30m" or a
// 5/6-field cron expression per cronParser's fields) and resolves to the
// delay until its next occurrence after now; it takes precedence over the
// simpler "delay_seconds" field. TriggerOnStart short-circuits both.
func timerWait(def *domain.NodeDefinition, now time.Time) (time.Duration, error) {
	if triggerOnStart, _ := def.Configuration["trigger_on_start"].(bool); triggerOnStart {
		return 0, nil
	}
	if spec, _ := def.Configuration["schedule"].(string); spec != "" {
		schedule, err := cronParser.Parse(spec)
		if err != nil {
			return 0, fmt.Errorf("invalid timer schedule %q: %w", spec, err)
		}
		next := schedule.Next(now)
		return next.Sub(now), nil
	}
	delay, _ := def.Configuration["delay_seconds"].(float64)
	return time.Duration(delay * float64(time.Second)), nil
}

// runTimer fires either immediately (TriggerOnStart), after a configured
// delay, or at the next occurrence of a cron-like schedule, then emits
// Complete with a Triggered flag.
func (e *Engine) runTimer(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	wait, err := timerWait(def, time.Now())
	if err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "ValidationError")
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "timer cancelled", "Cancelled")
		}
	}
	payload := mergePayload(msg)
	payload["Triggered"] = true
	return domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, payload)
}

// runContainer delegates to a nested engine over the node's own subgraph,
// seeded with the inbound message's payload as its variables. On success
// the container's output is the nested workflow's final variable map; the
// individual outputs of its child nodes are not collected into it.
func (e *Engine) runContainer(ctx context.Context, def *domain.NodeDefinition, msg domain.Message) domain.Message {
	childDef := &domain.WorkflowDefinition{
		ID:               def.ID,
		Name:             def.Name,
		Nodes:            def.Nodes,
		Connections:      def.Connections,
		DefaultVariables: mergePayload(msg),
	}
	if err := childDef.Validate(); err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "ValidationError")
	}

	child := New(childDef, e.bodies, e.config)
	childCtx, err := child.StartAsync()
	if err != nil {
		return domain.NewFailMessage(def.ID, e.wctx.InstanceID, err.Error(), "NodeBodyError")
	}

	for {
		select {
		case <-ctx.Done():
			child.Cancel(domain.CancelReasonUser)
			return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "container cancelled", "Cancelled")
		case <-time.After(5 * time.Millisecond):
			if childCtx.Status().IsTerminal() {
				if childCtx.Status() == domain.WorkflowCompleted {
					return domain.NewCompleteMessage(def.ID, e.wctx.InstanceID, 0, childCtx.Variables.Snapshot())
				}
				return domain.NewFailMessage(def.ID, e.wctx.InstanceID, "container child failed", "NodeBodyError")
			}
		}
	}
}
