// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// transitionKind classifies a message sent on a Run's single transitions
// channel. Every in-flight goroutine for the run shares this channel, so
// all mutation of the snapshot — terminal and non-terminal alike — is
// serialized through one consumer loop (the scheduler), satisfying the
// single-mutator invariant without a per-field lock on the hot path.
type transitionKind int

const (
	transProgress transitionKind = iota
	transCompleted
	transErrored
)

type transition struct {
	node   string
	kind   transitionKind
	state  any
	output any
	err    error
}

// detailedError lets a user-supplied action error attach extra structured
// fields that NodeError.Extra preserves across a JSON round-trip.
type detailedError interface {
	Details() map[string]any
}

func buildNodeError(err error) *NodeError {
	ne := &NodeError{
		Message: err.Error(),
		Stack:   fmt.Sprintf("%s\n%s", err.Error(), debug.Stack()),
	}
	var de detailedError
	if errors.As(err, &de) {
		ne.Extra = de.Details()
	}
	return ne
}

// dispatchAsync starts the goroutine for a Work or Suspension node. The
// caller (the scheduler loop) has already set the node to Running and
// materialized its Input under the snapshot lock.
func (r *Run) dispatchAsync(ctx context.Context, name string, input []any, state any) {
	r.inFlight[name] = struct{}{}
	def := r.spec[name]
	switch d := def.(type) {
	case WorkDef:
		go r.runWork(ctx, name, d, input, state)
	case SuspendDef:
		go r.runSuspend(ctx, name, d, input, state)
	default:
		panic(fmt.Sprintf("topology: node %q is not dispatchable asynchronously", name))
	}
}

func (r *Run) nodeTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return r.defaultNodeTimeout
}

func (r *Run) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "topology.node",
		trace.WithAttributes(
			attribute.String("dag.node", name),
			attribute.StringSlice("dag.dependencies", r.dag.Nodes[name].Deps),
			attribute.String("dag.node_type", string(r.dag.Nodes[name].Type)),
		),
	)
}

func (r *Run) runWork(ctx context.Context, name string, def WorkDef, input []any, state any) {
	ctx, span := r.startSpan(ctx, name)
	defer span.End()

	r.activeNodes.Add(ctx, 1)
	defer r.activeNodes.Add(ctx, -1)
	r.logger.Debug("node starting", "node", name, "type", Work)

	actionCtx := ctx
	if timeout := r.nodeTimeout(def.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	in := ActionInput{
		Data:    input,
		State:   state,
		Node:    name,
		Context: r.opts.Context,
		UpdateState: func(s any) {
			r.transitions <- transition{node: name, kind: transProgress, state: s}
		},
	}

	start := time.Now()
	output, err := def.Action(actionCtx, in)
	r.recordLatency(ctx, name, time.Since(start))

	if err != nil {
		r.finishFailedSpan(span, err)
		r.nodeFailures.Add(ctx, 1)
		r.logger.Warn("node errored", "node", name, "error", err)
		r.transitions <- transition{node: name, kind: transErrored, err: wrapActionErr(name, actionCtx, err)}
		return
	}
	r.nodeSuccesses.Add(ctx, 1)
	r.logger.Info("node completed", "node", name)
	r.transitions <- transition{node: name, kind: transCompleted, output: output}
}

func (r *Run) runSuspend(ctx context.Context, name string, def SuspendDef, input []any, state any) {
	ctx, span := r.startSpan(ctx, name)
	defer span.End()

	r.activeNodes.Add(ctx, 1)
	defer r.activeNodes.Add(ctx, -1)
	r.logger.Debug("node starting", "node", name, "type", Suspension)

	if def.Action == nil {
		r.nodeSuccesses.Add(ctx, 1)
		r.logger.Info("node completed", "node", name)
		r.transitions <- transition{node: name, kind: transCompleted}
		return
	}

	actionCtx := ctx
	if timeout := r.nodeTimeout(def.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	in := ActionInput{
		Data:    input,
		State:   state,
		Node:    name,
		Context: r.opts.Context,
		UpdateState: func(s any) {
			r.transitions <- transition{node: name, kind: transProgress, state: s}
		},
	}

	start := time.Now()
	err := def.Action(actionCtx, in)
	r.recordLatency(ctx, name, time.Since(start))

	if err != nil {
		r.finishFailedSpan(span, err)
		r.nodeFailures.Add(ctx, 1)
		r.logger.Warn("node errored", "node", name, "error", err)
		r.transitions <- transition{node: name, kind: transErrored, err: wrapActionErr(name, actionCtx, err)}
		return
	}
	r.nodeSuccesses.Add(ctx, 1)
	r.logger.Info("node completed", "node", name)
	r.transitions <- transition{node: name, kind: transCompleted}
}

// dispatchBranch resolves a Branching node synchronously, on the scheduler's
// own goroutine: its selector is required to be synchronous, so there is no
// in-flight task to register.
func (r *Run) dispatchBranch(ctx context.Context, name string, input []any, def BranchDef) {
	ctx, span := r.startSpan(ctx, name)
	defer span.End()
	r.logger.Debug("node starting", "node", name, "type", Branching)

	in := ActionInput{Data: input, Node: name, Context: r.opts.Context}
	result := def.Select(in)

	dependents := r.dag.Dependents(name)
	if result.None {
		r.completeBranch(name, NoneSelected, result.Reason, dependents, "")
		r.logger.Info("node completed", "node", name, "selected", NoneSelected)
		return
	}

	found := false
	for _, d := range dependents {
		if d == result.Selected {
			found = true
			break
		}
	}
	if !found {
		err := &BranchNotFoundError{Node: name, Target: result.Selected}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.nodeFailures.Add(ctx, 1)
		r.logger.Warn("node errored", "node", name, "error", err)
		r.handleNodeErrored(name, err)
		return
	}
	r.completeBranch(name, result.Selected, result.Reason, dependents, result.Selected)
	r.logger.Info("node completed", "node", name, "selected", result.Selected)
}

// completeBranch marks name Completed with the given selection and marks
// every dependent other than keep Skipped (every dependent, if keep is
// empty, meaning "none" was selected).
func (r *Run) completeBranch(name, selected, reason string, dependents []string, keep string) {
	now := time.Now()
	r.mutate(func() {
		nd := r.snapshot.Data[name]
		nd.Status = Completed
		nd.Finished = &now
		nd.Selected = selected
		nd.Reason = reason
	})
	r.emitData()

	for _, dep := range dependents {
		if dep == keep {
			continue
		}
		skippedAt := time.Now()
		r.mutate(func() {
			depData := r.snapshot.Data[dep]
			depData.Status = Skipped
			depData.Finished = &skippedAt
		})
		r.emitData()
	}
}

func wrapActionErr(node string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &NodeActionError{Node: node, Err: fmt.Errorf("%w: %v", ErrCancelled, err)}
	}
	return &NodeActionError{Node: node, Err: err}
}

func (r *Run) finishFailedSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (r *Run) recordLatency(ctx context.Context, name string, d time.Duration) {
	r.nodeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("dag.node", name)))
}

func (r *Run) handleNodeCompleted(name string, output any) {
	now := time.Now()
	nodeType := r.dag.Nodes[name].Type
	r.mutate(func() {
		nd := r.snapshot.Data[name]
		nd.Status = Completed
		nd.Finished = &now
		if nodeType == Work {
			nd.Output = output
		}
	})
	r.emitData()

	if nodeType == Suspension {
		r.suspendDependents(name)
	}
}

func (r *Run) suspendDependents(name string) {
	for _, dep := range r.dag.Dependents(name) {
		now := time.Now()
		r.mutate(func() {
			depData := r.snapshot.Data[dep]
			depData.Status = Suspended
			depData.Finished = &now
		})
		r.emitData()
	}
	r.hasSuspended = true
}

func (r *Run) handleNodeErrored(name string, err error) {
	now := time.Now()
	r.mutate(func() {
		nd := r.snapshot.Data[name]
		nd.Status = Errored
		nd.Finished = &now
		nd.Error = buildNodeError(err)
	})
	r.emitData()
}
