// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// NodeType classifies a DAG node by the action variant it runs.
type NodeType string

const (
	// Work nodes run an action and produce an output.
	Work NodeType = "work"
	// Branching nodes run a synchronous selector that activates at most
	// one dependent subgraph.
	Branching NodeType = "branching"
	// Suspension nodes run an optional side-effecting action and then
	// suspend their direct dependents until an external resume.
	Suspension NodeType = "suspension"
)

// NodeStatus is a node's position in its type-specific state machine.
type NodeStatus string

const (
	Pending   NodeStatus = "pending"
	Running   NodeStatus = "running"
	Completed NodeStatus = "completed"
	Errored   NodeStatus = "errored"
	Suspended NodeStatus = "suspended"
	Skipped   NodeStatus = "skipped"
)

// RunStatus is the terminal (or in-progress) status of an entire run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunErrored   RunStatus = "errored"
	RunSuspended RunStatus = "suspended"
)

// NoneSelected is the sentinel stored in NodeData.Selected when a branching
// node's selector declines to activate any dependent.
const NoneSelected = "__none__"

// ActionInput is passed to every node action. Data holds the node's
// materialized input sequence (see materializeInput); State holds the last value
// passed to UpdateState, present on resume; Context is the caller-supplied
// value from Options.Context/ResumeOptions.Context, threaded through
// unchanged. UpdateState is only safe to call while the node is Running.
type ActionInput struct {
	Data        []any
	State       any
	Node        string
	Context     any
	UpdateState func(any)
}

// WorkAction is the callback a Work node runs. Its return value becomes the
// node's Output. A returned error fails the node.
type WorkAction func(ctx context.Context, in ActionInput) (any, error)

// SuspendAction is the optional callback a Suspension node runs before
// suspending its dependents. It has no useful return value.
type SuspendAction func(ctx context.Context, in ActionInput) error

// BranchResult is returned by a BranchFunc. Use None to decline activating
// any dependent, or set Selected to the name of the one dependent to run.
type BranchResult struct {
	None     bool
	Selected string
	Reason   string
}

// BranchFunc is the synchronous selector a Branching node runs.
type BranchFunc func(in ActionInput) BranchResult

// NodeDef is a sealed sum type: every Spec entry is exactly one of WorkDef,
// BranchDef, or SuspendDef. The unexported marker method keeps the set of
// implementations closed to this package, so the runner's three-case switch
// is exhaustive by construction.
type NodeDef interface {
	nodeDef()
	deps() []string
	nodeType() NodeType
}

// WorkDef is the Work-node NodeDef: a plain action callback.
type WorkDef struct {
	Deps    []string
	Action  WorkAction
	Timeout time.Duration // zero means "use the engine default"
}

func (WorkDef) nodeDef()             {}
func (d WorkDef) deps() []string     { return d.Deps }
func (WorkDef) nodeType() NodeType   { return Work }

// BranchDef is the Branching-node NodeDef: a synchronous selector.
type BranchDef struct {
	Deps   []string
	Select BranchFunc
}

func (BranchDef) nodeDef()           {}
func (d BranchDef) deps() []string   { return d.Deps }
func (BranchDef) nodeType() NodeType { return Branching }

// SuspendDef is the Suspension-node NodeDef. Action may be nil, in which
// case the node completes immediately and suspends its dependents without
// running anything.
type SuspendDef struct {
	Deps    []string
	Action  SuspendAction
	Timeout time.Duration
}

func (SuspendDef) nodeDef()           {}
func (d SuspendDef) deps() []string   { return d.Deps }
func (SuspendDef) nodeType() NodeType { return Suspension }

// Spec is the caller-supplied, immutable-per-run description of a topology:
// a mapping from node name to its definition.
type Spec map[string]NodeDef

// DAGNode is the runtime-relevant projection of a NodeDef: its dependency
// list and type, with the action/selector stripped out.
type DAGNode struct {
	Deps []string
	Type NodeType
}

// DAG is the derived, filtered graph a run actually executes against.
type DAG struct {
	Name  string
	Nodes map[string]DAGNode

	// dependents maps a node name to every node whose Deps include it,
	// precomputed so branching/suspension fan-out doesn't rescan the
	// graph on every transition.
	dependents map[string][]string
}

// Dependents returns the direct dependents of node, or nil if it has none.
func (d *DAG) Dependents(node string) []string {
	return d.dependents[node]
}

// NodeError is the structured record stored on a NodeData whose Status is
// Errored. Extra preserves any additional attached fields across a JSON
// round-trip instead of silently dropping them.
type NodeError struct {
	Message string
	Stack   string
	Extra   map[string]any
}

// MarshalJSON flattens Extra's keys alongside message/stack so that a
// serialized NodeError round-trips through systems that don't know about
// this package's shape.
func (e NodeError) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Extra)+2)
	for k, v := range e.Extra {
		flat[k] = v
	}
	flat["message"] = e.Message
	flat["stack"] = e.Stack
	return json.Marshal(flat)
}

// UnmarshalJSON reads message/stack and keeps every other key in Extra.
func (e *NodeError) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if m, ok := flat["message"].(string); ok {
		e.Message = m
		delete(flat, "message")
	}
	if s, ok := flat["stack"].(string); ok {
		e.Stack = s
		delete(flat, "stack")
	}
	if len(flat) > 0 {
		e.Extra = flat
	}
	return nil
}

// NodeData is the observable state of a single node within a Snapshot.
type NodeData struct {
	Type     NodeType    `json:"type"`
	Deps     []string    `json:"deps"`
	// Status is the node's current state. A branching node marks only its
	// direct dependents Skipped; their own dependents stay Pending until
	// finalize sweeps them, so a mid-run read can observe them as Pending.
	Status   NodeStatus  `json:"status"`
	Started  *time.Time  `json:"started,omitempty"`
	Finished *time.Time  `json:"finished,omitempty"`
	Input    []any       `json:"input,omitempty"`
	Output   any         `json:"output,omitempty"`
	State    any         `json:"state,omitempty"`
	Error    *NodeError  `json:"error,omitempty"`
	Selected string      `json:"selected,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Snapshot is the complete observable state of a run. The live pointer is
// the one handed to event subscribers and returned by Run.Snapshot — it is
// mutated in place by the scheduler, never replaced, so subscribers must
// treat it as read-only and deep-copy before persisting asynchronously.
//
// mu guards every field below against the race between the scheduler
// goroutine (the sole writer) and concurrent readers; callers that read
// fields directly rather than through MarshalJSON should wrap the read in
// RLock/RUnlock.
type Snapshot struct {
	mu sync.RWMutex

	Status   RunStatus            `json:"status"`
	Started  time.Time            `json:"started"`
	Finished *time.Time           `json:"finished,omitempty"`
	Data     map[string]*NodeData `json:"data"`
}

// RLock acquires the snapshot's read lock for callers that read fields
// directly while a run may still be mutating it concurrently.
func (s *Snapshot) RLock() { s.mu.RLock() }

// RUnlock releases the read lock acquired by RLock.
func (s *Snapshot) RUnlock() { s.mu.RUnlock() }

func (s *Snapshot) lock()   { s.mu.Lock() }
func (s *Snapshot) unlock() { s.mu.Unlock() }

// MarshalJSON takes the read lock so a snapshot can be serialized safely
// while a run is in flight.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type alias Snapshot
	return json.Marshal((*alias)(s))
}

// clone returns a copy of the snapshot with its own Data map and its own
// NodeData structs; slices and values held inside each NodeData (Deps,
// Input, Output, State, Error) are shared with the original.
func (s *Snapshot) clone() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Snapshot{
		Status:  s.Status,
		Started: s.Started,
		Data:    make(map[string]*NodeData, len(s.Data)),
	}
	if s.Finished != nil {
		f := *s.Finished
		out.Finished = &f
	}
	for name, nd := range s.Data {
		cp := *nd
		out.Data[name] = &cp
	}
	return out
}
