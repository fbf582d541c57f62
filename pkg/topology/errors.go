// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors identify the error kinds named by the runner's error
// handling design. Wrap types below chain to these via Unwrap so callers
// can use errors.Is for the kind and errors.As for the detail.
var (
	ErrMissingSpecNodes = errors.New("topology: dag references nodes missing from the spec")
	ErrMissingSnapshot  = errors.New("topology: resume requires a snapshot")
	ErrBranchNotFound   = errors.New("topology: branch target is not a declared dependent")
	ErrNodeActionFailed = errors.New("topology: node action failed")
	ErrErroredNodes     = errors.New("topology: one or more nodes errored")
	ErrCancelled        = errors.New("topology: run was cancelled")
	ErrCycleDetected    = errors.New("topology: cycle detected in dag")
	ErrAlreadyRunning   = errors.New("topology: run already started")
)

// MissingSpecNodesError lists DAG nodes absent from the spec, raised
// synchronously by Build/New.
type MissingSpecNodesError struct{ Nodes []string }

func (e *MissingSpecNodesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingSpecNodes, strings.Join(e.Nodes, ", "))
}
func (e *MissingSpecNodesError) Unwrap() error { return ErrMissingSpecNodes }

// MissingSnapshotError is returned by Resume when called with a nil
// snapshot.
type MissingSnapshotError struct{}

func (e *MissingSnapshotError) Error() string  { return ErrMissingSnapshot.Error() }
func (e *MissingSnapshotError) Unwrap() error  { return ErrMissingSnapshot }

// CycleError names a cycle found while building the DAG.
type CycleError struct{ Path []string }

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}
func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// BranchNotFoundError records a branching node selecting a name that is not
// one of its own declared dependents.
type BranchNotFoundError struct {
	Node   string
	Target string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("%s: node %q selected %q, which is not its dependent", ErrBranchNotFound, e.Node, e.Target)
}
func (e *BranchNotFoundError) Unwrap() error { return ErrBranchNotFound }

// ErroredNodesError is the failure Start() returns when the run finalizes
// with one or more nodes in the Errored state.
type ErroredNodesError struct{ Nodes []string }

func (e *ErroredNodesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrErroredNodes, strings.Join(e.Nodes, ", "))
}
func (e *ErroredNodesError) Unwrap() error { return ErrErroredNodes }

// NodeActionError wraps an error returned by a Work or Suspension node's
// action — a user callback failure or a cancellation observed inside the
// action. A branching node's bad selection is recorded as a
// BranchNotFoundError directly, not through this type. Unwrap exposes the
// underlying cause so errors.Is(err, ErrCancelled) works through it.
type NodeActionError struct {
	Node string
	Err  error
}

func (e *NodeActionError) Error() string {
	return fmt.Sprintf("%s: node %q: %v", ErrNodeActionFailed, e.Node, e.Err)
}
func (e *NodeActionError) Unwrap() error { return e.Err }
