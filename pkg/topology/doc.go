// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package topology implements a DAG execution engine: a scheduler that runs
// a user-defined graph of nodes to completion, tracks every node's progress
// in a live snapshot, and supports resuming a run from a previously emitted
// snapshot.
//
// A topology is described by a Spec, a map from node name to NodeDef. Each
// NodeDef is one of three kinds — Work, Branching, or Suspension — built with
// NewWorkNode, NewBranchNode, or NewSuspendNode. Building and running a
// topology looks like:
//
//	spec := topology.Spec{
//	    "fetch": topology.NewWorkNode(nil, fetchUser),
//	    "greet": topology.NewWorkNode([]string{"fetch"}, greetUser),
//	}
//	run, err := topology.New(spec, topology.Options{})
//	if err != nil {
//	    ...
//	}
//	if err := run.Start(context.Background()); err != nil {
//	    // one or more nodes errored; run.Snapshot() holds the detail
//	}
//
// A running topology is cancelled cooperatively: Stop() signals the
// context passed to every in-flight action, but does not forcibly abort
// them. A finished run's Snapshot() is byte-identical before and after
// Stop if nothing was in flight.
package topology
