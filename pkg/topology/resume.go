// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"time"

	"github.com/flowmesh/topology-runner/pkg/logging"
	"github.com/flowmesh/topology-runner/pkg/topology/events"
)

// GetResumeSnapshot produces a new runnable snapshot from a finalized one:
// completed and skipped nodes are kept as-is (including Output/Selected/
// Reason); every other node is reset to Pending, preserving Input, State,
// Deps, and Type but dropping Output, Error, Started, and Finished.
//
// Applying GetResumeSnapshot twice in a row is idempotent: the second
// application sees only Pending/Completed/Skipped nodes and leaves them
// exactly as the first application left them.
func GetResumeSnapshot(old *Snapshot) *Snapshot {
	old.RLock()
	defer old.RUnlock()

	now := time.Now()
	out := &Snapshot{
		Status:  RunRunning,
		Started: now,
		Data:    make(map[string]*NodeData, len(old.Data)),
	}
	for name, nd := range old.Data {
		switch nd.Status {
		case Completed, Skipped:
			cp := *nd
			out.Data[name] = &cp
		default:
			out.Data[name] = &NodeData{
				Type:   nd.Type,
				Deps:   append([]string(nil), nd.Deps...),
				Status: Pending,
				Input:  nd.Input,
				State:  nd.State,
			}
		}
	}
	return out
}

// Resume converts a previously emitted snapshot into a new Run. If snap is
// nil, it fails with MissingSnapshotError. If snap is already terminally
// Completed, the returned Run's Start is a no-op that resolves immediately
// (resuming a completed run has nothing left to do). Otherwise the DAG is
// rebuilt from the reset snapshot's own node shapes — the spec's structure
// is not consulted, so a resumed run tolerates a spec whose dependency
// graph has since changed, as long as every node name the snapshot
// mentions still has a callback in spec.
func Resume(spec Spec, snap *Snapshot, opts ResumeOptions) (*Run, error) {
	if snap == nil {
		return nil, &MissingSnapshotError{}
	}

	snap.RLock()
	status := snap.Status
	snap.RUnlock()

	if status == RunCompleted {
		logger := opts.Logger
		if logger == nil {
			logger = logging.Default()
		}
		r := &Run{noop: true, snapshot: snap, eventBus: events.New(0, logger)}
		return r, nil
	}

	reset := GetResumeSnapshot(snap)

	missing := missingCallbacks(spec, reset.Data)
	if len(missing) > 0 {
		return nil, &MissingSpecNodesError{Nodes: missing}
	}

	dag := buildFromNodeData(reset.Data)
	cfg := resolveConfig(opts.Config)

	runOpts := Options{Context: opts.Context, Logger: opts.Logger, Config: opts.Config}
	return newRun(dag, spec, reset, opts.Logger, cfg, runOpts), nil
}

func missingCallbacks(spec Spec, data map[string]*NodeData) []string {
	var missing []string
	for name := range data {
		if _, ok := spec[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
