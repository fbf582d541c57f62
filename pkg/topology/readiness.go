// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import "sort"

// readyToRun returns every node name whose own status is pending (or
// absent, treated as pending) and whose every dependency is completed.
// Dependencies sitting at suspended, skipped, errored, or running never
// unblock a node; §4.3's propagation rules give those nodes' dependents
// their own terminal status instead of leaving them waiting forever.
func readyToRun(dag *DAG, data map[string]*NodeData) []string {
	var ready []string
	for name, node := range dag.Nodes {
		nd := data[name]
		if nd != nil && nd.Status != Pending {
			continue
		}
		allDepsDone := true
		for _, dep := range node.Deps {
			dd := data[dep]
			if dd == nil || dd.Status != Completed {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	return ready
}
