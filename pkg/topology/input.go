// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

// materializeInput computes the lazily-cached Input sequence for node name,
// walking its declared deps in order:
//   - a Work dep contributes its single Output value;
//   - a Branching/Suspension dep contributes the elements of its own
//     already-materialized Input, spread rather than nested, so data flows
//     through control-flow nodes that produce no output of their own.
//
// A dep is always Completed by the time this runs (readiness requires it),
// so dep.Input is already set. For a root node (no deps), the run's initial
// data — if supplied — becomes the single element of Input.
func materializeInput(dag *DAG, data map[string]*NodeData, name string, hasData bool, initialData any) []any {
	node := dag.Nodes[name]
	if len(node.Deps) == 0 {
		if hasData {
			return []any{initialData}
		}
		return []any{}
	}

	input := make([]any, 0, len(node.Deps))
	for _, dep := range node.Deps {
		depData := data[dep]
		depNode := dag.Nodes[dep]
		if depNode.Type == Work {
			input = append(input, depData.Output)
		} else {
			input = append(input, depData.Input...)
		}
	}
	return input
}
