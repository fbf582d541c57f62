// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import "sort"

// FilterOptions narrows a DAG to a subset of nodes before a run starts.
// Exactly one of IncludeNodes/ExcludeNodes is honored: if both are set,
// ExcludeNodes wins.
type FilterOptions struct {
	IncludeNodes []string
	ExcludeNodes []string
}

// ExtractDAG projects every Spec entry to its runtime-relevant shape,
// discarding the action/selector payload.
func ExtractDAG(spec Spec) *DAG {
	nodes := make(map[string]DAGNode, len(spec))
	for name, def := range spec {
		nodes[name] = DAGNode{Deps: append([]string(nil), def.deps()...), Type: def.nodeType()}
	}
	return &DAG{Nodes: nodes}
}

// Filter applies include/exclude node lists to dag, rewriting every
// surviving node's Deps to drop references to nodes that were removed.
// Filtering is lenient: it does not check that the resulting sub-DAG is
// semantically meaningful, only that its dependency references are
// well-formed.
func Filter(dag *DAG, opts FilterOptions) *DAG {
	switch {
	case len(opts.ExcludeNodes) > 0:
		excluded := toSet(opts.ExcludeNodes)
		return filterKeep(dag, func(name string) bool { return !excluded[name] })
	case len(opts.IncludeNodes) > 0:
		included := toSet(opts.IncludeNodes)
		return filterKeep(dag, func(name string) bool { return included[name] })
	default:
		return filterKeep(dag, func(string) bool { return true })
	}
}

func filterKeep(dag *DAG, keep func(string) bool) *DAG {
	out := &DAG{Name: dag.Name, Nodes: make(map[string]DAGNode, len(dag.Nodes))}
	for name, node := range dag.Nodes {
		if !keep(name) {
			continue
		}
		deps := make([]string, 0, len(node.Deps))
		for _, d := range node.Deps {
			if keep(d) {
				deps = append(deps, d)
			}
		}
		out.Nodes[name] = DAGNode{Deps: deps, Type: node.Type}
	}
	return out
}

func toSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// ValidateSpecCoverage fails with MissingSpecNodesError listing any DAG node
// absent from spec.
func ValidateSpecCoverage(spec Spec, dag *DAG) error {
	var missing []string
	for name := range dag.Nodes {
		if _, ok := spec[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSpecNodesError{Nodes: missing}
}

// Build derives the runnable DAG from spec: extract, filter, validate spec
// coverage, reject cycles, and precompute the dependents index. This is the
// only place a structurally impossible topology (one containing a cycle) is
// rejected; the caller's Spec is otherwise trusted as-is.
func Build(spec Spec, opts FilterOptions) (*DAG, error) {
	dag := Filter(ExtractDAG(spec), opts)
	if err := ValidateSpecCoverage(spec, dag); err != nil {
		return nil, err
	}
	if err := detectCycles(dag); err != nil {
		return nil, err
	}
	dag.dependents = computeDependents(dag)
	return dag, nil
}

// buildFromNodeData rebuilds a DAG from a snapshot's own NodeData entries
// (name, Deps, Type) rather than from a Spec — used by Resume, where the
// snapshot is authoritative for topology shape. It skips the spec-coverage
// and cycle checks: the snapshot was produced by a prior successful Build,
// so it is already known acyclic and internally consistent.
func buildFromNodeData(data map[string]*NodeData) *DAG {
	nodes := make(map[string]DAGNode, len(data))
	for name, nd := range data {
		nodes[name] = DAGNode{Deps: append([]string(nil), nd.Deps...), Type: nd.Type}
	}
	dag := &DAG{Nodes: nodes}
	dag.dependents = computeDependents(dag)
	return dag
}

func computeDependents(dag *DAG) map[string][]string {
	out := make(map[string][]string)
	for name, node := range dag.Nodes {
		for _, dep := range node.Deps {
			out[dep] = append(out[dep], name)
		}
	}
	for _, deps := range out {
		sort.Strings(deps)
	}
	return out
}

// detectCycles runs a DFS with a recursion stack over dag, returning a
// CycleError naming the offending path as soon as a back-edge is found.
func detectCycles(dag *DAG) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(dag.Nodes))

	// Iterate names in sorted order so the reported cycle is deterministic.
	names := make([]string, 0, len(dag.Nodes))
	for name := range dag.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		state[name] = visiting
		path = append(path, name)
		for _, dep := range dag.Nodes[name].Deps {
			switch state[dep] {
			case visiting:
				cycleStart := 0
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				return &CycleError{Path: append(append([]string(nil), path[cycleStart:]...), dep)}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, name := range names {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
