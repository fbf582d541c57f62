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
	"testing"
)

func noopWork(ctx context.Context, in ActionInput) (any, error) {
	return nil, nil
}

// simpleWork is a small helper so tests don't have to repeat the
// WorkAction signature for nodes whose action never runs.
func simpleWork(deps []string) WorkDef {
	return NewWorkNode(deps, noopWork)
}

func TestExtractDAGProjectsTypeAndDeps(t *testing.T) {
	spec := Spec{
		"a": simpleWork(nil),
		"b": simpleWork([]string{"a"}),
	}
	dag := ExtractDAG(spec)
	if len(dag.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(dag.Nodes))
	}
	if dag.Nodes["b"].Deps[0] != "a" {
		t.Fatalf("expected b to depend on a, got %v", dag.Nodes["b"].Deps)
	}
	if dag.Nodes["a"].Type != Work {
		t.Fatalf("expected work type, got %v", dag.Nodes["a"].Type)
	}
}

func TestFilterExcludeWinsOverInclude(t *testing.T) {
	spec := Spec{
		"a": simpleWork(nil),
		"b": simpleWork([]string{"a"}),
		"c": simpleWork([]string{"a", "b"}),
	}
	dag := ExtractDAG(spec)
	filtered := Filter(dag, FilterOptions{IncludeNodes: []string{"a", "b"}, ExcludeNodes: []string{"b"}})

	if _, ok := filtered.Nodes["b"]; ok {
		t.Fatalf("expected b excluded")
	}
	if _, ok := filtered.Nodes["a"]; !ok {
		t.Fatalf("expected a to survive (not excluded, and include is ignored when exclude is set)")
	}
	if _, ok := filtered.Nodes["c"]; !ok {
		t.Fatalf("expected c to survive: only exclude applies, so include's omission of c is ignored")
	}
}

func TestFilterIncludeRewritesDeps(t *testing.T) {
	spec := Spec{
		"a": simpleWork(nil),
		"b": simpleWork([]string{"a"}),
		"c": simpleWork([]string{"a", "b"}),
	}
	dag := ExtractDAG(spec)
	filtered := Filter(dag, FilterOptions{IncludeNodes: []string{"a", "c"}})

	if len(filtered.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(filtered.Nodes))
	}
	c := filtered.Nodes["c"]
	if len(c.Deps) != 1 || c.Deps[0] != "a" {
		t.Fatalf("expected c's deps rewritten to just [a], got %v", c.Deps)
	}
}

func TestValidateSpecCoverageCatchesMissingNode(t *testing.T) {
	dag := &DAG{Nodes: map[string]DAGNode{"ghost": {}}}
	err := ValidateSpecCoverage(Spec{}, dag)
	var missing *MissingSpecNodesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSpecNodesError, got %v", err)
	}
	if len(missing.Nodes) != 1 || missing.Nodes[0] != "ghost" {
		t.Fatalf("expected [ghost], got %v", missing.Nodes)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	spec := Spec{
		"a": simpleWork([]string{"b"}),
		"b": simpleWork([]string{"a"}),
	}
	_, err := Build(spec, FilterOptions{})
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestBuildPrecomputesDependents(t *testing.T) {
	spec := Spec{
		"a": simpleWork(nil),
		"b": simpleWork([]string{"a"}),
		"c": simpleWork([]string{"a"}),
	}
	dag, err := Build(spec, FilterOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deps := dag.Dependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Fatalf("expected sorted [b c], got %v", deps)
	}
}

func TestBuildZeroNodeDAG(t *testing.T) {
	dag, err := Build(Spec{}, FilterOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dag.Nodes) != 0 {
		t.Fatalf("expected empty dag, got %d nodes", len(dag.Nodes))
	}
}
