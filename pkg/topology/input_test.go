// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"reflect"
	"testing"
)

func TestMaterializeInputRootWithData(t *testing.T) {
	dag := &DAG{Nodes: map[string]DAGNode{"a": {}}}
	data := map[string]*NodeData{"a": {}}
	got := materializeInput(dag, data, "a", true, "payload")
	if !reflect.DeepEqual(got, []any{"payload"}) {
		t.Fatalf("expected [payload], got %v", got)
	}
}

func TestMaterializeInputRootWithoutData(t *testing.T) {
	dag := &DAG{Nodes: map[string]DAGNode{"a": {}}}
	data := map[string]*NodeData{"a": {}}
	got := materializeInput(dag, data, "a", false, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty sequence, got %v", got)
	}
}

func TestMaterializeInputWorkDepAppendsOutput(t *testing.T) {
	dag := &DAG{Nodes: map[string]DAGNode{
		"a": {Type: Work},
		"b": {Deps: []string{"a"}, Type: Work},
	}}
	data := map[string]*NodeData{
		"a": {Type: Work, Output: []int{1, 2, 3}},
		"b": {Type: Work},
	}
	got := materializeInput(dag, data, "b", false, nil)
	want := []any{[]int{1, 2, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMaterializeInputControlFlowDepSpreadsItsInput(t *testing.T) {
	dag := &DAG{Nodes: map[string]DAGNode{
		"branch": {Type: Branching},
		"b":      {Deps: []string{"branch"}, Type: Work},
	}}
	data := map[string]*NodeData{
		"branch": {Type: Branching, Input: []any{"x", "y"}},
		"b":      {Type: Work},
	}
	got := materializeInput(dag, data, "b", false, nil)
	want := []any{"x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected spread input %v, got %v", want, got)
	}
}
