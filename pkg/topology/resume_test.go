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
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestResumeMissingSnapshot(t *testing.T) {
	_, err := Resume(Spec{}, nil, ResumeOptions{})
	var missing *MissingSnapshotError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSnapshotError, got %v", err)
	}
}

func TestResumeOfCompletedSnapshotIsNoop(t *testing.T) {
	spec := Spec{"a": simpleWork(nil)}
	run, err := New(spec, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := run.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := snapshotDeepCopy(run.Snapshot())

	resumed, err := Resume(spec, run.Snapshot(), ResumeOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := resumed.Start(context.Background()); err != nil {
		t.Fatalf("no-op Start should not fail: %v", err)
	}
	after := resumed.Snapshot()
	if !reflect.DeepEqual(before.Data, after.Data) || before.Status != after.Status {
		t.Fatalf("expected snapshot unchanged by a no-op resume")
	}
}

// S3 — Resume S2 with a fixed attachments node.
func TestScenarioS3ResumeFixesErroredNode(t *testing.T) {
	spec := diamondSpec()
	run, err := New(spec, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = run.Start(context.Background()) // expected to error, per S2

	fixedSpec := Spec{
		"api":     spec["api"],
		"details": spec["details"],
		"attachments": NewWorkNode([]string{"api"}, func(ctx context.Context, in ActionInput) (any, error) {
			state, _ := in.State.(map[string]any)
			idx := 0
			if state != nil {
				idx, _ = state["index"].(int)
			}
			out := map[string]string{}
			if prev, ok := state["output"].(map[string]string); ok {
				for k, v := range prev {
					out[k] = v
				}
			}
			for i := idx + 1; i <= 3; i++ {
				out[strconv.Itoa(i)] = "file" + strconv.Itoa(i) + ".jpg"
			}
			return out, nil
		}),
		"writeToDB": spec["writeToDB"],
	}

	resumed, err := Resume(fixedSpec, run.Snapshot(), ResumeOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := resumed.Start(context.Background()); err != nil {
		t.Fatalf("Start after resume: %v", err)
	}

	snap := resumed.Snapshot()
	if snap.Data["attachments"].Status != Completed {
		t.Fatalf("attachments = %v", snap.Data["attachments"].Status)
	}
	want := map[string]string{"1": "file1.jpg", "2": "file2.jpg", "3": "file3.jpg"}
	if !reflect.DeepEqual(snap.Data["attachments"].Output, want) {
		t.Fatalf("attachments.output = %v, want %v", snap.Data["attachments"].Output, want)
	}
	if snap.Data["writeToDB"].Status != Completed {
		t.Fatalf("writeToDB = %v", snap.Data["writeToDB"].Status)
	}
	if snap.Status != RunCompleted {
		t.Fatalf("status = %v, want completed", snap.Status)
	}
}

// S5 second half — resuming a suspended run completes it.
func TestScenarioS5ResumeCompletesSuspendedRun(t *testing.T) {
	spec := suspensionSpec()
	run, err := New(spec, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := run.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resumed, err := Resume(spec, run.Snapshot(), ResumeOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := resumed.Start(context.Background()); err != nil {
		t.Fatalf("Start after resume: %v", err)
	}
	snap := resumed.Snapshot()
	if snap.Data["email"].Status != Completed {
		t.Fatalf("email = %v, want completed", snap.Data["email"].Status)
	}
	if snap.Status != RunCompleted {
		t.Fatalf("status = %v, want completed", snap.Status)
	}
}

func TestGetResumeSnapshotIsIdempotent(t *testing.T) {
	finished := time.Now()
	src := &Snapshot{
		Status:  RunErrored,
		Started: finished,
		Data: map[string]*NodeData{
			"a": {Status: Completed, Output: "x"},
			"b": {Status: Skipped},
			"c": {Status: Errored, Finished: &finished},
		},
	}
	once := GetResumeSnapshot(src)
	twice := GetResumeSnapshot(once)

	if !reflect.DeepEqual(once.Data, twice.Data) {
		t.Fatalf("expected resetUncompleted to be idempotent:\n%#v\nvs\n%#v", once.Data, twice.Data)
	}
}

func TestResumeMissingCallbackFails(t *testing.T) {
	// A spec whose only node errors leaves the terminal status Errored
	// (not Completed), so Resume must actually rebuild the DAG from the
	// snapshot rather than taking the completed-snapshot no-op path.
	spec := Spec{"a": NewWorkNode(nil, func(ctx context.Context, in ActionInput) (any, error) {
		return nil, errors.New("boom")
	})}
	run, err := New(spec, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = run.Start(context.Background())

	_, err = Resume(Spec{}, run.Snapshot(), ResumeOptions{})
	var missing *MissingSpecNodesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSpecNodesError, got %v", err)
	}
}

func snapshotDeepCopy(s *Snapshot) *Snapshot {
	return s.clone()
}
