// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/topology-runner/internal/engineconfig"
	"github.com/flowmesh/topology-runner/pkg/logging"
	"github.com/flowmesh/topology-runner/pkg/topology/events"
)

var (
	tracer = otel.Tracer("github.com/flowmesh/topology-runner/pkg/topology")
	meter  = otel.Meter("github.com/flowmesh/topology-runner/pkg/topology")

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topology_runs_total",
		Help: "Total number of topology runs, labeled by terminal status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "topology_run_duration_seconds",
		Help: "Wall-clock duration of a topology run from start to terminal.",
	})
)

// Options configures a new run. IncludeNodes/ExcludeNodes filter the DAG
// before the run starts (ExcludeNodes wins if both are set). Data, if
// HasData is true, becomes the single-element Input of every node with no
// dependencies. Context is passed unchanged to every node's action.
type Options struct {
	IncludeNodes []string
	ExcludeNodes []string
	Data         any
	HasData      bool
	Context      any

	// Logger and Config override the run's ambient logging/config. Either
	// may be left zero to use package defaults.
	Logger *logging.Logger
	Config engineconfig.Config
}

// ResumeOptions configures a resumed run. Context is the only per-run
// option; the DAG shape and node data come from the snapshot being resumed,
// not spec.
type ResumeOptions struct {
	Context any

	// Logger and Config override the run's ambient logging/config, as in
	// Options. Either may be left zero to use package defaults.
	Logger *logging.Logger
	Config engineconfig.Config
}

// Run is a single execution of a topology: its own DAG, snapshot, event
// bus, and cancellation source. Two runs are always independent; nothing is
// shared between them.
type Run struct {
	dag  *DAG
	spec Spec
	opts Options

	snapshot *Snapshot
	eventBus *events.Bus

	transitions chan transition
	inFlight    map[string]struct{}

	cancel       context.CancelFunc
	stopOnce     sync.Once
	hasSuspended bool
	noop         bool

	id                 string
	defaultNodeTimeout time.Duration
	logger             *logging.Logger

	tracer        trace.Tracer
	nodeLatency   metric.Float64Histogram
	nodeSuccesses metric.Int64Counter
	nodeFailures  metric.Int64Counter
	activeNodes   metric.Int64UpDownCounter
}

func newRun(dag *DAG, spec Spec, snapshot *Snapshot, logger *logging.Logger, cfg engineconfig.Config, opts Options) *Run {
	if logger == nil {
		logger = logging.Default()
	}
	id := uuid.NewString()
	r := &Run{
		dag:                dag,
		spec:               spec,
		opts:               opts,
		snapshot:           snapshot,
		eventBus:           events.New(cfg.EventBufferSize, logger),
		transitions:        make(chan transition, maxInt(1, len(dag.Nodes))),
		inFlight:           make(map[string]struct{}),
		id:                 id,
		defaultNodeTimeout: cfg.DefaultNodeTimeout,
		logger:             logger.With("run_id", id),
		tracer:             tracer,
	}
	r.initMetrics()
	return r
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (r *Run) initMetrics() {
	r.nodeLatency, _ = meter.Float64Histogram(
		"topology.node.duration",
		metric.WithDescription("Duration of a single node's action, in seconds."),
		metric.WithUnit("s"),
	)
	r.nodeSuccesses, _ = meter.Int64Counter(
		"topology.node.successes",
		metric.WithDescription("Count of nodes that completed successfully."),
	)
	r.nodeFailures, _ = meter.Int64Counter(
		"topology.node.failures",
		metric.WithDescription("Count of nodes that errored."),
	)
	r.activeNodes, _ = meter.Int64UpDownCounter(
		"topology.node.active",
		metric.WithDescription("Number of node actions currently executing."),
	)
}

// New builds the DAG from spec (applying opts' node filters), seeds a fresh
// pending snapshot, and returns a Run ready to Start.
func New(spec Spec, opts Options) (*Run, error) {
	dag, err := Build(spec, FilterOptions{IncludeNodes: opts.IncludeNodes, ExcludeNodes: opts.ExcludeNodes})
	if err != nil {
		return nil, err
	}

	cfg := resolveConfig(opts.Config)
	now := time.Now()
	snapshot := &Snapshot{
		Status:  RunRunning,
		Started: now,
		Data:    make(map[string]*NodeData, len(dag.Nodes)),
	}
	for name, node := range dag.Nodes {
		snapshot.Data[name] = &NodeData{Type: node.Type, Deps: append([]string(nil), node.Deps...), Status: Pending}
	}

	return newRun(dag, spec, snapshot, opts.Logger, cfg, opts), nil
}

func resolveConfig(override engineconfig.Config) engineconfig.Config {
	cfg, err := engineconfig.Default()
	if err != nil {
		cfg = engineconfig.Config{DefaultNodeTimeout: 30 * time.Second, EventBufferSize: 256}
	}
	if override.DefaultNodeTimeout > 0 {
		cfg.DefaultNodeTimeout = override.DefaultNodeTimeout
	}
	if override.EventBufferSize > 0 {
		cfg.EventBufferSize = override.EventBufferSize
	}
	return cfg
}

// Events returns the run's event bus, supporting the data/error/done
// channels.
func (r *Run) Events() *events.Bus { return r.eventBus }

// Snapshot returns the live snapshot reference. It is valid before, during,
// and after the run terminates; callers must treat it as read-only.
func (r *Run) Snapshot() *Snapshot { return r.snapshot }

// Stop requests cancellation. It is idempotent and returns immediately; the
// run's loop observes cancellation on its own schedule (no new dispatches,
// in-flight actions run to completion or failure).
func (r *Run) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}

func (r *Run) mutate(fn func()) {
	r.snapshot.lock()
	fn()
	r.snapshot.unlock()
}

func (r *Run) emitData() {
	r.eventBus.Emit(events.Data, r.snapshot)
}

// Start runs the scheduler loop to a terminal state: dispatch every ready
// node, await any in-flight action to settle, repeat. It blocks until the
// run is complete, errored, or suspended. Callers that want non-blocking
// execution invoke Start in their own goroutine.
func (r *Run) Start(ctx context.Context) error {
	if r.noop {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "topology.run")
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()

	start := time.Now()
	r.logger.Info("run starting", "run_id", r.id, "nodes", len(r.dag.Nodes))
	r.emitData()

	for {
		aborted := runCtx.Err() != nil

		var ready []string
		if !aborted {
			r.mutate(func() {
				ready = readyToRun(r.dag, r.snapshot.Data)
			})
		}

		if len(ready) == 0 && len(r.inFlight) == 0 {
			err := r.finalize(start)
			runDuration.Observe(time.Since(start).Seconds())
			return err
		}

		branched := false
		for _, name := range ready {
			r.dispatch(runCtx, name)
			if r.dag.Nodes[name].Type == Branching {
				branched = true
			}
		}
		if branched {
			continue
		}
		if len(r.inFlight) == 0 {
			continue
		}

		r.consume(<-r.transitions)
	}
}

// dispatch transitions a ready node to Running, materializes its Input
// (once, caching the result), and either runs a Branching selector inline
// or starts a goroutine for a Work/Suspension node.
func (r *Run) dispatch(ctx context.Context, name string) {
	now := time.Now()

	var input []any
	var state any
	r.mutate(func() {
		nd := r.snapshot.Data[name]
		if nd.Input == nil {
			nd.Input = materializeInput(r.dag, r.snapshot.Data, name, r.opts.HasData, r.opts.Data)
		}
		input = nd.Input
		state = nd.State
		nd.Status = Running
		nd.Started = &now
	})
	r.emitData()

	switch d := r.spec[name].(type) {
	case BranchDef:
		r.dispatchBranch(ctx, name, input, d)
	default:
		r.dispatchAsync(ctx, name, input, state)
	}
}

func (r *Run) consume(t transition) {
	switch t.kind {
	case transProgress:
		r.mutate(func() {
			r.snapshot.Data[t.node].State = t.state
		})
		r.emitData()
	case transCompleted:
		r.handleNodeCompleted(t.node, t.output)
		delete(r.inFlight, t.node)
	case transErrored:
		r.handleNodeErrored(t.node, t.err)
		delete(r.inFlight, t.node)
	}
}

// finalize computes the run's terminal status, sweeps any nodes left
// pending, and publishes error/done exactly once.
func (r *Run) finalize(start time.Time) error {
	var erroredNodes []string
	var pendingNodes []string
	hasSuspended := r.hasSuspended
	var terminal RunStatus

	r.mutate(func() {
		for name, nd := range r.snapshot.Data {
			switch nd.Status {
			case Errored:
				erroredNodes = append(erroredNodes, name)
			case Suspended:
				hasSuspended = true
			case Pending:
				pendingNodes = append(pendingNodes, name)
			}
		}

		switch {
		case len(erroredNodes) > 0:
			terminal = RunErrored
		case hasSuspended:
			terminal = RunSuspended
		default:
			terminal = RunCompleted
		}

		for _, name := range pendingNodes {
			nd := r.snapshot.Data[name]
			switch terminal {
			case RunSuspended:
				nd.Status = Suspended
			case RunCompleted:
				nd.Status = Skipped
			}
		}

		now := time.Now()
		r.snapshot.Status = terminal
		r.snapshot.Finished = &now
	})

	sort.Strings(erroredNodes)
	r.logger.Info("run finished", "run_id", r.id, "status", terminal, "duration", time.Since(start))
	runsTotal.WithLabelValues(string(terminal)).Inc()

	if terminal == RunErrored {
		r.emitData()
		r.eventBus.Emit(events.Error, r.snapshot)
		return &ErroredNodesError{Nodes: erroredNodes}
	}
	r.emitData()
	r.eventBus.Emit(events.Done, r.snapshot)
	return nil
}
