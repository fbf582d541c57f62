// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events is a small multi-listener publisher used by a topology run
// to notify subscribers of snapshot mutations. It is narrowed from a richer
// emitter pattern down to the three channels a run actually needs: Data on
// every mutation, Error once on terminal failure, Done once on terminal
// success or suspension.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/flowmesh/topology-runner/pkg/logging"
)

// Kind identifies one of the three event channels.
type Kind string

const (
	Data  Kind = "data"
	Error Kind = "error"
	Done  Kind = "done"
)

// Event is delivered to subscribers. Payload carries the live snapshot
// reference for Data/Error/Done events; subscribers must treat it as
// read-only.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler receives events matching a subscription.
type Handler func(Event)

type subscription struct {
	id      string
	kind    Kind
	handler Handler
}

// Bus is a run-scoped event publisher. Every Run owns exactly one Bus; two
// runs never share one, matching the no-global-state design.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]subscription
	buffer        []Event
	bufferSize    int
	logger        *logging.Logger
}

// New creates a Bus with the given ring-buffer capacity for replay via
// Buffer. A non-positive size disables buffering. logger may be nil, in
// which case a recovered handler panic is simply dropped.
func New(bufferSize int, logger *logging.Logger) *Bus {
	return &Bus{
		subscriptions: make(map[string]subscription),
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

// Subscribe registers handler for events of kind, returning a subscription
// ID usable with Unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subscriptions[id] = subscription{id: id, kind: kind, handler: handler}
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler. It is a no-op if id
// is unknown.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subscriptions, id)
	b.mu.Unlock()
}

// Emit delivers an event of kind synchronously to every matching subscriber,
// in the caller's goroutine, and appends it to the replay buffer. A panic in
// one handler is recovered so it cannot take down the scheduler loop or
// block delivery to the remaining subscribers.
func (b *Bus) Emit(kind Kind, payload any) {
	evt := Event{Kind: kind, Payload: payload}

	b.mu.Lock()
	if b.bufferSize > 0 {
		b.buffer = append(b.buffer, evt)
		if len(b.buffer) > b.bufferSize {
			b.buffer = b.buffer[len(b.buffer)-b.bufferSize:]
		}
	}
	handlers := make([]Handler, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.kind == kind {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.safeInvoke(h, evt)
	}
}

func (b *Bus) safeInvoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event handler panicked", "kind", evt.Kind, "recovered", r)
		}
	}()
	h(evt)
}

// Buffer returns a copy of every buffered event, oldest first.
func (b *Bus) Buffer() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.buffer))
	copy(out, b.buffer)
	return out
}
