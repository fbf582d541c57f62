// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topology

import "time"

// NewWorkNode builds a Work NodeDef running action, depending on deps.
func NewWorkNode(deps []string, action WorkAction) WorkDef {
	return WorkDef{Deps: deps, Action: action}
}

// WithTimeout returns a copy of d with its per-node timeout set, overriding
// the engine default applied when Timeout is zero.
func (d WorkDef) WithTimeout(timeout time.Duration) WorkDef {
	d.Timeout = timeout
	return d
}

// NewBranchNode builds a Branching NodeDef running selector, depending on
// deps.
func NewBranchNode(deps []string, selector BranchFunc) BranchDef {
	return BranchDef{Deps: deps, Select: selector}
}

// NewSuspendNode builds a Suspension NodeDef. action may be nil, in which
// case the node completes immediately and suspends its dependents.
func NewSuspendNode(deps []string, action SuspendAction) SuspendDef {
	return SuspendDef{Deps: deps, Action: action}
}

// WithTimeout returns a copy of d with its per-node timeout set.
func (d SuspendDef) WithTimeout(timeout time.Duration) SuspendDef {
	d.Timeout = timeout
	return d
}
