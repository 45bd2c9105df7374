// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry holds the table of invokable experiments.
//
// The registry preserves registration order, which is the order the
// list command reports. Clients and notebook material index into that
// list by position, so ordering is part of the wire contract.
package registry

import (
	"context"
	"sync"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
)

// Routine is one runnable experiment. The context carries the
// cancellation token for the execution; implementations check it
// between sweep steps. The returned value is marshalled to JSON as
// the response payload.
type Routine func(ctx context.Context, p datatypes.Params) (any, error)

type entry struct {
	description string
	fn          Routine
}

// Registry is an insertion-ordered experiment table, safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds fn under name. Registering an existing name replaces
// the routine and description in place without changing its position
// in the listing.
func (r *Registry) Register(name, description string, fn Routine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = entry{description: description, fn: fn}
}

// Get resolves name to its routine. The second return reports whether
// the name is registered.
func (r *Registry) Get(name string) (Routine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// List returns descriptors for every experiment in registration order.
func (r *Registry) List() []datatypes.FunctionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]datatypes.FunctionInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, datatypes.FunctionInfo{
			Name:        name,
			Description: r.entries[name].description,
		})
	}
	return out
}

// Len reports the number of registered experiments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
