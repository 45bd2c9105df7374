// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
)

func noopRoutine(tag string) Routine {
	return func(ctx context.Context, p datatypes.Params) (any, error) {
		return tag, nil
	}
}

// TestRegistry_ListOrder verifies the listing follows registration
// order, not name order.
func TestRegistry_ListOrder(t *testing.T) {
	r := New()
	r.Register("zeta", "last alphabetically, first registered", noopRoutine("z"))
	r.Register("alpha", "first alphabetically, second registered", noopRoutine("a"))
	r.Register("mid", "third registered", noopRoutine("m"))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "zeta", list[0].Name)
	assert.Equal(t, "alpha", list[1].Name)
	assert.Equal(t, "mid", list[2].Name)
}

// TestRegistry_DuplicateKeepsPosition verifies re-registering a name
// replaces the routine without moving it in the listing.
func TestRegistry_DuplicateKeepsPosition(t *testing.T) {
	r := New()
	r.Register("first", "one", noopRoutine("old"))
	r.Register("second", "two", noopRoutine("s"))
	r.Register("first", "replaced", noopRoutine("new"))

	list := r.List()
	require.Len(t, list, 2, "duplicate registration must not grow the table")
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "replaced", list[0].Description)

	fn, ok := r.Get("first")
	require.True(t, ok)
	got, err := fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "new", got, "lookup should resolve the replacement routine")
}

// TestRegistry_GetUnknown verifies unknown names report absence
// instead of a nil routine.
func TestRegistry_GetUnknown(t *testing.T) {
	r := New()
	r.Register("known", "", noopRoutine("k"))

	fn, ok := r.Get("unknown")
	assert.False(t, ok)
	assert.Nil(t, fn)
	assert.Equal(t, 1, r.Len())
}
