// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !linux

package pmu

// Sampler is a no-op outside Linux; perf events are a Linux kernel
// interface.
type Sampler struct{}

// NewSampler returns an unavailable sampler.
func NewSampler() *Sampler { return &Sampler{} }

// Available always reports false.
func (s *Sampler) Available() bool { return false }

// Start is a no-op.
func (s *Sampler) Start() {}

// Stop returns zero metrics.
func (s *Sampler) Stop() Metrics { return Metrics{} }

// Close is a no-op.
func (s *Sampler) Close() {}
