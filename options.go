// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dict

import "go.uber.org/zap"

// option provide an interface to do work on a Table or Dict while it is being
// created.
type option interface {
	apply(o *options)
}

type options struct {
	logger          *zap.Logger
	allocator       Allocator
	missing         MissingFunc
	initialCapacity int
}

func makeOptions(opts []option) options {
	o := options{
		logger:    zap.NewNop(),
		allocator: defaultAllocator{},
	}
	for _, op := range opts {
		op.apply(&o)
	}
	return o
}

type loggerOption struct {
	logger *zap.Logger
}

func (op loggerOption) apply(o *options) {
	if op.logger != nil {
		o.logger = op.logger
	}
}

// WithLogger is an option to specify the logger used to report resizes,
// compactions and missing-key hook invocations. The default logger discards
// everything.
func WithLogger(logger *zap.Logger) option {
	return loggerOption{logger}
}

// Allocator specifies an interface for allocating and releasing the slot
// store and index of a Table. The default allocator utilizes Go's builtin
// make() and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// indices be freed then Table.Close (or Dict.Close) must be called in order
// to ensure FreeSlots and FreeIndices are called.
type Allocator interface {
	// AllocSlots should return a slice equivalent to make([]Slot, n).
	AllocSlots(n int) []Slot

	// AllocIndices should return a slice equivalent to make([]int32, n). The
	// contents are overwritten by the caller.
	AllocIndices(n int) []int32

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot)

	// FreeIndices can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocIndices.
	FreeIndices(v []int32)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocSlots(n int) []Slot {
	return make([]Slot, n)
}

func (defaultAllocator) AllocIndices(n int) []int32 {
	return make([]int32, n)
}

func (defaultAllocator) FreeSlots(v []Slot) {
}

func (defaultAllocator) FreeIndices(v []int32) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(o *options) {
	o.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table.
func WithAllocator(allocator Allocator) option {
	return allocatorOption{allocator}
}

type missingOption struct {
	missing MissingFunc
}

func (op missingOption) apply(o *options) {
	o.missing = op.missing
}

// WithMissing installs a missing-key hook on a Dict. It is consulted by
// GetItem, and only by GetItem, when the key is absent. Ignored by NewTable.
func WithMissing(fn MissingFunc) option {
	return missingOption{fn}
}

type capacityOption struct {
	n int
}

func (op capacityOption) apply(o *options) {
	o.initialCapacity = op.n
}

// WithInitialCapacity presizes a Dict to hold n entries without resizing.
// NewTable takes its initial capacity as an argument and ignores this option.
func WithInitialCapacity(n int) option {
	return capacityOption{n}
}
