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

// Package dict implements the insertion-ordered hash table that backs the
// mapping type of a dynamically-typed object runtime, along with the
// mapping-level operations and the live key, value and item views built on
// top of it.
//
// # Tables
//
// A Table is split in two parts, in the style of the compact dict layout
// popularized by PyPy and CPython 3.6:
//
//   - The slot store is a dense array of slots holding key, value and the
//     key's cached hash. New entries are always appended, so the position of
//     a slot is its iteration order. Deleting an entry turns its slot into a
//     tombstone; slots are never moved except by a resize.
//   - The index is a power-of-two array of int32 positions into the slot
//     store, used only for lookup. It uses open addressing with a
//     perturbation-based probe sequence (see probeSeq). A deleted entry
//     leaves a dummy in the index which lookups skip over but do not stop
//     at, so keys that once collided with it remain reachable.
//
// The slot store holds 2/3 of the index capacity, which keeps probe sequences
// short and guarantees the index always contains an empty entry that
// terminates a probe. Once the slot store is full (counting tombstones) the
// table is rehashed: compacted in place when at least a third of the slots
// are tombstones, and doubled otherwise. Both copy the occupied slots in
// their existing order and rebuild the index from the cached hashes without
// calling back into the host.
//
// # Reentrancy
//
// Hashing and key comparison are performed by a KeyHost which dispatches to
// guest code. That code may fail, and it may look up, insert, delete or clear
// entries of the table which invoked it. A Table never holds a reference into
// its storage across such a call. After every equality callback the probe
// re-validates the candidate slot (storage generation, slot state and key
// identity) and restarts the lookup from scratch against the current table
// if anything moved. The effect of a reentrant mutation is thus always
// visible to the outer operation and never undone by it.
//
// A Table is NOT goroutine-safe.
package dict

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// minCapacity is the smallest non-zero index capacity. It must be a power
	// of two.
	minCapacity = 8
	// perturbShift is the number of hash bits folded into each probe step.
	perturbShift = 5

	indexEmpty int32 = -1
	indexDummy int32 = -2
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotOccupied:
		return "occupied"
	case slotTombstone:
		return "tombstone"
	}
	return fmt.Sprintf("slotState(%d)", uint8(s))
}

// Slot holds a key, its value and the cached hash of the key.
type Slot struct {
	key   Value
	value Value
	hash  int64
	state slotState
}

// Table is an insertion-ordered hash table with Insert, Get, Delete, Pop,
// PopOldest and NextEntry operations. Key identity is established through a
// KeyHost. See the package documentation for the layout and the reentrancy
// rules.
type Table struct {
	host      KeyHost
	logger    *zap.Logger
	allocator Allocator
	// slots is the slot store. Positions [0,total) hold occupied slots and
	// tombstones, positions [total,len(slots)) are empty.
	slots []Slot
	// indices is the index. It is either empty, or a power of two in length
	// with len(slots) == usable(len(indices)). Non-negative entries always
	// refer to occupied slots.
	indices []int32
	// The number of occupied slots.
	live int
	// The number of occupied slots and tombstones.
	total int
	// Every position below head is a tombstone. Used to make repeated
	// PopOldest calls amortized O(1).
	head int
	// gen is incremented whenever slots or indices are reallocated, which is
	// how a probe notices that a callback resized or cleared the table.
	gen uint64
}

// NewTable constructs a new Table with room for initialCapacity entries
// before the first resize. If initialCapacity is 0 the table starts out with
// zero capacity and allocates on the first insert.
func NewTable(host KeyHost, initialCapacity int, options ...option) *Table {
	o := makeOptions(options)
	return newTable(host, initialCapacity, o)
}

func newTable(host KeyHost, initialCapacity int, o options) *Table {
	t := &Table{
		host:      host,
		logger:    o.logger,
		allocator: o.allocator,
	}
	if initialCapacity > 0 {
		t.resize(capacityFor(initialCapacity))
	}
	t.checkInvariants()
	return t
}

// Close releases the table's memory back to its configured allocator. It is
// unnecessary to close a table using the default allocator. It is invalid to
// use a Table after it has been closed, though Close itself is idempotent.
func (t *Table) Close() {
	if t.allocator != nil {
		t.release()
	}
	t.live, t.total, t.head = 0, 0, 0
	t.gen++
	t.allocator = nil
}

// Insert associates value with key, overwriting the value of an existing
// entry in place. A new key is appended after all existing entries.
func (t *Table) Insert(key, value Value) error {
	h, err := t.host.Hash(key)
	if err != nil {
		return err
	}
	return t.insertHashed(key, h, value)
}

// Get retrieves the value for key, returning ok=false if the key is not
// present.
func (t *Table) Get(key Value) (value Value, ok bool, err error) {
	h, err := t.host.Hash(key)
	if err != nil {
		return nil, false, err
	}
	return t.getHashed(key, h)
}

// Contains reports whether key is present.
func (t *Table) Contains(key Value) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Delete removes the entry for key. Deleting an absent key returns a
// *KeyError marked with ErrKeyNotFound.
func (t *Table) Delete(key Value) error {
	_, err := t.Pop(key)
	return err
}

// Pop removes the entry for key and returns its value.
func (t *Table) Pop(key Value) (Value, error) {
	h, err := t.host.Hash(key)
	if err != nil {
		return nil, err
	}
	offset, pos, err := t.lookup(key, h)
	if err != nil {
		return nil, err
	}
	if pos < 0 {
		return nil, newKeyError(key)
	}
	return t.deleteAt(offset, pos), nil
}

// PopOldest removes and returns the oldest surviving entry, returning
// ok=false if the table is empty.
func (t *Table) PopOldest() (key, value Value, ok bool) {
	for ; t.head < t.total; t.head++ {
		s := &t.slots[t.head]
		if s.state != slotOccupied {
			continue
		}
		pos := t.head
		key = s.key
		offset, found := t.indexOf(s.hash, pos)
		if !found {
			panic(errors.AssertionFailedf("slot %d missing from index\n%s", pos, t.debugString()))
		}
		t.head++
		return key, t.deleteAt(offset, pos), true
	}
	return nil, nil, false
}

// NextEntry returns the first occupied entry at or after *pos and sets *pos
// to the position following it. It returns ok=false once the end of the slot
// store is reached. Start iteration with *pos == 0.
//
// NextEntry never calls back into the host and never fails. If the table was
// resized since the previous call the cursor is stale: iteration continues
// safely but may skip or repeat entries. Callers that care compare a Size
// snapshot first.
func (t *Table) NextEntry(pos *int) (key, value Value, ok bool) {
	s, ok := t.nextSlot(pos)
	return s.key, s.value, ok
}

func (t *Table) nextSlot(pos *int) (Slot, bool) {
	if *pos < t.head {
		*pos = t.head
	}
	for *pos < t.total {
		s := t.slots[*pos]
		*pos++
		if s.state == slotOccupied {
			return s, true
		}
	}
	return Slot{}, false
}

// All calls yield sequentially for each key and value in insertion order. If
// yield returns false, iteration stops. The table may be mutated during
// iteration; no attempt is made to detect it.
func (t *Table) All(yield func(key, value Value) bool) {
	for pos := 0; ; {
		s, ok := t.nextSlot(&pos)
		if !ok || !yield(s.key, s.value) {
			return
		}
	}
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return t.live
}

// Size returns a snapshot of the table's counters.
func (t *Table) Size() Size {
	return Size{Live: t.live, Total: t.total}
}

// HasChangedSize reports whether the table's counters differ from snapshot.
func (t *Table) HasChangedSize(snapshot Size) bool {
	return t.Size() != snapshot
}

// Clear removes all entries and releases the table's storage. No host
// callbacks are made.
func (t *Table) Clear() {
	t.logger.Debug("clear", zap.Int("live", t.live), zap.Int("total", t.total))
	t.release()
	t.live, t.total, t.head = 0, 0, 0
	t.gen++
	t.checkInvariants()
}

// capacity returns the index capacity.
func (t *Table) capacity() int {
	return len(t.indices)
}

func (t *Table) mask() uint64 {
	return uint64(len(t.indices) - 1)
}

func (t *Table) getHashed(key Value, h int64) (Value, bool, error) {
	_, pos, err := t.lookup(key, h)
	if err != nil || pos < 0 {
		return nil, false, err
	}
	return t.slots[pos].value, true, nil
}

func (t *Table) insertHashed(key Value, h int64, value Value) error {
	_, pos, err := t.lookup(key, h)
	if err != nil {
		return err
	}
	if pos >= 0 {
		t.slots[pos].value = value
		t.checkInvariants()
		return nil
	}
	if t.total == len(t.slots) {
		t.rehash()
	}
	t.uncheckedPut(key, h, value)
	t.checkInvariants()
	return nil
}

// lookup finds key, returning the index offset and slot position of its
// entry, or pos=-1 if the key is absent.
func (t *Table) lookup(key Value, h int64) (offset uint64, pos int, err error) {
	for {
		var restart bool
		offset, pos, restart, err = t.probe(key, h)
		if err != nil || !restart {
			return offset, pos, err
		}
		t.logger.Debug("lookup restarted: table mutated by equality callback",
			zap.Int("live", t.live), zap.Int("total", t.total))
	}
}

// probe performs a single lookup attempt. restart=true means an equality
// callback mutated the table in a way that invalidates the probe.
func (t *Table) probe(key Value, h int64) (offset uint64, pos int, restart bool, err error) {
	if len(t.indices) == 0 {
		return 0, -1, false, nil
	}
	gen := t.gen
	for seq := makeProbeSeq(uint64(h), t.mask()); ; seq = seq.next() {
		ix := t.indices[seq.offset]
		switch ix {
		case indexEmpty:
			return seq.offset, -1, false, nil
		case indexDummy:
			continue
		}

		candidate, candidateHash := t.slots[ix].key, t.slots[ix].hash
		if t.host.Is(candidate, key) {
			return seq.offset, int(ix), false, nil
		}
		if candidateHash != h {
			continue
		}

		eq, err := t.host.Equal(candidate, key)
		if err != nil {
			return 0, -1, false, err
		}
		if t.gen != gen || t.indices[seq.offset] != ix ||
			t.slots[ix].state != slotOccupied || !t.host.Is(t.slots[ix].key, candidate) {
			return 0, -1, true, nil
		}
		if eq {
			return seq.offset, int(ix), false, nil
		}
	}
}

// indexOf returns the index offset referring to slot pos, whose key has hash
// h. It makes no host callbacks.
func (t *Table) indexOf(h int64, pos int) (uint64, bool) {
	if len(t.indices) == 0 {
		return 0, false
	}
	for seq := makeProbeSeq(uint64(h), t.mask()); ; seq = seq.next() {
		switch ix := t.indices[seq.offset]; ix {
		case indexEmpty:
			return 0, false
		case int32(pos):
			return seq.offset, true
		}
	}
}

// findEmpty returns the first empty index offset in the probe sequence for h.
func (t *Table) findEmpty(h int64) uint64 {
	for seq := makeProbeSeq(uint64(h), t.mask()); ; seq = seq.next() {
		if t.indices[seq.offset] == indexEmpty {
			return seq.offset
		}
	}
}

// uncheckedPut appends an entry known not to be in the table. The slot store
// must have room for it.
func (t *Table) uncheckedPut(key Value, h int64, value Value) {
	pos := t.total
	t.slots[pos] = Slot{key: key, value: value, hash: h, state: slotOccupied}
	t.indices[t.findEmpty(h)] = int32(pos)
	t.total++
	t.live++
}

func (t *Table) deleteAt(offset uint64, pos int) Value {
	value := t.slots[pos].value
	// Drop the references held by the slot; the tombstone only needs to
	// occupy its position.
	t.slots[pos] = Slot{state: slotTombstone}
	t.indices[offset] = indexDummy
	t.live--
	t.checkInvariants()
	return value
}

func (t *Table) rehash() {
	// Compact at the current capacity if we can recover at least a third of
	// the slot store, otherwise double. Tombstones count against the load
	// factor, so a delete-heavy workload ends up here even when few entries
	// are live.
	capacity := t.capacity()
	switch {
	case capacity == 0:
		t.resize(minCapacity)
	case t.total-t.live >= len(t.slots)/3:
		t.resize(capacity)
	default:
		t.resize(2 * capacity)
	}
}

// resize allocates a new slot store and index of the given capacity, copies
// the occupied slots across in order and discards the old storage.
func (t *Table) resize(newCapacity int) {
	if newCapacity < minCapacity {
		newCapacity = minCapacity
	}

	oldSlots, oldIndices, oldTotal := t.slots, t.indices, t.total
	oldLive := t.live

	t.slots = t.allocator.AllocSlots(usable(newCapacity))
	t.indices = t.allocator.AllocIndices(newCapacity)
	for i := range t.indices {
		t.indices[i] = indexEmpty
	}
	t.live, t.total, t.head = 0, 0, 0
	t.gen++

	for i := 0; i < oldTotal; i++ {
		if s := &oldSlots[i]; s.state == slotOccupied {
			t.uncheckedPut(s.key, s.hash, s.value)
		}
	}

	t.logger.Debug("resize",
		zap.Int("old-capacity", len(oldIndices)),
		zap.Int("new-capacity", newCapacity),
		zap.Int("live", oldLive),
		zap.Int("tombstones", oldTotal-oldLive))

	if len(oldIndices) > 0 {
		t.allocator.FreeSlots(oldSlots)
		t.allocator.FreeIndices(oldIndices)
	}

	t.checkInvariants()
}

// clone returns a copy of t sharing its keys and values but none of its
// storage. Tombstones are not copied.
func (t *Table) clone() *Table {
	c := &Table{
		host:      t.host,
		logger:    t.logger,
		allocator: t.allocator,
	}
	if t.live == 0 {
		return c
	}
	c.resize(capacityFor(t.live))
	for pos := 0; ; {
		s, ok := t.nextSlot(&pos)
		if !ok {
			break
		}
		c.uncheckedPut(s.key, s.hash, s.value)
	}
	c.checkInvariants()
	return c
}

func (t *Table) release() {
	if len(t.indices) > 0 {
		t.allocator.FreeSlots(t.slots)
		t.allocator.FreeIndices(t.indices)
	}
	t.slots = nil
	t.indices = nil
}

func (t *Table) checkInvariants() {
	if invariants {
		if t.live < 0 || t.live > t.total || t.total > len(t.slots) {
			panic(errors.AssertionFailedf("invariant failed: live=%d total=%d slots=%d\n%s",
				t.live, t.total, len(t.slots), t.debugString()))
		}
		if n := len(t.indices); n != 0 && (n&(n-1) != 0 || len(t.slots) != usable(n)) {
			panic(errors.AssertionFailedf("invariant failed: %d slots for index capacity %d",
				len(t.slots), n))
		}

		// Every occupied slot must be reachable through the index, and the
		// slot states must agree with the counters.
		var live int
		for i := range t.slots {
			s := &t.slots[i]
			switch {
			case i >= t.total && s.state != slotEmpty:
				panic(errors.AssertionFailedf("invariant failed: slot(%d) is %s beyond total=%d\n%s",
					i, s.state, t.total, t.debugString()))
			case i < t.total && s.state == slotEmpty:
				panic(errors.AssertionFailedf("invariant failed: slot(%d) is empty below total=%d\n%s",
					i, t.total, t.debugString()))
			case i < t.head && s.state != slotTombstone:
				panic(errors.AssertionFailedf("invariant failed: slot(%d) is %s below head=%d\n%s",
					i, s.state, t.head, t.debugString()))
			case s.state == slotOccupied:
				if _, ok := t.indexOf(s.hash, i); !ok {
					panic(errors.AssertionFailedf("invariant failed: slot(%d): %v not found [hash=%016x]\n%s",
						i, s.key, uint64(s.hash), t.debugString()))
				}
				live++
			}
		}
		if live != t.live {
			panic(errors.AssertionFailedf("invariant failed: found %d occupied slots, but live count is %d\n%s",
				live, t.live, t.debugString()))
		}

		// Each appended slot claims exactly one index entry until the next
		// resize; deletion turns it into a dummy.
		var used int
		for i, ix := range t.indices {
			if ix == indexEmpty {
				continue
			}
			used++
			if ix >= 0 && (int(ix) >= t.total || t.slots[ix].state != slotOccupied) {
				panic(errors.AssertionFailedf("invariant failed: index(%d) refers to non-occupied slot %d\n%s",
					i, ix, t.debugString()))
			}
		}
		if used != t.total {
			panic(errors.AssertionFailedf("invariant failed: found %d used index entries, but total is %d\n%s",
				used, t.total, t.debugString()))
		}
	}
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  live=%d  total=%d  head=%d\n", t.capacity(), t.live, t.total, t.head)
	for i := range t.slots {
		switch s := &t.slots[i]; s.state {
		case slotOccupied:
			fmt.Fprintf(&buf, "  slot %4d: %v=%v [hash=%016x]\n", i, s.key, s.value, uint64(s.hash))
		default:
			fmt.Fprintf(&buf, "  slot %4d: %s\n", i, s.state)
		}
	}
	for i, ix := range t.indices {
		switch ix {
		case indexEmpty:
			fmt.Fprintf(&buf, "  index %4d: empty\n", i)
		case indexDummy:
			fmt.Fprintf(&buf, "  index %4d: dummy\n", i)
		default:
			fmt.Fprintf(&buf, "  index %4d: %d\n", i, ix)
		}
	}
	return buf.String()
}

// usable returns the size of the slot store for an index of the given
// capacity.
func usable(capacity int) int {
	return capacity * 2 / 3
}

// capacityFor returns the smallest index capacity whose slot store holds n
// entries.
func capacityFor(n int) int {
	capacity := minCapacity
	for usable(capacity) < n {
		capacity <<= 1
	}
	return capacity
}

// probeSeq maintains the state for a probe sequence over the index. Each
// step computes
//
//	i = (5*i + perturb + 1) mod (mask+1),  perturb >>= perturbShift
//
// Folding perturb in lets every bit of the hash influence the sequence, which
// matters because host hashes (e.g. of small integers) are often far from
// random in their low bits. Once perturb has been shifted down to zero the
// recurrence i = 5*i+1 is a full-period linear congruential generator modulo
// any power of two, so every index is eventually visited and a probe always
// reaches an empty entry.
type probeSeq struct {
	mask    uint64
	offset  uint64
	perturb uint64
}

func makeProbeSeq(hash, mask uint64) probeSeq {
	return probeSeq{
		mask:    mask,
		offset:  hash & mask,
		perturb: hash,
	}
}

func (s probeSeq) next() probeSeq {
	s.perturb >>= perturbShift
	s.offset = (s.offset*5 + s.perturb + 1) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d perturb=%x", s.mask, s.offset, s.perturb)
}
