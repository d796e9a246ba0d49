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

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Dict is the user-facing mapping type. It owns a single Table and layers the
// mapping policy on top of it: merging, the missing-key hook, defaults,
// structural equality and representation.
//
// A Dict is NOT goroutine-safe.
type Dict struct {
	host    Host
	logger  *zap.Logger
	missing MissingFunc
	table   *Table
	// inRepr is set while Repr is rendering this instance, so that a
	// self-referential structure renders as {...}.
	inRepr bool
}

// New returns an empty Dict.
func New(host Host, options ...option) *Dict {
	o := makeOptions(options)
	return &Dict{
		host:    host,
		logger:  o.logger,
		missing: o.missing,
		table:   newTable(host, o.initialCapacity, o),
	}
}

// NewFrom returns a Dict populated from source and kwargs with the semantics
// of Update. A nil source is treated as absent. On error the partially
// populated Dict is returned along with the error.
func NewFrom(host Host, source Value, kwargs []Keyword, options ...option) (*Dict, error) {
	d := New(host, options...)
	return d, d.Update(source, kwargs)
}

// FromKeys returns a Dict mapping every element of iterable to fill, in
// iteration order.
func FromKeys(host Host, iterable Value, fill Value, options ...option) (*Dict, error) {
	d := New(host, options...)
	it, err := host.Iter(iterable)
	if err != nil {
		return d, err
	}
	for {
		key, ok, err := it.Next()
		if err != nil {
			return d, err
		}
		if !ok {
			return d, nil
		}
		if err := d.table.Insert(key, fill); err != nil {
			return d, err
		}
	}
}

// Update merges source and then kwargs into d. If source is a *Dict its
// entries are copied in its iteration order. Otherwise source is iterated
// lazily and every element must itself yield exactly two values, a key and a
// value. Keywords are inserted last, in order, with host string keys.
//
// Update is not atomic: if it fails, the pairs merged before the failing one
// remain in d.
func (d *Dict) Update(source Value, kwargs []Keyword) error {
	if source != nil {
		if other, ok := source.(*Dict); ok {
			if err := d.mergeDict(other); err != nil {
				return err
			}
		} else if err := d.mergeIterable(source); err != nil {
			return err
		}
	}
	for _, kw := range kwargs {
		if err := d.table.Insert(d.host.NewStr(kw.Name), kw.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dict) mergeDict(other *Dict) error {
	for pos := 0; ; {
		s, ok := other.table.nextSlot(&pos)
		if !ok {
			return nil
		}
		if err := d.table.insertHashed(s.key, s.hash, s.value); err != nil {
			return err
		}
	}
}

func (d *Dict) mergeIterable(source Value) error {
	it, err := d.host.Iter(source)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		elem, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		key, value, err := d.unpackPair(i, elem)
		if err != nil {
			return err
		}
		if err := d.table.Insert(key, value); err != nil {
			return err
		}
	}
}

// unpackPair drains elem, which must yield exactly a key and a value.
func (d *Dict) unpackPair(index int, elem Value) (key, value Value, err error) {
	it, err := d.host.Iter(elem)
	if err != nil {
		return nil, nil, err
	}
	var pair [2]Value
	for i := range pair {
		v, ok, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, newBadPairError(index)
		}
		pair[i] = v
	}
	_, extra, err := it.Next()
	if err != nil {
		return nil, nil, err
	}
	if extra {
		return nil, nil, newBadPairError(index)
	}
	return pair[0], pair[1], nil
}

// Len returns the number of entries in d.
func (d *Dict) Len() int {
	return d.table.Len()
}

// Size returns a snapshot of d's counters.
func (d *Dict) Size() Size {
	return d.table.Size()
}

// Contains reports whether key is present in d.
func (d *Dict) Contains(key Value) (bool, error) {
	return d.table.Contains(key)
}

// GetItem returns the value for key. If the key is absent and d has a
// missing-key hook, the hook's result is returned instead; otherwise a
// *KeyError marked ErrKeyNotFound.
func (d *Dict) GetItem(key Value) (Value, error) {
	value, ok, err := d.table.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}
	if d.missing != nil {
		d.logger.Debug("invoking missing-key hook", zap.Int("live", d.table.Len()))
		return d.missing(d, key)
	}
	return nil, newKeyError(key)
}

// SetItem associates value with key.
func (d *Dict) SetItem(key, value Value) error {
	return d.table.Insert(key, value)
}

// DelItem removes key from d.
func (d *Dict) DelItem(key Value) error {
	return d.table.Delete(key)
}

// GetOrDefault returns the value for key, or def if the key is absent. The
// missing-key hook is never consulted.
func (d *Dict) GetOrDefault(key, def Value) (Value, error) {
	value, ok, err := d.table.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

// SetDefault returns the value for key, inserting def first if the key is
// absent. The key is hashed once.
func (d *Dict) SetDefault(key, def Value) (Value, error) {
	h, err := d.host.Hash(key)
	if err != nil {
		return nil, err
	}
	value, ok, err := d.table.getHashed(key, h)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}
	if err := d.table.insertHashed(key, h, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Pop removes key and returns its value.
func (d *Dict) Pop(key Value) (Value, error) {
	return d.table.Pop(key)
}

// PopItem removes and returns the oldest entry of d.
func (d *Dict) PopItem() (key, value Value, err error) {
	key, value, ok := d.table.PopOldest()
	if !ok {
		return nil, nil, newEmptyError()
	}
	return key, value, nil
}

// Clear removes all entries from d.
func (d *Dict) Clear() {
	d.table.Clear()
}

// Close releases d's storage back to its allocator. See Table.Close.
func (d *Dict) Close() {
	d.table.Close()
}

// Copy returns a shallow copy of d: a new table holding the same key and
// value references. The copy is a plain mapping and does not carry d's
// missing-key hook.
func (d *Dict) Copy() *Dict {
	return &Dict{
		host:   d.host,
		logger: d.logger,
		table:  d.table.clone(),
	}
}

// Iter returns an iterator over the keys of d.
func (d *Dict) Iter() *Iterator[Value] {
	return d.Keys().Iter()
}

// All calls yield sequentially for each key and value of d in insertion
// order. Unlike an Iterator it does not check for concurrent changes.
func (d *Dict) All(yield func(key, value Value) bool) {
	d.table.All(yield)
}

// Hash always fails: dicts are mutable and therefore unhashable.
func (d *Dict) Hash() (int64, error) {
	return 0, errors.WithStack(ErrUnhashable)
}

// Equal reports whether d and other hold the same keys mapped to equal
// values, regardless of order. Identical values are considered equal without
// consulting the host.
func (d *Dict) Equal(other *Dict) (bool, error) {
	if d == other {
		return true, nil
	}
	if d.Len() != other.Len() {
		return false, nil
	}
	for pos := 0; ; {
		s, ok := d.table.nextSlot(&pos)
		if !ok {
			return true, nil
		}
		v2, found, err := other.table.getHashed(s.key, s.hash)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		if d.host.Is(s.value, v2) {
			continue
		}
		eq, err := d.host.Equal(s.value, v2)
		if err != nil || !eq {
			return false, err
		}
	}
}

// Repr renders d as {k1: v1, k2: v2} in iteration order. A dict that
// (indirectly) contains itself renders the inner reference as {...}.
func (d *Dict) Repr() (string, error) {
	if d.inRepr {
		return "{...}", nil
	}
	d.inRepr = true
	defer func() { d.inRepr = false }()

	var buf strings.Builder
	buf.WriteByte('{')
	for pos, first := 0, true; ; first = false {
		key, value, ok := d.table.NextEntry(&pos)
		if !ok {
			break
		}
		keyRepr, err := d.host.Repr(key)
		if err != nil {
			return "", err
		}
		valueRepr, err := d.host.Repr(value)
		if err != nil {
			return "", err
		}
		if !first {
			buf.WriteString(", ")
		}
		buf.WriteString(keyRepr)
		buf.WriteString(": ")
		buf.WriteString(valueRepr)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
