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

import "github.com/cockroachdb/redact"

// Item is a key/value pair produced by the items view.
type Item struct {
	Key   Value
	Value Value
}

type viewKind uint8

const (
	keysView viewKind = iota
	valuesView
	itemsView
)

var viewNames = [...]redact.SafeString{
	keysView:   "dict_keys",
	valuesView: "dict_values",
	itemsView:  "dict_items",
}

// View is a live projection of a Dict's keys, values or items. It holds no
// storage of its own: Len always reflects the Dict's current length and
// every Iter call starts a fresh pass.
type View[T any] struct {
	d       *Dict
	kind    viewKind
	project func(key, value Value) T
}

// Keys returns a view of d's keys.
func (d *Dict) Keys() View[Value] {
	return View[Value]{d: d, kind: keysView, project: func(key, _ Value) Value { return key }}
}

// Values returns a view of d's values.
func (d *Dict) Values() View[Value] {
	return View[Value]{d: d, kind: valuesView, project: func(_, value Value) Value { return value }}
}

// Items returns a view of d's key/value pairs.
func (d *Dict) Items() View[Item] {
	return View[Item]{d: d, kind: itemsView, project: func(key, value Value) Item { return Item{key, value} }}
}

// Len returns the current number of entries of the underlying Dict.
func (v View[T]) Len() int {
	return v.d.Len()
}

// Name returns the type name of the view.
func (v View[T]) Name() string {
	return string(viewNames[v.kind])
}

// SafeFormat implements redact.SafeFormatter.
func (v View[T]) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s(len=%d)", viewNames[v.kind], v.Len())
}

// Iter returns an iterator over the view, snapshotting the Dict's size.
func (v View[T]) Iter() *Iterator[T] {
	return &Iterator[T]{
		d:       v.d,
		size:    v.d.table.Size(),
		project: v.project,
	}
}

// Iterator is a single pass over a View. It is not restartable: once
// exhausted it stays exhausted, even if the Dict grows afterwards.
//
// The Dict may be mutated freely between calls to Next. Each step compares
// the Dict's size with the snapshot taken when the iterator was created and
// fails with ErrChangedSize if it differs. After that failure every further
// call returns the same error.
type Iterator[T any] struct {
	d       *Dict
	pos     int
	size    Size
	project func(key, value Value) T
	err     error
	done    bool
}

// Next returns the next element, or ok=false once the view is exhausted.
func (it *Iterator[T]) Next() (elem T, ok bool, err error) {
	if it.err != nil {
		return elem, false, it.err
	}
	if it.done {
		return elem, false, nil
	}
	if current := it.d.table.Size(); current != it.size {
		it.err = newChangedSizeError(it.size, current)
		return elem, false, it.err
	}
	key, value, ok := it.d.table.NextEntry(&it.pos)
	if !ok {
		it.done = true
		return elem, false, nil
	}
	return it.project(key, value), true, nil
}
