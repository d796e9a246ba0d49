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
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// testHost is a miniature object system: strings, integers, tuples, dicts and
// scriptable keys whose hash and equality run arbitrary test code.
type testHost struct {
	// degenerate, if set, is returned as the hash of every value, forcing
	// every lookup through the equality callback.
	degenerate *int64

	hashCalls  int
	equalCalls int
}

type testStr struct{ s string }

type testInt struct{ n int64 }

type testTuple struct{ elems []Value }

// testKey is a key whose hashing and equality are scripted by a test.
type testKey struct {
	name    string
	hash    int64
	hashErr error
	// eq, if set, decides equality when the testKey is the stored key.
	eq func(other Value) (bool, error)
}

func str(s string) *testStr { return &testStr{s} }

func num(n int64) *testInt { return &testInt{n} }

func tuple(elems ...Value) *testTuple { return &testTuple{elems} }

var _ Host = (*testHost)(nil)

func (h *testHost) Hash(v Value) (int64, error) {
	h.hashCalls++
	if k, ok := v.(*testKey); ok && k.hashErr != nil {
		return 0, k.hashErr
	}
	if h.degenerate != nil {
		if _, ok := v.(*Dict); !ok {
			return *h.degenerate, nil
		}
	}
	switch v := v.(type) {
	case *testStr:
		return int64(xxhash.Sum64String(v.s)), nil
	case *testInt:
		return v.n, nil
	case *testTuple:
		x := int64(0x345678)
		for _, e := range v.elems {
			eh, err := h.Hash(e)
			if err != nil {
				return 0, err
			}
			x = (x ^ eh) * 1000003
		}
		return x, nil
	case *testKey:
		return v.hash, nil
	case *Dict:
		return v.Hash()
	}
	return 0, errors.Newf("unhashable type: %T", v)
}

func (h *testHost) Equal(a, b Value) (bool, error) {
	h.equalCalls++
	switch a := a.(type) {
	case *testStr:
		b, ok := b.(*testStr)
		return ok && a.s == b.s, nil
	case *testInt:
		b, ok := b.(*testInt)
		return ok && a.n == b.n, nil
	case *testTuple:
		b, ok := b.(*testTuple)
		if !ok || len(a.elems) != len(b.elems) {
			return false, nil
		}
		for i := range a.elems {
			if eq, err := h.Equal(a.elems[i], b.elems[i]); err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *testKey:
		if a.eq != nil {
			return a.eq(b)
		}
	case *Dict:
		b, ok := b.(*Dict)
		if !ok {
			return false, nil
		}
		return a.Equal(b)
	}
	return a == b, nil
}

func (h *testHost) Is(a, b Value) bool {
	return a == b
}

func (h *testHost) Repr(v Value) (string, error) {
	switch v := v.(type) {
	case *testStr:
		return "'" + v.s + "'", nil
	case *testInt:
		return strconv.FormatInt(v.n, 10), nil
	case *testTuple:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			r, err := h.Repr(e)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)", nil
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case *testKey:
		return v.name, nil
	case *Dict:
		return v.Repr()
	case nil:
		return "None", nil
	}
	return "", errors.Newf("cannot repr %T", v)
}

func (h *testHost) Iter(v Value) (ValueIterator, error) {
	switch v := v.(type) {
	case *testTuple:
		return &sliceIter{elems: v.elems}, nil
	case *testStr:
		elems := make([]Value, 0, len(v.s))
		for _, r := range v.s {
			elems = append(elems, str(string(r)))
		}
		return &sliceIter{elems: elems}, nil
	case *Dict:
		return v.Iter(), nil
	case ValueIterator:
		return v, nil
	}
	return nil, errors.Newf("'%T' object is not iterable", v)
}

func (h *testHost) NewStr(s string) Value {
	return str(s)
}

func (h *testHost) Str(v Value) (string, bool) {
	if s, ok := v.(*testStr); ok {
		return s.s, true
	}
	return "", false
}

type sliceIter struct {
	elems []Value
	pos   int
}

func (it *sliceIter) Next() (Value, bool, error) {
	if it.pos >= len(it.elems) {
		return nil, false, nil
	}
	it.pos++
	return it.elems[it.pos-1], true, nil
}

// failingIter yields its elements and then fails.
type failingIter struct {
	sliceIter
	err error
}

func (it *failingIter) Next() (Value, bool, error) {
	if v, ok, _ := it.sliceIter.Next(); ok {
		return v, true, nil
	}
	return nil, false, it.err
}

// reprs renders every element produced by it.
func reprs[T any](h *testHost, it *Iterator[T]) ([]string, error) {
	var out []string
	for {
		elem, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		var r string
		switch e := any(elem).(type) {
		case Item:
			r, err = h.Repr(tuple(e.Key, e.Value))
		default:
			r, err = h.Repr(e)
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
