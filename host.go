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

// Value is a reference to an object owned by the host runtime. A Table or
// Dict never owns the values it stores; it only holds references to them.
type Value = any

// KeyHost is the part of the host object system a Table needs in order to
// establish the identity of a key. Hash and Equal dispatch to guest code: they
// may fail, and they may re-enter and mutate the very table that invoked
// them.
type KeyHost interface {
	// Hash returns the hash of v, or an error if v is unhashable or hashing
	// raised.
	Hash(v Value) (int64, error)
	// Equal reports whether a and b are equal according to the guest
	// language.
	Equal(a, b Value) (bool, error)
	// Is reports whether a and b are the same object. It must not call back
	// into guest code.
	Is(a, b Value) bool
}

// Host is the full host collaborator used by a Dict.
type Host interface {
	KeyHost
	// Repr returns the printable representation of v.
	Repr(v Value) (string, error)
	// Iter returns an iterator over v, or an error if v is not iterable.
	Iter(v Value) (ValueIterator, error)
	// NewStr returns a host string object for s. Used for keyword arguments
	// and attribute names.
	NewStr(s string) Value
	// Str returns the contents of v if v is a host string.
	Str(v Value) (string, bool)
}

// ValueIterator is a host iterator. Next returns ok=false once the iterator
// is exhausted.
type ValueIterator interface {
	Next() (v Value, ok bool, err error)
}

// MissingFunc is the missing-key hook consulted by Dict.GetItem when a key is
// not present. It models a mapping subtype that overrides the lookup-miss
// behavior; its result is returned in place of a missing-key error.
type MissingFunc func(d *Dict, key Value) (Value, error)

// Keyword is a keyword-style argument merged into a Dict after any
// positional source.
type Keyword struct {
	Name  string
	Value Value
}
