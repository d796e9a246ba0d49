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
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrKeyNotFound marks lookups, deletions and pops of an absent key, and
	// PopItem on an empty Dict. The concrete error is a *KeyError.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnhashable is returned when hashing a Dict.
	ErrUnhashable = errors.New("unhashable type: 'dict'")

	// ErrBadPair marks a merge source element that does not yield exactly two
	// values.
	ErrBadPair = errors.New("dictionary update sequence element must have exactly two elements")

	// ErrChangedSize is returned by an Iterator when the Dict changed size
	// since the iterator was created.
	ErrChangedSize = errors.New("dictionary changed size during iteration")

	// ErrAttributeKey marks a non-string key encountered while converting a
	// Dict to Attributes.
	ErrAttributeKey = errors.New("attribute name must be a string")
)

// KeyError is the missing-key error. Key is the key that was looked up, or
// nil for PopItem on an empty Dict.
type KeyError struct {
	Key Value
	msg string
}

func (e *KeyError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("key error: %v", e.Key)
}

func newKeyError(key Value) error {
	return errors.Mark(&KeyError{Key: key}, ErrKeyNotFound)
}

func newEmptyError() error {
	return errors.Mark(&KeyError{msg: "popitem(): dictionary is empty"}, ErrKeyNotFound)
}

func newBadPairError(index int) error {
	return errors.Mark(
		errors.Newf("dictionary update sequence element #%d must have exactly two elements", index),
		ErrBadPair)
}

func newChangedSizeError(snapshot, current Size) error {
	return errors.WithDetailf(errors.WithStack(ErrChangedSize),
		"size at iterator creation %s, size now %s", snapshot, current)
}
