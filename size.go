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

// Size is a snapshot of a Table's counters. Live counts occupied slots and
// Total counts occupied slots plus tombstones, so Live <= Total.
//
// Two snapshots are compared as an opaque pair: a delete followed by an
// insert leaves Live unchanged but raises Total, and is reported as a change.
// A compaction or Clear that happens to land on the exact pair of an earlier
// snapshot is not.
type Size struct {
	Live  int
	Total int
}

// SafeValue implements redact.SafeValue.
func (Size) SafeValue() {}

var _ redact.SafeValue = Size{}

// SafeFormat implements redact.SafeFormatter.
func (s Size) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("{live=%d total=%d}", s.Live, s.Total)
}

func (s Size) String() string {
	return redact.StringWithoutMarkers(s)
}
