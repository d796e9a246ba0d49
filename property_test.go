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
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// firstSeen returns the distinct elements of keys in first-seen order.
func firstSeen(keys []int64) []int64 {
	seen := make(map[int64]bool)
	var r []int64
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			r = append(r, k)
		}
	}
	return r
}

func keysOf(d *Dict) []int64 {
	var r []int64
	d.All(func(k, _ Value) bool {
		r = append(r, k.(*testInt).n)
		return true
	})
	return r
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fromInts(keys []int64) *Dict {
	d := New(&testHost{})
	for i, k := range keys {
		if err := d.SetItem(num(k), num(int64(i))); err != nil {
			panic(err)
		}
	}
	return d
}

func TestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	keysGen := gen.SliceOf(gen.Int64Range(0, 64))

	properties.Property("iteration follows first insertion", prop.ForAll(
		func(keys []int64) bool {
			d := fromInts(keys)
			return d.Len() == len(firstSeen(keys)) && equalInts(firstSeen(keys), keysOf(d))
		},
		keysGen,
	))

	properties.Property("delete then insert moves a key to the end", prop.ForAll(
		func(keys []int64, victim int64) bool {
			d := fromInts(keys)
			ok, err := d.Contains(num(victim))
			if err != nil || !ok {
				return err == nil
			}
			if err := d.DelItem(num(victim)); err != nil {
				return false
			}
			if err := d.SetItem(num(victim), nil); err != nil {
				return false
			}
			got := keysOf(d)
			return len(got) > 0 && got[len(got)-1] == victim
		},
		keysGen, gen.Int64Range(0, 64),
	))

	properties.Property("popitem drains in insertion order", prop.ForAll(
		func(keys []int64) bool {
			d := fromInts(keys)
			var popped []int64
			for d.Len() > 0 {
				k, _, err := d.PopItem()
				if err != nil {
					return false
				}
				popped = append(popped, k.(*testInt).n)
			}
			_, _, err := d.PopItem()
			return err != nil && equalInts(firstSeen(keys), popped)
		},
		keysGen,
	))

	properties.Property("copy is equal and independent", prop.ForAll(
		func(keys []int64) bool {
			d := fromInts(keys)
			c := d.Copy()
			eq, err := c.Equal(d)
			if err != nil || !eq || c.Size() != (Size{Live: d.Len(), Total: d.Len()}) {
				return false
			}
			if err := c.SetItem(num(-1), nil); err != nil {
				return false
			}
			eq, err = c.Equal(d)
			return err == nil && !eq && d.Len() == len(firstSeen(keys))
		},
		keysGen,
	))

	properties.Property("live never exceeds total", prop.ForAll(
		func(keys []int64, deletes []int64) bool {
			d := fromInts(keys)
			for _, k := range deletes {
				_ = d.DelItem(num(k))
				s := d.Size()
				if s.Live > s.Total || s.Live != d.Len() {
					return false
				}
			}
			return true
		},
		keysGen, keysGen,
	))

	properties.TestingRun(t)
}
