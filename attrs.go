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
	"github.com/cockroachdb/errors"
	"github.com/elliotchance/orderedmap/v2"
)

// Attributes is a string-keyed, insertion-ordered attribute table, used when
// a Dict backs a namespace such as a module's globals.
type Attributes = orderedmap.OrderedMap[string, Value]

// ToAttributes converts d into an attribute table, preserving order. Every
// key must be a host string.
func (d *Dict) ToAttributes() (*Attributes, error) {
	attrs := orderedmap.NewOrderedMap[string, Value]()
	for pos := 0; ; {
		key, value, ok := d.table.NextEntry(&pos)
		if !ok {
			return attrs, nil
		}
		name, ok := d.host.Str(key)
		if !ok {
			return nil, errors.Mark(errors.Newf("attribute name must be a string, not %v", key), ErrAttributeKey)
		}
		attrs.Set(name, value)
	}
}

// FromAttributes builds a Dict from an attribute table, in its order.
func FromAttributes(host Host, attrs *Attributes, options ...option) (*Dict, error) {
	opts := append([]option{WithInitialCapacity(attrs.Len())}, options...)
	d := New(host, opts...)
	for el := attrs.Front(); el != nil; el = el.Next() {
		if err := d.table.Insert(host.NewStr(el.Key), el.Value); err != nil {
			return nil, err
		}
	}
	return d, nil
}
