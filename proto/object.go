// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

import "sort"

const IDField = "_ID"

// Object is a document of named fields. Values holds the values to set: a
// single value for SV scalars, values to add for MV scalars and links.
// Removes holds the values to remove from MV scalars and links.
type Object struct {
	ID      string              `json:"_ID,omitempty"`
	Values  map[string][]string `json:"values,omitempty"`
	Removes map[string][]string `json:"removes,omitempty"`
}

func NewObject(id string) *Object {
	return &Object{
		ID:      id,
		Values:  make(map[string][]string),
		Removes: make(map[string][]string),
	}
}

func (o *Object) SetValue(field, value string) *Object {
	o.init()
	o.Values[field] = []string{value}
	return o
}

func (o *Object) AddValues(field string, values ...string) *Object {
	o.init()
	o.Values[field] = append(o.Values[field], values...)
	return o
}

func (o *Object) RemoveValues(field string, values ...string) *Object {
	o.init()
	o.Removes[field] = append(o.Removes[field], values...)
	return o
}

// Value returns the first value of field, or "" when it has none.
func (o *Object) Value(field string) string {
	if field == IDField {
		return o.ID
	}
	if vs := o.Values[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (o *Object) GetValues(field string) []string {
	return o.Values[field]
}

func (o *Object) GetRemoveValues(field string) []string {
	return o.Removes[field]
}

func (o *Object) HasField(field string) bool {
	if field == IDField {
		return o.ID != ""
	}
	_, ok := o.Values[field]
	if !ok {
		_, ok = o.Removes[field]
	}
	return ok
}

// FieldNames returns the names of every field the object carries, sorted.
func (o *Object) FieldNames() []string {
	names := make([]string, 0, len(o.Values)+len(o.Removes))
	for name := range o.Values {
		names = append(names, name)
	}
	for name := range o.Removes {
		if _, ok := o.Values[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (o *Object) init() {
	if o.Values == nil {
		o.Values = make(map[string][]string)
	}
	if o.Removes == nil {
		o.Removes = make(map[string][]string)
	}
}
