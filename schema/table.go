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

package schema

import (
	"strconv"
	"strings"
	"time"

	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/proto"
)

type FieldType string

const (
	FieldTypeText      = FieldType("text")
	FieldTypeInteger   = FieldType("integer")
	FieldTypeBoolean   = FieldType("boolean")
	FieldTypeTimestamp = FieldType("timestamp")
	FieldTypeLink      = FieldType("link")

	termsStoreSuffix = "_Terms"
)

type FieldDef struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Collection marks a multi-valued scalar. Links are always multi-valued.
	Collection bool   `json:"collection"`
	Analyzer   string `json:"analyzer"`
	// Sharded links of a sharded extent table are stored in the terms store of
	// the owner, one row per shard of the target.
	Sharded bool   `json:"sharded"`
	Inverse string `json:"inverse"`
	Extent  string `json:"extent"`

	analyzer Analyzer
}

func (f *FieldDef) IsLink() bool {
	return f.Type == FieldTypeLink
}

func (f *FieldDef) IsScalar() bool {
	return !f.IsLink()
}

func (f *FieldDef) IsCollection() bool {
	return f.Collection || f.IsLink()
}

func (f *FieldDef) GetAnalyzer() Analyzer {
	return f.analyzer
}

func (f *FieldDef) init(table string) error {
	if f.Name == "" || strings.HasPrefix(f.Name, "_") || strings.HasPrefix(f.Name, "~") ||
		strings.ContainsAny(f.Name, "/\x00") {
		return apierrors.NewValidationError("invalid field name: %q", f.Name)
	}
	// a numeric name would read as the shard prefix of a terms row
	if _, err := strconv.Atoi(f.Name); err == nil {
		return apierrors.NewValidationError("field name can not be a number: %q", f.Name)
	}
	switch f.Type {
	case FieldTypeText, FieldTypeInteger, FieldTypeBoolean, FieldTypeTimestamp:
	case FieldTypeLink:
		if f.Extent == "" {
			f.Extent = table
		}
		f.analyzer = nullAnalyzer{}
		return nil
	case "":
		f.Type = FieldTypeText
	default:
		return apierrors.ErrUnknownFieldType
	}

	if f.Analyzer == "" {
		f.Analyzer = defaultAnalyzer(f.Type)
	}
	analyzer, err := GetAnalyzer(f.Analyzer)
	if err != nil {
		return err
	}
	f.analyzer = analyzer
	return nil
}

func defaultAnalyzer(t FieldType) string {
	switch t {
	case FieldTypeInteger:
		return AnalyzerInteger
	case FieldTypeBoolean:
		return AnalyzerBoolean
	case FieldTypeTimestamp:
		return AnalyzerOpaque
	default:
		return AnalyzerText
	}
}

type TableDef struct {
	Name     string          `json:"name"`
	Sharding *ShardingConfig `json:"sharding"`
	Fields   []*FieldDef     `json:"fields"`

	fields map[string]*FieldDef
}

// Init validates the definition and fills in defaults. It must be called
// before the table is used.
func (t *TableDef) Init() error {
	if t.Name == "" || strings.ContainsAny(t.Name, "/\x00") || strings.HasSuffix(t.Name, termsStoreSuffix) {
		return apierrors.NewValidationError("invalid table name: %q", t.Name)
	}
	t.fields = make(map[string]*FieldDef, len(t.Fields))
	for _, f := range t.Fields {
		if _, ok := t.fields[f.Name]; ok {
			return apierrors.NewValidationError("duplicate field: %q", f.Name)
		}
		if err := f.init(t.Name); err != nil {
			return err
		}
		t.fields[f.Name] = f
	}

	if t.Sharding == nil {
		return nil
	}
	if err := t.Sharding.init(); err != nil {
		return err
	}
	sf := t.fields[t.Sharding.Field]
	if sf == nil || sf.Type != FieldTypeTimestamp || sf.Collection {
		return apierrors.ErrInvalidSharding
	}
	return nil
}

// Field returns the definition of name, or nil when the table has no such field.
func (t *TableDef) Field(name string) *FieldDef {
	return t.fields[name]
}

func (t *TableDef) LinkFields() []*FieldDef {
	var ret []*FieldDef
	for _, f := range t.Fields {
		if f.IsLink() {
			ret = append(ret, f)
		}
	}
	return ret
}

func (t *TableDef) IsSharded() bool {
	return t.Sharding != nil
}

func (t *TableDef) ShardingField() string {
	if t.Sharding == nil {
		return ""
	}
	return t.Sharding.Field
}

// ComputeShardNumber returns the shard of an object whose sharding field holds
// value. Objects without a value, and all objects of unsharded tables, live in
// shard 0.
func (t *TableDef) ComputeShardNumber(value string) (int, error) {
	if t.Sharding == nil || value == "" {
		return 0, nil
	}
	ts, err := ParseTimestamp(value)
	if err != nil {
		return 0, err
	}
	return t.Sharding.shardNumber(ts), nil
}

// ObjectShard returns the shard of obj according to its sharding field.
func (t *TableDef) ObjectShard(obj *proto.Object) (int, error) {
	if t.Sharding == nil {
		return 0, nil
	}
	return t.ComputeShardNumber(obj.Value(t.Sharding.Field))
}

// ShardStart returns the first instant covered by shard n, n >= 1.
func (t *TableDef) ShardStart(n int) time.Time {
	if t.Sharding == nil {
		return time.Time{}
	}
	return t.Sharding.shardStart(n)
}

func (t *TableDef) ObjectsStore() string {
	return t.Name
}

func (t *TableDef) TermsStore() string {
	return t.Name + termsStoreSuffix
}
