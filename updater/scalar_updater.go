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

package updater

import (
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"github.com/cubefs/objectdb/util"
)

// scalarUpdater maintains a scalar column and its term index. SV fields are
// replaced, MV fields are changed through their add and remove sets.
type scalarUpdater struct {
	ou    *ObjectUpdater
	field *schema.FieldDef
}

func (u *scalarUpdater) AddValuesForField() error {
	values := u.newValues(nil)
	if len(values) == 0 {
		return nil
	}
	terms, err := u.analyze(values)
	if err != nil {
		return err
	}
	u.writeValue(values)
	u.indexTerms(terms)
	return nil
}

func (u *scalarUpdater) UpdateValuesForField(current string) (bool, error) {
	var oldValues []string
	if u.field.IsCollection() {
		oldValues = txn.DecodeValues(current)
	} else if current != "" {
		oldValues = []string{current}
	}
	newValues := u.newValues(oldValues)
	if u.encode(newValues) == current {
		return false, nil
	}

	newTerms, err := u.analyze(newValues)
	if err != nil {
		return false, err
	}
	// a stored value that no longer analyzes has no terms left to remove
	oldTerms, err := u.analyze(oldValues)
	if err != nil {
		oldTerms = nil
	}

	if len(newValues) == 0 {
		u.ou.tran.DeleteScalarValueColumn(u.ou.table, u.ou.obj.ID, u.field.Name)
	} else {
		u.writeValue(newValues)
	}
	oldSet, newSet := util.NewStringSet(oldTerms...), util.NewStringSet(newTerms...)
	u.unindexTerms(oldSet.Minus(newSet).Sorted())
	u.indexTerms(newSet.Minus(oldSet).Sorted())
	return true, nil
}

func (u *scalarUpdater) DeleteValuesForField() error {
	values := u.ou.current.GetValues(u.field.Name)
	terms, err := u.analyze(values)
	if err != nil {
		terms = nil
	}
	u.ou.tran.DeleteScalarValueColumn(u.ou.table, u.ou.current.ID, u.field.Name)
	u.unindexTerms(terms)
	return nil
}

// newValues returns the values of the field once the incoming object is
// applied over old.
func (u *scalarUpdater) newValues(old []string) []string {
	obj := u.ou.obj
	if !u.field.IsCollection() {
		if v := obj.Value(u.field.Name); v != "" {
			return []string{v}
		}
		return nil
	}
	set := util.NewStringSet(old...)
	set.Add(obj.GetValues(u.field.Name)...)
	set.Remove(obj.GetRemoveValues(u.field.Name)...)
	set.Remove("")
	return set.Sorted()
}

func (u *scalarUpdater) encode(values []string) string {
	if u.field.IsCollection() {
		return txn.EncodeValues(values)
	}
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (u *scalarUpdater) analyze(values []string) ([]string, error) {
	if u.field.Type == schema.FieldTypeTimestamp {
		for _, v := range values {
			if _, err := schema.ParseTimestamp(v); err != nil {
				return nil, err
			}
		}
	}
	return schema.AnalyzeValues(u.field.GetAnalyzer(), values)
}

func (u *scalarUpdater) writeValue(values []string) {
	u.ou.tran.AddScalarValueColumn(u.ou.table, u.ou.obj.ID, u.field.Name, u.encode(values))
	u.ou.tran.AddFieldReference(u.ou.table, u.field.Name)
}

func (u *scalarUpdater) indexTerms(terms []string) {
	for _, term := range terms {
		u.ou.tran.AddTermIndexColumn(u.ou.table, u.ou.obj.ID, u.ou.shardNo, u.field.Name, term)
		u.ou.tran.AddTermReference(u.ou.table, u.ou.shardNo, u.field.Name, term)
	}
}

func (u *scalarUpdater) unindexTerms(terms []string) {
	for _, term := range terms {
		u.ou.tran.DeleteTermIndexColumn(u.ou.table, u.ou.objectID(), u.ou.shardNo, u.field.Name, term)
	}
}
