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
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/txn"
)

// FieldUpdater writes the mutations of one field of one object into the
// private transaction of its ObjectUpdater.
type FieldUpdater interface {
	// AddValuesForField writes the field of a new object.
	AddValuesForField() error
	// UpdateValuesForField applies the field of the incoming object over the
	// stored value current and reports whether anything changed.
	UpdateValuesForField(current string) (bool, error)
	// DeleteValuesForField removes the field of the current object along with
	// everything derived from it.
	DeleteValuesForField() error
}

func newFieldUpdater(ou *ObjectUpdater, name string) (FieldUpdater, error) {
	if name == proto.IDField {
		return &idUpdater{ou: ou}, nil
	}
	if txn.IsSystemField(name) {
		return nullUpdater{}, nil
	}
	f := ou.table.Field(name)
	if f == nil {
		return nil, apierrors.WrapValidation(apierrors.ErrUnknownField, "%s of table %s", name, ou.table.Name)
	}
	if f.IsLink() {
		return newLinkUpdater(ou, f)
	}
	return &scalarUpdater{ou: ou, field: f}, nil
}

// nullUpdater serves system fields that carry no data.
type nullUpdater struct{}

func (nullUpdater) AddValuesForField() error { return nil }

func (nullUpdater) UpdateValuesForField(current string) (bool, error) { return false, nil }

func (nullUpdater) DeleteValuesForField() error { return nil }

type idUpdater struct {
	ou *ObjectUpdater
}

func (u *idUpdater) AddValuesForField() error {
	u.ou.tran.AddIDValueColumn(u.ou.table, u.ou.obj.ID)
	u.ou.tran.AddAllObjectsColumn(u.ou.table, u.ou.obj.ID, u.ou.shardNo)
	return nil
}

// UpdateValuesForField rejects any attempt to assign a different id.
func (u *idUpdater) UpdateValuesForField(current string) (bool, error) {
	values, ok := u.ou.obj.Values[proto.IDField]
	if !ok {
		return false, nil
	}
	if len(values) != 1 || values[0] != u.ou.obj.ID || (current != "" && current != u.ou.obj.ID) {
		return false, apierrors.NewValidationError("field %s of object %s can not be changed", proto.IDField, u.ou.obj.ID)
	}
	return false, nil
}

func (u *idUpdater) DeleteValuesForField() error {
	u.ou.tran.DeleteAllObjectsColumn(u.ou.table, u.ou.current.ID, u.ou.shardNo)
	return nil
}
