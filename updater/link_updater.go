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
	"github.com/cubefs/objectdb/util"
)

// linkUpdater maintains the edges of a link field together with their inverse
// edges in the extent table.
//
// A forward edge is kept in the terms store of the owner table, in the row of
// the target's shard, when the link is sharded and the target lives in a shard
// above 0. Otherwise it is a column of the owner row. Inverse edges follow the
// same rule with the owner's shard.
type linkUpdater struct {
	ou      *ObjectUpdater
	field   *schema.FieldDef
	extent  *schema.TableDef
	inverse *schema.FieldDef

	shardedForward bool
	shardedInverse bool
}

func newLinkUpdater(ou *ObjectUpdater, f *schema.FieldDef) (FieldUpdater, error) {
	extent, err := ou.env.catalog.GetTable(f.Extent)
	if err != nil {
		return nil, err
	}
	u := &linkUpdater{
		ou:             ou,
		field:          f,
		extent:         extent,
		shardedForward: f.Sharded && extent.IsSharded(),
	}
	if f.Inverse != "" {
		u.inverse = extent.Field(f.Inverse)
		u.shardedInverse = u.inverse != nil && u.inverse.Sharded && ou.table.IsSharded()
	}
	return u, nil
}

func (u *linkUpdater) AddValuesForField() error {
	adds, _ := u.changes()
	for _, target := range adds.Sorted() {
		if err := u.addTarget(target); err != nil {
			return err
		}
	}
	return nil
}

// UpdateValuesForField compares the changes against the targets read before
// the batch started. Adds of targets already present are skipped unless the
// object was touched earlier in the batch, since the snapshot may be stale
// then. Removes of absent targets are dropped under the same condition.
func (u *linkUpdater) UpdateValuesForField(current string) (bool, error) {
	adds, removes := u.changes()
	present := util.NewStringSet()
	if u.ou.snapshot != nil {
		present = u.ou.snapshot.LinkTargets(u.field.Name)
	}
	touched := u.ou.env.isTouched(u.ou.table.Name, u.ou.obj.ID)

	changed := false
	for _, target := range adds.Sorted() {
		if present.Contains(target) && !touched {
			continue
		}
		if !present.Contains(target) {
			changed = true
		}
		if err := u.addTarget(target); err != nil {
			return false, err
		}
	}
	for _, target := range removes.Sorted() {
		if !present.Contains(target) && !touched {
			continue
		}
		if present.Contains(target) {
			changed = true
		}
		if err := u.removeTarget(target); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// DeleteValuesForField removes every current edge. Outside of a shard
// migration the sharded rows of the link are purged in every shard of the
// extent table as well.
func (u *linkUpdater) DeleteValuesForField() error {
	for _, target := range u.ou.current.GetValues(u.field.Name) {
		if err := u.removeTarget(target); err != nil {
			return err
		}
	}
	if !u.shardedForward || u.ou.migrating {
		return nil
	}
	shards, err := u.ou.env.reader.Shards(u.ou.ctx, u.extent)
	if err != nil {
		return err
	}
	for _, n := range shards {
		u.ou.tran.DeleteShardedLinkRow(u.ou.table, u.ou.current.ID, u.field.Name, n)
	}
	return nil
}

// changes returns the targets to add and to remove. A target both added and
// removed by the same object cancels out.
func (u *linkUpdater) changes() (adds, removes util.StringSet) {
	adds = util.NewStringSet(u.ou.obj.GetValues(u.field.Name)...)
	removes = util.NewStringSet(u.ou.obj.GetRemoveValues(u.field.Name)...)
	both := adds.Minus(adds.Minus(removes))
	for target := range both {
		adds.Remove(target)
		removes.Remove(target)
	}
	adds.Remove("")
	removes.Remove("")
	return
}

func (u *linkUpdater) addTarget(target string) error {
	ou := u.ou
	owner := ou.obj.ID
	targetShard, err := ou.env.targetShard(ou.ctx, u.extent, target)
	if err != nil {
		return err
	}

	if u.shardedForward && targetShard > 0 {
		ou.tran.AddShardedLinkValue(ou.table, owner, u.field.Name, target, targetShard)
	} else {
		ou.tran.AddLinkValue(ou.table, owner, u.field.Name, target)
	}
	if u.inverse != nil {
		if u.shardedInverse && ou.shardNo > 0 {
			ou.tran.AddShardedLinkValue(u.extent, target, u.inverse.Name, owner, ou.shardNo)
		} else {
			ou.tran.AddLinkValue(u.extent, target, u.inverse.Name, owner)
		}
	}
	ou.tran.AddIDValueColumn(u.extent, target)
	ou.tran.AddAllObjectsColumn(u.extent, target, targetShard)
	ou.env.touch(u.extent.Name, target)
	return nil
}

func (u *linkUpdater) removeTarget(target string) error {
	ou := u.ou
	owner := ou.objectID()
	targetShard, err := ou.env.targetShard(ou.ctx, u.extent, target)
	if err != nil {
		return err
	}

	if u.shardedForward && targetShard > 0 {
		ou.tran.DeleteShardedLinkValue(ou.table, owner, u.field.Name, target, targetShard)
	} else {
		ou.tran.DeleteLinkValue(ou.table, owner, u.field.Name, target)
	}
	if u.inverse != nil {
		if u.shardedInverse && ou.shardNo > 0 {
			ou.tran.DeleteShardedLinkValue(u.extent, target, u.inverse.Name, owner, ou.shardNo)
		} else {
			ou.tran.DeleteLinkValue(u.extent, target, u.inverse.Name, owner)
		}
	}
	ou.env.touch(u.extent.Name, target)
	return nil
}
