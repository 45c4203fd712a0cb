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
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/google/uuid"

	"github.com/cubefs/objectdb/catalog"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/metrics"
	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/query"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"github.com/cubefs/objectdb/util"
)

const (
	opAdd    = "add"
	opUpdate = "update"
	opDelete = "delete"
)

// batchEnv is the state shared by every object of one batch.
type batchEnv struct {
	catalog    *catalog.Catalog
	reader     *query.Reader
	shardCache *catalog.ShardCache

	// table name => object id => shard, for targets of sharded links
	targetShards map[string]map[string]int
	// table name => ids whose links changed earlier in the batch
	touched map[string]util.StringSet
}

func newBatchEnv(c *catalog.Catalog, reader *query.Reader) *batchEnv {
	return &batchEnv{
		catalog:      c,
		reader:       reader,
		shardCache:   c.ShardCache(),
		targetShards: make(map[string]map[string]int),
		touched:      make(map[string]util.StringSet),
	}
}

// prefetchShards loads the shards of ids in one read. Ids of objects that do
// not exist are remembered in shard 0.
func (e *batchEnv) prefetchShards(ctx context.Context, table *schema.TableDef, ids []string) error {
	if !table.IsSharded() || len(ids) == 0 {
		return nil
	}
	found, err := e.reader.GetShardNumbers(ctx, table, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.setShard(table.Name, id, found[id])
	}
	return nil
}

// targetShard returns the shard of object id of table, reading it from the
// store when it was not prefetched.
func (e *batchEnv) targetShard(ctx context.Context, table *schema.TableDef, id string) (int, error) {
	if !table.IsSharded() {
		return 0, nil
	}
	if n, ok := e.targetShards[table.Name][id]; ok {
		return n, nil
	}
	if err := e.prefetchShards(ctx, table, []string{id}); err != nil {
		return 0, err
	}
	return e.targetShards[table.Name][id], nil
}

func (e *batchEnv) setShard(table, id string, n int) {
	shards, ok := e.targetShards[table]
	if !ok {
		shards = make(map[string]int)
		e.targetShards[table] = shards
	}
	shards[id] = n
}

func (e *batchEnv) touch(table, id string) {
	set, ok := e.touched[table]
	if !ok {
		set = util.NewStringSet()
		e.touched[table] = set
	}
	set.Add(id)
}

func (e *batchEnv) isTouched(table, id string) bool {
	return e.touched[table].Contains(id)
}

// ObjectUpdater applies one object to the parent transaction of a batch. All
// mutations go to a private transaction first, which is merged into the parent
// only when every field succeeded.
type ObjectUpdater struct {
	ctx    context.Context
	env    *batchEnv
	table  *schema.TableDef
	parent *txn.Transaction

	tran     *txn.Transaction
	obj      *proto.Object
	current  *proto.Object
	snapshot *query.Snapshot
	shardNo  int
	// set while the old copy of a migrating object is removed
	migrating bool
}

func newObjectUpdater(ctx context.Context, env *batchEnv, table *schema.TableDef, parent *txn.Transaction) *ObjectUpdater {
	return &ObjectUpdater{ctx: ctx, env: env, table: table, parent: parent}
}

func (ou *ObjectUpdater) objectID() string {
	if ou.obj != nil && ou.obj.ID != "" {
		return ou.obj.ID
	}
	if ou.current != nil {
		return ou.current.ID
	}
	return ""
}

// AddNewObject writes obj as a new object, generating its id when absent.
func (ou *ObjectUpdater) AddNewObject(obj *proto.Object) (*proto.ObjectResult, error) {
	ou.reset(obj, nil)
	return ou.run(opAdd, func() (bool, error) {
		if obj.ID == "" {
			obj.ID = uuid.NewString()
		}
		if err := ou.validateKeys(obj); err != nil {
			return false, err
		}
		if err := ou.addObject(obj); err != nil {
			return false, err
		}
		return true, nil
	})
}

// UpdateObject applies obj over the stored object described by snap. An object
// whose shard changes is moved: the stored copy is deleted from its old shard
// and the merged object is written to the new one.
func (ou *ObjectUpdater) UpdateObject(obj *proto.Object, snap *query.Snapshot) (*proto.ObjectResult, error) {
	ou.reset(obj, snap)
	return ou.run(opUpdate, func() (bool, error) {
		if obj.ID == "" {
			return false, apierrors.NewValidationError("object of table %s has no %s", ou.table.Name, proto.IDField)
		}
		if err := ou.validateKeys(obj); err != nil {
			return false, err
		}
		idu, _ := newFieldUpdater(ou, proto.IDField)
		if _, err := idu.UpdateValuesForField(snap.ID); err != nil {
			return false, err
		}

		oldShard, newShard, err := ou.shards(obj, snap)
		if err != nil {
			return false, err
		}
		if oldShard != newShard {
			return true, ou.migrate(obj, oldShard, newShard)
		}

		ou.shardNo = oldShard
		updated := false
		for _, name := range obj.FieldNames() {
			fu, err := newFieldUpdater(ou, name)
			if err != nil {
				return false, err
			}
			changed, err := fu.UpdateValuesForField(snap.Scalars[name])
			if err != nil {
				return false, err
			}
			updated = updated || changed
		}
		return updated, nil
	})
}

// DeleteObject removes object id with everything derived from it. A missing
// object gives a not found result.
func (ou *ObjectUpdater) DeleteObject(id string) (*proto.ObjectResult, error) {
	ou.reset(proto.NewObject(id), nil)
	return ou.run(opDelete, func() (bool, error) {
		if id == "" {
			return false, apierrors.NewValidationError("object of table %s has no %s", ou.table.Name, proto.IDField)
		}
		if !validKey(id) {
			return false, apierrors.NewValidationError("%s of table %s contains NUL", proto.IDField, ou.table.Name)
		}
		current, err := ou.env.reader.GetObject(ou.ctx, ou.table, id)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, apierrors.ErrObjectNotFound
		}
		ou.current = current
		ou.shardNo = ou.storedShard(current)
		if err := ou.deleteFields(current); err != nil {
			return false, err
		}
		ou.tran.DeleteObjectRow(ou.table, id)
		return true, nil
	})
}

func (ou *ObjectUpdater) reset(obj *proto.Object, snap *query.Snapshot) {
	ou.tran = txn.NewTransaction(ou.ctx)
	ou.obj = obj
	ou.current = nil
	ou.snapshot = snap
	ou.shardNo = 0
	ou.migrating = false
}

// run executes fn in the private transaction and turns its outcome into an
// object result. Only column store failures are returned as errors.
func (ou *ObjectUpdater) run(op string, fn func() (bool, error)) (ret *proto.ObjectResult, err error) {
	span := trace.SpanFromContextSafe(ou.ctx)
	defer func() {
		if r := recover(); r != nil {
			span.Errorf("%s object %s of table %s panicked: %v", op, ou.objectID(), ou.table.Name, r)
			ret = &proto.ObjectResult{
				ObjectID: ou.objectID(),
				Status:   proto.StatusError,
				Message:  fmt.Sprint(r),
				Detail:   string(debug.Stack()),
			}
			err = nil
		}
		if ret != nil {
			metrics.ObjectResults.WithLabelValues(op, ret.Status.String()).Inc()
		}
	}()

	updated, ferr := fn()
	ret = &proto.ObjectResult{ObjectID: ou.objectID()}
	switch {
	case ferr == nil:
		ou.parent.MergeSubTransaction(ou.tran)
		ret.Updated = updated
		if op != opDelete {
			ou.env.setShard(ou.table.Name, ret.ObjectID, ou.shardNo)
		}
	case apierrors.IsStoreError(ferr):
		span.Errorf("%s object %s of table %s failed: %s", op, ret.ObjectID, ou.table.Name, errors.Detail(ferr))
		return nil, ferr
	case ferr == apierrors.ErrObjectNotFound:
		ret.Status = proto.StatusNotFound
		ret.Message = ferr.Error()
	case apierrors.IsValidation(ferr):
		span.Debugf("%s object %s of table %s rejected: %s", op, ret.ObjectID, ou.table.Name, ferr)
		ret.Status = proto.StatusError
		ret.Message = ferr.Error()
	default:
		span.Warnf("%s object %s of table %s failed: %s", op, ret.ObjectID, ou.table.Name, errors.Detail(ferr))
		ret.Status = proto.StatusError
		ret.Message = ferr.Error()
		ret.Detail = errors.Detail(ferr)
	}
	return ret, nil
}

// validateKeys rejects NUL in the id and in every value of obj. The kv column
// store separates row and column with NUL.
func (ou *ObjectUpdater) validateKeys(obj *proto.Object) error {
	if !validKey(obj.ID) {
		return apierrors.NewValidationError("%s of table %s contains NUL", proto.IDField, ou.table.Name)
	}
	for _, values := range []map[string][]string{obj.Values, obj.Removes} {
		for name, vs := range values {
			for _, v := range vs {
				if !validKey(v) {
					return apierrors.NewValidationError("field %s of object %s contains NUL", name, obj.ID)
				}
			}
		}
	}
	return nil
}

func validKey(s string) bool {
	return strings.IndexByte(s, 0) < 0
}

func (ou *ObjectUpdater) addObject(obj *proto.Object) error {
	shardNo, err := ou.table.ObjectShard(obj)
	if err != nil {
		return err
	}
	updaters, err := ou.fieldUpdaters(obj.FieldNames())
	if err != nil {
		return err
	}
	if shardNo > 0 {
		if err := ou.env.shardCache.VerifyShard(ou.ctx, ou.table, shardNo); err != nil {
			return err
		}
	}
	ou.shardNo = shardNo

	idu, _ := newFieldUpdater(ou, proto.IDField)
	if err := idu.AddValuesForField(); err != nil {
		return err
	}
	for _, fu := range updaters {
		if err := fu.AddValuesForField(); err != nil {
			return err
		}
	}
	return nil
}

// deleteFields removes every field of current at ou.shardNo. Link fields are
// visited even without values so that their sharded rows get purged.
func (ou *ObjectUpdater) deleteFields(current *proto.Object) error {
	names := util.NewStringSet(current.FieldNames()...)
	for _, f := range ou.table.LinkFields() {
		names.Add(f.Name)
	}
	names.Add(proto.IDField)
	for _, name := range names.Sorted() {
		if ou.table.Field(name) == nil && name != proto.IDField {
			continue
		}
		fu, err := newFieldUpdater(ou, name)
		if err != nil {
			return err
		}
		if err := fu.DeleteValuesForField(); err != nil {
			return err
		}
	}
	return nil
}

func (ou *ObjectUpdater) migrate(obj *proto.Object, oldShard, newShard int) error {
	span := trace.SpanFromContextSafe(ou.ctx)
	if _, err := ou.fieldUpdaters(obj.FieldNames()); err != nil {
		return err
	}
	current, err := ou.env.reader.GetObject(ou.ctx, ou.table, obj.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return ou.addObject(obj)
	}
	span.Debugf("move object %s of table %s from shard %d to %d", obj.ID, ou.table.Name, oldShard, newShard)

	ou.current = current
	ou.shardNo = oldShard
	ou.migrating = true
	if err := ou.deleteFields(current); err != nil {
		return err
	}
	ou.migrating = false

	merged := mergeObject(ou.table, current, obj)
	ou.obj = merged
	ou.current = nil
	return ou.addObject(merged)
}

// shards returns the shard the stored object lives in and the shard it moves
// to once obj is applied.
func (ou *ObjectUpdater) shards(obj *proto.Object, snap *query.Snapshot) (int, int, error) {
	if !ou.table.IsSharded() {
		return 0, 0, nil
	}
	field := ou.table.ShardingField()
	oldShard, err := ou.table.ComputeShardNumber(snap.Scalars[field])
	if err != nil {
		trace.SpanFromContextSafe(ou.ctx).Warnf("object %s of table %s has invalid sharding value %q",
			obj.ID, ou.table.Name, snap.Scalars[field])
		oldShard = 0
	}
	if !obj.HasField(field) {
		return oldShard, oldShard, nil
	}
	newShard, err := ou.table.ComputeShardNumber(obj.Value(field))
	if err != nil {
		return 0, 0, err
	}
	return oldShard, newShard, nil
}

func (ou *ObjectUpdater) storedShard(obj *proto.Object) int {
	n, err := ou.table.ObjectShard(obj)
	if err != nil {
		trace.SpanFromContextSafe(ou.ctx).Warnf("object %s of table %s has invalid sharding value: %s",
			obj.ID, ou.table.Name, err)
		return 0
	}
	return n
}

func (ou *ObjectUpdater) fieldUpdaters(names []string) ([]FieldUpdater, error) {
	updaters := make([]FieldUpdater, 0, len(names))
	for _, name := range names {
		if name == proto.IDField {
			continue
		}
		fu, err := newFieldUpdater(ou, name)
		if err != nil {
			return nil, err
		}
		updaters = append(updaters, fu)
	}
	return updaters, nil
}

// mergeObject applies obj over current: SV scalars are replaced, an empty value
// drops them, MV scalars and links take their add and remove sets.
func mergeObject(table *schema.TableDef, current, obj *proto.Object) *proto.Object {
	merged := proto.NewObject(current.ID)
	names := util.NewStringSet(current.FieldNames()...)
	names.Add(obj.FieldNames()...)
	for _, name := range names.Sorted() {
		f := table.Field(name)
		if f == nil {
			continue
		}
		if f.IsLink() || f.IsCollection() {
			set := util.NewStringSet(current.GetValues(name)...)
			set.Add(obj.GetValues(name)...)
			set.Remove(obj.GetRemoveValues(name)...)
			set.Remove("")
			if len(set) > 0 {
				merged.AddValues(name, set.Sorted()...)
			}
			continue
		}
		v := current.Value(name)
		if obj.HasField(name) {
			v = obj.Value(name)
		}
		if v != "" {
			merged.SetValue(name, v)
		}
	}
	return merged
}
