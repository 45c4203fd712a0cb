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

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/objectdb/catalog"
	"github.com/cubefs/objectdb/common/colstore"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/metrics"
	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/query"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"github.com/cubefs/objectdb/util"
)

const defaultBatchMutationThreshold = 10000

type Config struct {
	// BatchMutationThreshold is the number of queued mutations that triggers
	// an intermediate commit in the middle of a batch.
	BatchMutationThreshold int `json:"batch_mutation_threshold"`
}

// BatchUpdater applies batches of objects to one table. Objects are processed
// in order and the queued mutations are committed whenever they reach the
// threshold. A failed batch is never rolled back: the commits it already
// made stay applied and are counted in BatchResult.Commits.
type BatchUpdater struct {
	cfg     Config
	catalog *catalog.Catalog
	reader  *query.Reader
	store   colstore.Store
}

func NewBatchUpdater(cfg Config, c *catalog.Catalog, reader *query.Reader) *BatchUpdater {
	if cfg.BatchMutationThreshold <= 0 {
		cfg.BatchMutationThreshold = defaultBatchMutationThreshold
	}
	return &BatchUpdater{
		cfg:     cfg,
		catalog: c,
		reader:  reader,
		store:   c.Store(),
	}
}

// AddBatch adds objs to table. Objects whose id already exists are updated.
func (b *BatchUpdater) AddBatch(ctx context.Context, table string, objs []*proto.Object) (*proto.BatchResult, error) {
	return b.applyBatch(ctx, table, objs, false)
}

// UpdateBatch updates objs in table. Every object must carry an id, objects
// that do not exist yet are added.
func (b *BatchUpdater) UpdateBatch(ctx context.Context, table string, objs []*proto.Object) (*proto.BatchResult, error) {
	return b.applyBatch(ctx, table, objs, true)
}

// DeleteBatch deletes the objects ids from table. Missing objects give not
// found results.
func (b *BatchUpdater) DeleteBatch(ctx context.Context, table string, ids []string) (*proto.BatchResult, error) {
	span := trace.SpanFromContextSafe(ctx)
	def, err := b.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}

	env := newBatchEnv(b.catalog, b.reader)
	run := newBatchRun(ctx, len(ids))
	for _, id := range ids {
		res, err := newObjectUpdater(ctx, env, def, run.parent).DeleteObject(id)
		if err != nil {
			return b.abort(run, id, err), nil
		}
		run.ret.Results = append(run.ret.Results, res)
		if err := b.checkpoint(run); err != nil {
			return b.abort(run, "", err), nil
		}
	}
	if err := b.commit(run); err != nil {
		return b.abort(run, "", err), nil
	}
	span.Debugf("deleted %d objects of table %s in %d commits", len(ids), table, run.ret.Commits)
	return run.ret, nil
}

func (b *BatchUpdater) applyBatch(ctx context.Context, table string, objs []*proto.Object, requireID bool) (*proto.BatchResult, error) {
	span := trace.SpanFromContextSafe(ctx)
	def, err := b.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	ids, err := objectIDs(objs)
	if err != nil {
		return nil, err
	}

	env := newBatchEnv(b.catalog, b.reader)
	run := newBatchRun(ctx, len(objs))
	scalars, links := batchFields(def, objs)
	snapshots, err := b.reader.GetSnapshots(ctx, def, ids, scalars, links)
	if err != nil {
		return b.abort(run, "", err), nil
	}
	if err := b.prefetchTargetShards(ctx, env, def, objs); err != nil {
		return b.abort(run, "", err), nil
	}

	for _, obj := range objs {
		ou := newObjectUpdater(ctx, env, def, run.parent)
		var res *proto.ObjectResult
		if snap, ok := snapshots[obj.ID]; ok {
			res, err = ou.UpdateObject(obj, snap)
		} else if requireID && obj.ID == "" {
			res, err = ou.UpdateObject(obj, nil)
		} else {
			res, err = ou.AddNewObject(obj)
		}
		if err != nil {
			return b.abort(run, obj.ID, err), nil
		}
		run.ret.Results = append(run.ret.Results, res)
		if err := b.checkpoint(run); err != nil {
			return b.abort(run, "", err), nil
		}
	}
	if err := b.commit(run); err != nil {
		return b.abort(run, "", err), nil
	}
	span.Debugf("applied %d objects to table %s in %d commits", len(objs), table, run.ret.Commits)
	return run.ret, nil
}

// prefetchTargetShards loads, in one read per extent table, the shards of every
// link target the batch refers to.
func (b *BatchUpdater) prefetchTargetShards(ctx context.Context, env *batchEnv, def *schema.TableDef, objs []*proto.Object) error {
	targets := make(map[string]util.StringSet)
	for _, f := range def.LinkFields() {
		extent, err := b.catalog.GetTable(f.Extent)
		if err != nil || !extent.IsSharded() {
			continue
		}
		set, ok := targets[extent.Name]
		if !ok {
			set = util.NewStringSet()
			targets[extent.Name] = set
		}
		for _, obj := range objs {
			set.Add(obj.GetValues(f.Name)...)
			set.Add(obj.GetRemoveValues(f.Name)...)
		}
		set.Remove("")
		for v := range set {
			if !validKey(v) {
				set.Remove(v)
			}
		}
	}
	for name, set := range targets {
		if len(set) == 0 {
			continue
		}
		extent, err := b.catalog.GetTable(name)
		if err != nil {
			return err
		}
		if err := env.prefetchShards(ctx, extent, set.Sorted()); err != nil {
			return err
		}
	}
	return nil
}

// batchRun is the progress of one batch.
type batchRun struct {
	ctx    context.Context
	parent *txn.Transaction
	ret    *proto.BatchResult
	// results before this index are covered by a successful commit
	committed int
}

func newBatchRun(ctx context.Context, n int) *batchRun {
	return &batchRun{
		ctx:    ctx,
		parent: txn.NewTransaction(ctx),
		ret:    &proto.BatchResult{Results: make([]*proto.ObjectResult, 0, n)},
	}
}

func (b *BatchUpdater) checkpoint(run *batchRun) error {
	if run.parent.UpdateCount() < b.cfg.BatchMutationThreshold {
		return nil
	}
	return b.commit(run)
}

// commit flushes the parent transaction into a fresh column store
// transaction. The parent is cleared whether the commit succeeded or not.
func (b *BatchUpdater) commit(run *batchRun) error {
	parent := run.parent
	if parent.IsEmpty() {
		run.committed = len(run.ret.Results)
		return nil
	}
	span := trace.SpanFromContextSafe(run.ctx)
	count := parent.UpdateCount()
	storeTxn := b.store.StartTransaction()
	parent.ApplyUpdates(storeTxn)
	parent.Clear()
	if err := b.store.Commit(run.ctx, storeTxn); err != nil {
		metrics.Commits.WithLabelValues("failed").Inc()
		return apierrors.NewStoreError(err)
	}
	metrics.Commits.WithLabelValues("ok").Inc()
	metrics.MutationsPerCommit.Observe(float64(count))
	run.ret.Commits++
	run.committed = len(run.ret.Results)
	span.Debugf("committed %d mutations", count)
	return nil
}

// abort stops the batch on err. The object failedID, when set, is the one that
// hit err. Successful results whose mutations were never committed turn into
// errors.
func (b *BatchUpdater) abort(run *batchRun, failedID string, err error) *proto.BatchResult {
	span := trace.SpanFromContextSafe(run.ctx)
	ret := run.ret
	span.Errorf("batch aborted after %d objects and %d commits: %s", len(ret.Results), ret.Commits, errors.Detail(err))
	for _, res := range ret.Results[run.committed:] {
		if res.Status == proto.StatusOK {
			res.Status = proto.StatusError
			res.Updated = false
			res.Message = "not committed: " + err.Error()
		}
	}
	if failedID != "" {
		ret.Results = append(ret.Results, &proto.ObjectResult{
			ObjectID: failedID,
			Status:   proto.StatusError,
			Message:  err.Error(),
			Detail:   errors.Detail(err),
		})
	}
	ret.Status = proto.StatusError
	ret.Message = err.Error()
	ret.Detail = errors.Detail(err)
	return ret
}

// objectIDs returns the explicit ids of objs, rejecting duplicates.
func objectIDs(objs []*proto.Object) ([]string, error) {
	seen := util.NewStringSet()
	ids := make([]string, 0, len(objs))
	for _, obj := range objs {
		// rejected per object, never read
		if obj.ID == "" || !validKey(obj.ID) {
			continue
		}
		if seen.Contains(obj.ID) {
			return nil, apierrors.WrapValidation(apierrors.ErrDuplicateObjectID, "%s", obj.ID)
		}
		seen.Add(obj.ID)
		ids = append(ids, obj.ID)
	}
	return ids, nil
}

// batchFields returns the scalar fields, including the sharding field, and the
// link fields that objs carry.
func batchFields(def *schema.TableDef, objs []*proto.Object) (scalars, links []string) {
	scalarSet, linkSet := util.NewStringSet(), util.NewStringSet()
	if def.IsSharded() {
		scalarSet.Add(def.ShardingField())
	}
	for _, obj := range objs {
		for _, name := range obj.FieldNames() {
			f := def.Field(name)
			switch {
			case f == nil:
			case f.IsLink():
				linkSet.Add(name)
			default:
				scalarSet.Add(name)
			}
		}
	}
	return scalarSet.Sorted(), linkSet.Sorted()
}
