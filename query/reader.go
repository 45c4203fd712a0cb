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

package query

import (
	"context"
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/objectdb/catalog"
	"github.com/cubefs/objectdb/common/colstore"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/txn"
	"github.com/cubefs/objectdb/util"
)

// Snapshot is the stored state of an object before a batch changes it.
// Scalars hold stored values, MV values still joined.
type Snapshot struct {
	ID      string
	Scalars map[string]string
	Links   map[string]util.StringSet
}

func (s *Snapshot) LinkTargets(link string) util.StringSet {
	if targets, ok := s.Links[link]; ok {
		return targets
	}
	return util.NewStringSet()
}

type Reader struct {
	store   colstore.Store
	catalog *catalog.Catalog
}

func NewReader(c *catalog.Catalog) *Reader {
	return &Reader{store: c.Store(), catalog: c}
}

// IsShardedLink reports whether link values of f are kept in per shard rows of
// the terms store rather than as columns of the owner row.
func (r *Reader) IsShardedLink(f *schema.FieldDef) bool {
	if !f.IsLink() || !f.Sharded {
		return false
	}
	extent, err := r.catalog.GetTable(f.Extent)
	if err != nil {
		return false
	}
	return extent.IsSharded()
}

// LinkShards returns the shards of the extent table of a sharded link, sorted.
func (r *Reader) LinkShards(ctx context.Context, f *schema.FieldDef) ([]int, error) {
	extent, err := r.catalog.GetTable(f.Extent)
	if err != nil {
		return nil, err
	}
	return r.Shards(ctx, extent)
}

// Shards returns the registered shards of table above 0, sorted.
func (r *Reader) Shards(ctx context.Context, table *schema.TableDef) ([]int, error) {
	shardMap, err := r.catalog.ShardCache().GetShardMap(ctx, table)
	if err != nil {
		return nil, err
	}
	shards := make([]int, 0, len(shardMap))
	for n := range shardMap {
		if n > 0 {
			shards = append(shards, n)
		}
	}
	sort.Ints(shards)
	return shards, nil
}

// GetObject returns the object with every scalar and link value, or nil when
// it does not exist.
func (r *Reader) GetObject(ctx context.Context, table *schema.TableDef, id string) (*proto.Object, error) {
	iter, err := r.store.GetAllColumns(ctx, table.ObjectsStore(), id)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	cols, err := colstore.ReadColumns(iter)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}

	obj := proto.NewObject("")
	for _, col := range cols {
		if col.Name == proto.IDField {
			obj.ID = string(col.Value)
			continue
		}
		if link, target, ok := txn.ParseLinkColumn(col.Name); ok {
			obj.AddValues(link, target)
			continue
		}
		f := table.Field(col.Name)
		if f == nil || !f.IsScalar() {
			continue
		}
		if f.IsCollection() {
			obj.AddValues(f.Name, txn.DecodeValues(string(col.Value))...)
		} else {
			obj.SetValue(f.Name, string(col.Value))
		}
	}
	if obj.ID == "" {
		return nil, nil
	}

	for _, f := range table.LinkFields() {
		if !r.IsShardedLink(f) {
			continue
		}
		targets, err := r.shardedLinkTargets(ctx, table, f, []string{id})
		if err != nil {
			return nil, err
		}
		if set := targets[id]; len(set) > 0 {
			obj.AddValues(f.Name, set.Sorted()...)
		}
	}
	for name, values := range obj.Values {
		if f := table.Field(name); f != nil && f.IsLink() {
			sort.Strings(values)
			obj.Values[name] = values
		}
	}
	return obj, nil
}

// GetSnapshots reads the stored scalar values of scalarFields and the link
// targets of linkFields for every existing object of ids.
func (r *Reader) GetSnapshots(ctx context.Context, table *schema.TableDef, ids []string,
	scalarFields []string, linkFields []string) (map[string]*Snapshot, error) {
	span := trace.SpanFromContextSafe(ctx)
	ret := make(map[string]*Snapshot, len(ids))
	if len(ids) == 0 {
		return ret, nil
	}

	var cols []string
	if len(linkFields) == 0 {
		cols = append([]string{proto.IDField}, scalarFields...)
	}
	iter, err := r.store.GetRowsColumns(ctx, table.ObjectsStore(), ids, cols)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	rows, err := colstore.ReadRows(iter)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}

	wantScalar := util.NewStringSet(scalarFields...)
	wantLink := util.NewStringSet(linkFields...)
	for _, row := range rows {
		snap := &Snapshot{
			Scalars: make(map[string]string),
			Links:   make(map[string]util.StringSet),
		}
		for _, col := range row.Columns {
			if col.Name == proto.IDField {
				snap.ID = string(col.Value)
				continue
			}
			if link, target, ok := txn.ParseLinkColumn(col.Name); ok {
				if wantLink.Contains(link) {
					if _, ok := snap.Links[link]; !ok {
						snap.Links[link] = util.NewStringSet()
					}
					snap.Links[link].Add(target)
				}
				continue
			}
			if wantScalar.Contains(col.Name) {
				snap.Scalars[col.Name] = string(col.Value)
			}
		}
		if snap.ID == "" {
			continue
		}
		ret[snap.ID] = snap
	}

	for _, link := range linkFields {
		f := table.Field(link)
		if f == nil || !r.IsShardedLink(f) {
			continue
		}
		found := make([]string, 0, len(ret))
		for id := range ret {
			found = append(found, id)
		}
		targets, err := r.shardedLinkTargets(ctx, table, f, found)
		if err != nil {
			return nil, err
		}
		for id, set := range targets {
			if _, ok := ret[id].Links[link]; !ok {
				ret[id].Links[link] = util.NewStringSet()
			}
			ret[id].Links[link].Add(set.Sorted()...)
		}
	}
	span.Debugf("loaded %d snapshots of %d ids from table %s", len(ret), len(ids), table.Name)
	return ret, nil
}

// GetShardNumbers returns the shard of every existing object of ids. Objects
// of unsharded tables are all in shard 0.
func (r *Reader) GetShardNumbers(ctx context.Context, table *schema.TableDef, ids []string) (map[string]int, error) {
	span := trace.SpanFromContextSafe(ctx)
	ret := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return ret, nil
	}
	cols := []string{proto.IDField}
	if table.IsSharded() {
		cols = append(cols, table.ShardingField())
	}
	iter, err := r.store.GetRowsColumns(ctx, table.ObjectsStore(), ids, cols)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	rows, err := colstore.ReadRows(iter)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	for _, row := range rows {
		id, value := "", ""
		for _, col := range row.Columns {
			if col.Name == proto.IDField {
				id = string(col.Value)
			} else {
				value = string(col.Value)
			}
		}
		if id == "" {
			continue
		}
		n, err := table.ComputeShardNumber(value)
		if err != nil {
			span.Warnf("object %s of table %s has invalid sharding value %q", id, table.Name, value)
		}
		ret[id] = n
	}
	return ret, nil
}

// GetLinkPage returns a page of the targets of link held by owner, merged
// across every shard of the extent table when the link is sharded.
func (r *Reader) GetLinkPage(ctx context.Context, table *schema.TableDef, link, owner, cursor string,
	inclusive bool, count int) (*proto.Page, error) {
	f := table.Field(link)
	if f == nil || !f.IsLink() {
		return nil, apierrors.NewValidationError("%s is not a link of table %s", link, table.Name)
	}

	sources := []Source{{Store: table.ObjectsStore(), Row: owner, Prefix: txn.LinkColumnPrefix(link)}}
	if r.IsShardedLink(f) {
		shards, err := r.LinkShards(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, n := range shards {
			sources = append(sources, Source{Store: table.TermsStore(), Row: txn.ShardedLinkRow(n, link, owner)})
		}
	}
	return r.FanOut(ctx, sources, cursor, inclusive, count)
}

// GetTermPage returns a page of the objects whose field is indexed under term
// in any of shards. A nil shards reads shard 0 and every registered shard.
func (r *Reader) GetTermPage(ctx context.Context, table *schema.TableDef, field, term string, shards []int,
	cursor string, inclusive bool, count int) (*proto.Page, error) {
	f := table.Field(field)
	if f == nil || !f.IsScalar() {
		return nil, apierrors.NewValidationError("%s is not a scalar of table %s", field, table.Name)
	}
	if terms, err := f.GetAnalyzer().Analyze(term); err == nil && len(terms) == 1 {
		term = terms[0]
	}

	shards, err := r.resolveShards(ctx, table, shards)
	if err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(shards))
	for _, n := range shards {
		sources = append(sources, Source{Store: table.TermsStore(), Row: txn.TermIndexRow(n, field, term)})
	}
	return r.FanOut(ctx, sources, cursor, inclusive, count)
}

// GetObjectPage returns a page of the ids of every object in shards.
func (r *Reader) GetObjectPage(ctx context.Context, table *schema.TableDef, shards []int,
	cursor string, inclusive bool, count int) (*proto.Page, error) {
	shards, err := r.resolveShards(ctx, table, shards)
	if err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(shards))
	for _, n := range shards {
		sources = append(sources, Source{Store: table.TermsStore(), Row: txn.AllObjectsRow(n)})
	}
	return r.FanOut(ctx, sources, cursor, inclusive, count)
}

// GetFieldTerms returns every term ever indexed for field in shard.
func (r *Reader) GetFieldTerms(ctx context.Context, table *schema.TableDef, field string, shard int) ([]string, error) {
	iter, err := r.store.GetAllColumns(ctx, table.TermsStore(), txn.TermsRow(shard, field))
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	cols, err := colstore.ReadColumns(iter)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	terms := make([]string, 0, len(cols))
	for _, col := range cols {
		terms = append(terms, col.Name)
	}
	return terms, nil
}

func (r *Reader) resolveShards(ctx context.Context, table *schema.TableDef, shards []int) ([]int, error) {
	if shards != nil {
		return shards, nil
	}
	registered, err := r.Shards(ctx, table)
	if err != nil {
		return nil, err
	}
	return append([]int{0}, registered...), nil
}

// shardedLinkTargets reads the targets of a sharded link for every owner,
// across every shard of its extent table.
func (r *Reader) shardedLinkTargets(ctx context.Context, table *schema.TableDef, f *schema.FieldDef,
	owners []string) (map[string]util.StringSet, error) {
	ret := make(map[string]util.StringSet)
	shards, err := r.LinkShards(ctx, f)
	if err != nil || len(shards) == 0 || len(owners) == 0 {
		return ret, err
	}

	rows := make([]string, 0, len(shards)*len(owners))
	for _, n := range shards {
		for _, owner := range owners {
			rows = append(rows, txn.ShardedLinkRow(n, f.Name, owner))
		}
	}
	iter, err := r.store.GetRowsColumns(ctx, table.TermsStore(), rows, nil)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	found, err := colstore.ReadRows(iter)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	for _, row := range found {
		_, _, owner, ok := txn.ParseShardedLinkRow(row.Key)
		if !ok {
			continue
		}
		if _, ok := ret[owner]; !ok {
			ret[owner] = util.NewStringSet()
		}
		for _, col := range row.Columns {
			ret[owner].Add(col.Name)
		}
	}
	return ret, nil
}
