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

package txn

import (
	"strconv"
	"time"

	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/util"
)

func (t *Transaction) AddIDValueColumn(table *schema.TableDef, id string) {
	t.AddColumn(table.ObjectsStore(), id, proto.IDField, util.StringsToBytes(id))
}

func (t *Transaction) AddAllObjectsColumn(table *schema.TableDef, id string, shard int) {
	t.AddColumn(table.TermsStore(), AllObjectsRow(shard), id, nil)
}

func (t *Transaction) DeleteAllObjectsColumn(table *schema.TableDef, id string, shard int) {
	t.DeleteColumn(table.TermsStore(), AllObjectsRow(shard), id)
}

func (t *Transaction) AddScalarValueColumn(table *schema.TableDef, id, field, value string) {
	t.AddColumn(table.ObjectsStore(), id, field, []byte(value))
}

func (t *Transaction) DeleteScalarValueColumn(table *schema.TableDef, id, field string) {
	t.DeleteColumn(table.ObjectsStore(), id, field)
}

func (t *Transaction) AddTermIndexColumn(table *schema.TableDef, id string, shard int, field, term string) {
	t.AddColumn(table.TermsStore(), TermIndexRow(shard, field, term), id, nil)
}

func (t *Transaction) DeleteTermIndexColumn(table *schema.TableDef, id string, shard int, field, term string) {
	t.DeleteColumn(table.TermsStore(), TermIndexRow(shard, field, term), id)
}

// AddTermReference registers term as used by field in shard.
func (t *Transaction) AddTermReference(table *schema.TableDef, shard int, field, term string) {
	t.AddColumn(table.TermsStore(), TermsRow(shard, field), term, nil)
}

// AddFieldReference registers field as used by at least one object.
func (t *Transaction) AddFieldReference(table *schema.TableDef, field string) {
	t.AddColumn(table.TermsStore(), FieldsRow, field, nil)
}

func (t *Transaction) AddLinkValue(table *schema.TableDef, owner, link, target string) {
	t.AddColumn(table.ObjectsStore(), owner, LinkColumn(link, target), nil)
}

func (t *Transaction) DeleteLinkValue(table *schema.TableDef, owner, link, target string) {
	t.DeleteColumn(table.ObjectsStore(), owner, LinkColumn(link, target))
}

func (t *Transaction) AddShardedLinkValue(table *schema.TableDef, owner, link, target string, targetShard int) {
	t.AddColumn(table.TermsStore(), ShardedLinkRow(targetShard, link, owner), target, nil)
}

func (t *Transaction) DeleteShardedLinkValue(table *schema.TableDef, owner, link, target string, targetShard int) {
	t.DeleteColumn(table.TermsStore(), ShardedLinkRow(targetShard, link, owner), target)
}

// DeleteShardedLinkRow drops every target of link held by owner in one shard.
func (t *Transaction) DeleteShardedLinkRow(table *schema.TableDef, owner, link string, shard int) {
	t.DeleteRow(table.TermsStore(), ShardedLinkRow(shard, link, owner))
}

func (t *Transaction) AddShardStart(table *schema.TableDef, shard int, start time.Time) {
	t.AddColumn(table.TermsStore(), ShardsRow, strconv.Itoa(shard), []byte(EncodeShardStart(start)))
}

func (t *Transaction) DeleteObjectRow(table *schema.TableDef, id string) {
	t.DeleteRow(table.ObjectsStore(), id)
}
