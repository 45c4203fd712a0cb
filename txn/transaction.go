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

// Package txn stages the column mutations of one or more object updates before
// they are committed to the column store.
package txn

import (
	"bytes"
	"context"
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/objectdb/common/colstore"
)

type rowKey struct {
	store string
	row   string
}

type pendingColumn struct {
	value []byte
	seq   uint64
}

// Transaction is an in-memory staging log of column adds, column deletes and
// row deletes. Every coordinate holds at most one pending mutation: a later
// add replaces an earlier add or column delete of the same column, and a
// later column delete replaces an earlier add. Row deletes are applied after
// every other mutation, so an add queued after a delete of its row is lost.
//
// Transaction does no I/O and is not safe for concurrent use.
type Transaction struct {
	adds       map[rowKey]map[string]*pendingColumn
	colDeletes map[rowKey]map[string]uint64
	rowDeletes map[rowKey]uint64
	seq        uint64

	span trace.Span
}

func NewTransaction(ctx context.Context) *Transaction {
	t := &Transaction{span: trace.SpanFromContextSafe(ctx)}
	t.Clear()
	return t
}

// AddColumn queues a column write. Re-adding a column keeps the last value.
func (t *Transaction) AddColumn(store, row, col string, value []byte) {
	t.seq++
	key := rowKey{store: store, row: row}
	if dels, ok := t.colDeletes[key]; ok {
		delete(dels, col)
		if len(dels) == 0 {
			delete(t.colDeletes, key)
		}
	}

	cols, ok := t.adds[key]
	if !ok {
		cols = make(map[string]*pendingColumn)
		t.adds[key] = cols
	}
	if prev, ok := cols[col]; ok && !bytes.Equal(prev.value, value) {
		t.span.Debugf("column %s/%s/%s re-added with a different value, keep the last one", store, row, col)
	}
	cols[col] = &pendingColumn{value: value, seq: t.seq}
}

func (t *Transaction) DeleteColumn(store, row, col string) {
	t.seq++
	key := rowKey{store: store, row: row}
	if cols, ok := t.adds[key]; ok {
		delete(cols, col)
		if len(cols) == 0 {
			delete(t.adds, key)
		}
	}

	dels, ok := t.colDeletes[key]
	if !ok {
		dels = make(map[string]uint64)
		t.colDeletes[key] = dels
	}
	dels[col] = t.seq
}

func (t *Transaction) DeleteColumns(store, row string, cols []string) {
	for _, col := range cols {
		t.DeleteColumn(store, row, col)
	}
}

// DeleteRow queues a row delete and drops every pending mutation of that row.
func (t *Transaction) DeleteRow(store, row string) {
	t.seq++
	key := rowKey{store: store, row: row}
	delete(t.adds, key)
	delete(t.colDeletes, key)
	t.rowDeletes[key] = t.seq
}

// MergeSubTransaction replays the mutations of other, in the order other
// queued them, on top of t.
func (t *Transaction) MergeSubTransaction(other *Transaction) {
	for _, op := range other.sortedOps() {
		switch op.kind {
		case opAdd:
			t.AddColumn(op.key.store, op.key.row, op.col, op.value)
		case opDeleteColumn:
			t.DeleteColumn(op.key.store, op.key.row, op.col)
		case opDeleteRow:
			t.DeleteRow(op.key.store, op.key.row)
		}
	}
}

// ApplyUpdates translates the staged mutations into storeTxn: adds first, then
// column deletes, then row deletes, each group in queue order.
func (t *Transaction) ApplyUpdates(storeTxn colstore.Transaction) {
	ops := t.sortedOps()
	for _, op := range ops {
		if op.kind == opAdd {
			storeTxn.AddColumn(op.key.store, op.key.row, op.col, op.value)
		}
	}

	var (
		rows    []rowKey
		rowCols = make(map[rowKey][]string)
	)
	for _, op := range ops {
		if op.kind != opDeleteColumn {
			continue
		}
		if _, ok := rowCols[op.key]; !ok {
			rows = append(rows, op.key)
		}
		rowCols[op.key] = append(rowCols[op.key], op.col)
	}
	for _, key := range rows {
		storeTxn.DeleteColumns(key.store, key.row, rowCols[key])
	}

	for _, op := range ops {
		if op.kind == opDeleteRow {
			storeTxn.DeleteRow(op.key.store, op.key.row)
		}
	}
}

// UpdateCount returns the number of distinct coordinates touched.
func (t *Transaction) UpdateCount() int {
	n := len(t.rowDeletes)
	for _, cols := range t.adds {
		n += len(cols)
	}
	for _, dels := range t.colDeletes {
		n += len(dels)
	}
	return n
}

func (t *Transaction) IsEmpty() bool {
	return len(t.adds) == 0 && len(t.colDeletes) == 0 && len(t.rowDeletes) == 0
}

func (t *Transaction) Clear() {
	t.adds = make(map[rowKey]map[string]*pendingColumn)
	t.colDeletes = make(map[rowKey]map[string]uint64)
	t.rowDeletes = make(map[rowKey]uint64)
	t.seq = 0
}

type opKind uint8

const (
	opAdd opKind = iota
	opDeleteColumn
	opDeleteRow
)

type op struct {
	kind  opKind
	key   rowKey
	col   string
	value []byte
	seq   uint64
}

func (t *Transaction) sortedOps() []op {
	ops := make([]op, 0, t.UpdateCount())
	for key, cols := range t.adds {
		for col, pc := range cols {
			ops = append(ops, op{kind: opAdd, key: key, col: col, value: pc.value, seq: pc.seq})
		}
	}
	for key, dels := range t.colDeletes {
		for col, seq := range dels {
			ops = append(ops, op{kind: opDeleteColumn, key: key, col: col, seq: seq})
		}
	}
	for key, seq := range t.rowDeletes {
		ops = append(ops, op{kind: opDeleteRow, key: key, seq: seq})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].seq < ops[j].seq
	})
	return ops
}
