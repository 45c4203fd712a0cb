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

// Package colstore defines the column-oriented store consumed by the object
// engine: named stores of rows, each row an ordered set of named columns.
package colstore

import (
	"context"
	"errors"
)

var ErrStoreNotExist = errors.New("store does not exist")

type (
	Column struct {
		Name  string
		Value []byte
	}
	Row struct {
		Key     string
		Columns []Column
	}

	// ColumnIterator returns a nil column once exhausted.
	ColumnIterator interface {
		Next() (*Column, error)
		Close()
	}
	// RowIterator returns a nil row once exhausted.
	RowIterator interface {
		Next() (*Row, error)
		Close()
	}

	Store interface {
		CreateStoreIfAbsent(ctx context.Context, store string, binaryValues bool) error
		DeleteStoreIfPresent(ctx context.Context, store string) error
		StartTransaction() Transaction
		// Commit applies every queued mutation atomically. The transaction is
		// cleared afterwards whether the commit succeeded or not.
		Commit(ctx context.Context, txn Transaction) error

		GetAllColumns(ctx context.Context, store, row string) (ColumnIterator, error)
		// GetColumnSlice returns the columns of row within [start, end); an empty end
		// means unbounded. Columns ascend by name, or descend when reversed is set.
		GetColumnSlice(ctx context.Context, store, row, start, end string, reversed bool) (ColumnIterator, error)
		// GetRowsColumns returns the named columns of every existing row in rows,
		// or all columns when cols is nil. Rows without any match are skipped.
		GetRowsColumns(ctx context.Context, store string, rows []string, cols []string) (RowIterator, error)
		GetAllRowsAllColumns(ctx context.Context, store string) (RowIterator, error)
		Close()
	}

	Transaction interface {
		AddColumn(store, row, col string, value []byte)
		DeleteColumn(store, row, col string)
		DeleteColumns(store, row string, cols []string)
		DeleteRow(store, row string)
		Count() int
		Clear()
	}
)

type opType uint8

const (
	opAddColumn opType = iota + 1
	opDeleteColumn
	opDeleteRow
)

type mutation struct {
	op    opType
	store string
	row   string
	col   string
	value []byte
}

// transaction records mutations in the order they are queued. Later mutations
// on the same coordinate take effect over earlier ones at commit time.
type transaction struct {
	mutations []mutation
}

func (t *transaction) AddColumn(store, row, col string, value []byte) {
	t.mutations = append(t.mutations, mutation{op: opAddColumn, store: store, row: row, col: col, value: value})
}

func (t *transaction) DeleteColumn(store, row, col string) {
	t.mutations = append(t.mutations, mutation{op: opDeleteColumn, store: store, row: row, col: col})
}

func (t *transaction) DeleteColumns(store, row string, cols []string) {
	for _, col := range cols {
		t.DeleteColumn(store, row, col)
	}
}

func (t *transaction) DeleteRow(store, row string) {
	t.mutations = append(t.mutations, mutation{op: opDeleteRow, store: store, row: row})
}

func (t *transaction) Count() int {
	return len(t.mutations)
}

func (t *transaction) Clear() {
	t.mutations = nil
}

func mutationsOf(txn Transaction) []mutation {
	if t, ok := txn.(*transaction); ok {
		return t.mutations
	}
	return nil
}

// ReadColumns drains the iterator into a slice and closes it.
func ReadColumns(iter ColumnIterator) ([]Column, error) {
	defer iter.Close()
	var ret []Column
	for {
		col, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if col == nil {
			return ret, nil
		}
		ret = append(ret, *col)
	}
}

// ReadRows drains the iterator into a slice and closes it.
func ReadRows(iter RowIterator) ([]Row, error) {
	defer iter.Close()
	var ret []Row
	for {
		row, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return ret, nil
		}
		ret = append(ret, *row)
	}
}

type sliceColumnIterator struct {
	columns []Column
	idx     int
}

func (s *sliceColumnIterator) Next() (*Column, error) {
	if s.idx >= len(s.columns) {
		return nil, nil
	}
	s.idx++
	return &s.columns[s.idx-1], nil
}

func (s *sliceColumnIterator) Close() {}

type sliceRowIterator struct {
	rows []Row
	idx  int
}

func (s *sliceRowIterator) Next() (*Row, error) {
	if s.idx >= len(s.rows) {
		return nil, nil
	}
	s.idx++
	return &s.rows[s.idx-1], nil
}

func (s *sliceRowIterator) Close() {}
