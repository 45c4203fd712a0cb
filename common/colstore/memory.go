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

package colstore

import (
	"context"
	"sync"

	"github.com/cubefs/cubefs/util/btree"
)

const memoryTreeDegree = 32

type memoryItem struct {
	row   string
	col   string
	value []byte
}

func (i *memoryItem) Less(than btree.Item) bool {
	thanItem := than.(*memoryItem)
	if i.row != thanItem.row {
		return i.row < thanItem.row
	}
	return i.col < thanItem.col
}

func (i *memoryItem) Copy() btree.Item {
	value := make([]byte, len(i.value))
	copy(value, i.value)
	return &memoryItem{row: i.row, col: i.col, value: value}
}

type memoryStore struct {
	stores map[string]*btree.BTree
	// commits counts successful non-empty commits
	commits int
	lock    sync.RWMutex
}

// NewMemoryStore returns a Store that keeps every store in an ordered in-memory
// tree. It is used by single node runs and tests.
func NewMemoryStore() Store {
	return &memoryStore{stores: make(map[string]*btree.BTree)}
}

func (m *memoryStore) CreateStoreIfAbsent(ctx context.Context, store string, binaryValues bool) error {
	m.lock.Lock()
	if _, ok := m.stores[store]; !ok {
		m.stores[store] = btree.New(memoryTreeDegree)
	}
	m.lock.Unlock()
	return nil
}

func (m *memoryStore) DeleteStoreIfPresent(ctx context.Context, store string) error {
	m.lock.Lock()
	delete(m.stores, store)
	m.lock.Unlock()
	return nil
}

func (m *memoryStore) StartTransaction() Transaction {
	return &transaction{}
}

func (m *memoryStore) Commit(ctx context.Context, txn Transaction) error {
	defer txn.Clear()

	mutations := mutationsOf(txn)
	if len(mutations) == 0 {
		return nil
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	for i := range mutations {
		if _, ok := m.stores[mutations[i].store]; !ok {
			return ErrStoreNotExist
		}
	}
	for i := range mutations {
		mu := &mutations[i]
		tree := m.stores[mu.store]
		switch mu.op {
		case opAddColumn:
			value := make([]byte, len(mu.value))
			copy(value, mu.value)
			tree.ReplaceOrInsert(&memoryItem{row: mu.row, col: mu.col, value: value})
		case opDeleteColumn:
			tree.Delete(&memoryItem{row: mu.row, col: mu.col})
		case opDeleteRow:
			var dels []btree.Item
			tree.AscendGreaterOrEqual(&memoryItem{row: mu.row}, func(i btree.Item) bool {
				if i.(*memoryItem).row != mu.row {
					return false
				}
				dels = append(dels, i)
				return true
			})
			for _, del := range dels {
				tree.Delete(del)
			}
		}
	}
	m.commits++
	return nil
}

func (m *memoryStore) GetAllColumns(ctx context.Context, store, row string) (ColumnIterator, error) {
	return m.GetColumnSlice(ctx, store, row, "", "", false)
}

func (m *memoryStore) GetColumnSlice(ctx context.Context, store, row, start, end string, reversed bool) (ColumnIterator, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	tree, ok := m.stores[store]
	if !ok {
		return &sliceColumnIterator{}, nil
	}
	columns := m.sliceRow(tree, row, start, end)
	if reversed {
		for i, j := 0, len(columns)-1; i < j; i, j = i+1, j-1 {
			columns[i], columns[j] = columns[j], columns[i]
		}
	}
	return &sliceColumnIterator{columns: columns}, nil
}

func (m *memoryStore) GetRowsColumns(ctx context.Context, store string, rows []string, cols []string) (RowIterator, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	tree, ok := m.stores[store]
	if !ok {
		return &sliceRowIterator{}, nil
	}
	ret := make([]Row, 0, len(rows))
	for _, row := range rows {
		var columns []Column
		if cols == nil {
			columns = m.sliceRow(tree, row, "", "")
		} else {
			for _, col := range cols {
				if i := tree.Get(&memoryItem{row: row, col: col}); i != nil {
					columns = append(columns, toColumn(i.(*memoryItem)))
				}
			}
		}
		if len(columns) > 0 {
			ret = append(ret, Row{Key: row, Columns: columns})
		}
	}
	return &sliceRowIterator{rows: ret}, nil
}

func (m *memoryStore) GetAllRowsAllColumns(ctx context.Context, store string) (RowIterator, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	tree, ok := m.stores[store]
	if !ok {
		return &sliceRowIterator{}, nil
	}
	var ret []Row
	tree.Ascend(func(i btree.Item) bool {
		item := i.(*memoryItem)
		if n := len(ret); n == 0 || ret[n-1].Key != item.row {
			ret = append(ret, Row{Key: item.row})
		}
		ret[len(ret)-1].Columns = append(ret[len(ret)-1].Columns, toColumn(item))
		return true
	})
	return &sliceRowIterator{rows: ret}, nil
}

func (m *memoryStore) Close() {}

// Commits returns how many non-empty transactions have been applied.
func (m *memoryStore) Commits() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.commits
}

func (m *memoryStore) sliceRow(tree *btree.BTree, row, start, end string) []Column {
	var columns []Column
	tree.AscendGreaterOrEqual(&memoryItem{row: row, col: start}, func(i btree.Item) bool {
		item := i.(*memoryItem)
		if item.row != row || (end != "" && item.col >= end) {
			return false
		}
		columns = append(columns, toColumn(item))
		return true
	})
	return columns
}

func toColumn(item *memoryItem) Column {
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return Column{Name: item.col, Value: value}
}
