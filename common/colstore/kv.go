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
	"bytes"
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/objectdb/common/kvstore"
	"github.com/cubefs/objectdb/util"
)

// row and column are joined by a single separator byte, so row keys must not
// contain it. Every store maps to its own column family.
const (
	rowSeparator = byte(0x00)
	rowEnd       = byte(0x01)
)

type kvColumnStore struct {
	kvStore kvstore.Store
}

func NewKVColumnStore(kvStore kvstore.Store) Store {
	return &kvColumnStore{kvStore: kvStore}
}

// CreateStoreIfAbsent creates the column family of store. Values are always
// kept as raw bytes, so binaryValues needs no special handling.
func (s *kvColumnStore) CreateStoreIfAbsent(ctx context.Context, store string, binaryValues bool) error {
	if s.kvStore.CheckColumns(kvstore.CF(store)) {
		return nil
	}
	trace.SpanFromContextSafe(ctx).Infof("create store %s", store)
	if err := s.kvStore.CreateColumn(kvstore.CF(store)); err != nil {
		return errors.Info(err, "create store failed")
	}
	return nil
}

func (s *kvColumnStore) DeleteStoreIfPresent(ctx context.Context, store string) error {
	if !s.kvStore.CheckColumns(kvstore.CF(store)) {
		return nil
	}
	trace.SpanFromContextSafe(ctx).Infof("drop store %s", store)
	if err := s.kvStore.DropColumn(kvstore.CF(store)); err != nil {
		return errors.Info(err, "drop store failed")
	}
	return nil
}

func (s *kvColumnStore) StartTransaction() Transaction {
	return &transaction{}
}

func (s *kvColumnStore) Commit(ctx context.Context, txn Transaction) error {
	defer txn.Clear()

	span := trace.SpanFromContextSafe(ctx)
	mutations := mutationsOf(txn)
	if len(mutations) == 0 {
		return nil
	}

	batch := s.kvStore.NewWriteBatch()
	defer batch.Close()
	for i := range mutations {
		m := &mutations[i]
		cf := kvstore.CF(m.store)
		switch m.op {
		case opAddColumn:
			batch.Put(cf, encodeColumnKey(m.row, m.col), m.value)
		case opDeleteColumn:
			batch.Delete(cf, encodeColumnKey(m.row, m.col))
		case opDeleteRow:
			start, end := encodeRowRange(m.row)
			batch.DeleteRange(cf, start, end)
		}
	}
	if err := s.kvStore.Write(ctx, batch); err != nil {
		if err == kvstore.ErrColumnNotExist {
			return ErrStoreNotExist
		}
		return errors.Info(err, "write batch failed")
	}
	span.Debugf("committed %d mutations", len(mutations))
	return nil
}

func (s *kvColumnStore) GetAllColumns(ctx context.Context, store, row string) (ColumnIterator, error) {
	return s.GetColumnSlice(ctx, store, row, "", "", false)
}

func (s *kvColumnStore) GetColumnSlice(ctx context.Context, store, row, start, end string, reversed bool) (ColumnIterator, error) {
	prefix := encodeRowPrefix(row)
	var marker []byte
	if start != "" {
		marker = encodeColumnKey(row, start)
	}
	lr := s.kvStore.List(ctx, kvstore.CF(store), prefix, marker)
	iter := &kvColumnIterator{
		lr:       lr,
		prefix:   prefix,
		start:    start,
		end:      end,
		reversed: reversed,
	}
	if reversed {
		if end != "" {
			lr.SeekForPrev(encodeColumnKey(row, end))
		} else {
			lr.SeekToLast()
		}
	}
	return iter, nil
}

func (s *kvColumnStore) GetRowsColumns(ctx context.Context, store string, rows []string, cols []string) (RowIterator, error) {
	ret := make([]Row, 0, len(rows))
	for _, row := range rows {
		var columns []Column
		if cols == nil {
			iter, err := s.GetAllColumns(ctx, store, row)
			if err != nil {
				return nil, err
			}
			if columns, err = ReadColumns(iter); err != nil {
				return nil, err
			}
		} else {
			for _, col := range cols {
				value, err := s.kvStore.GetRaw(ctx, kvstore.CF(store), encodeColumnKey(row, col))
				if err == kvstore.ErrNotFound || err == kvstore.ErrColumnNotExist {
					continue
				}
				if err != nil {
					return nil, errors.Info(err, "get column failed")
				}
				columns = append(columns, Column{Name: col, Value: value})
			}
		}
		if len(columns) > 0 {
			ret = append(ret, Row{Key: row, Columns: columns})
		}
	}
	return &sliceRowIterator{rows: ret}, nil
}

func (s *kvColumnStore) GetAllRowsAllColumns(ctx context.Context, store string) (RowIterator, error) {
	lr := s.kvStore.List(ctx, kvstore.CF(store), nil, nil)
	defer lr.Close()

	var ret []Row
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, errors.Info(err, "read next column failed")
		}
		if key == nil {
			break
		}
		row, col := decodeColumnKey(key)
		if n := len(ret); n == 0 || ret[n-1].Key != row {
			ret = append(ret, Row{Key: row})
		}
		ret[len(ret)-1].Columns = append(ret[len(ret)-1].Columns, Column{Name: col, Value: value})
	}
	return &sliceRowIterator{rows: ret}, nil
}

func (s *kvColumnStore) Close() {
	s.kvStore.Close()
}

type kvColumnIterator struct {
	lr       kvstore.ListReader
	prefix   []byte
	start    string
	end      string
	reversed bool
}

func (i *kvColumnIterator) Next() (*Column, error) {
	for {
		var (
			key, value []byte
			err        error
		)
		if i.reversed {
			key, value, err = i.lr.ReadPrevCopy()
		} else {
			key, value, err = i.lr.ReadNextCopy()
		}
		if err != nil {
			return nil, errors.Info(err, "read column failed")
		}
		if key == nil {
			return nil, nil
		}

		col := util.BytesToString(key[len(i.prefix):])
		if i.reversed {
			if col < i.start {
				return nil, nil
			}
			// seek for prev may land on the exclusive end
			if i.end != "" && col >= i.end {
				continue
			}
		} else if i.end != "" && col >= i.end {
			return nil, nil
		}
		return &Column{Name: col, Value: value}, nil
	}
}

func (i *kvColumnIterator) Close() {
	i.lr.Close()
}

func encodeRowPrefix(row string) []byte {
	key := make([]byte, len(row)+1)
	copy(key, row)
	key[len(row)] = rowSeparator
	return key
}

func encodeRowRange(row string) (start, end []byte) {
	start = encodeRowPrefix(row)
	end = make([]byte, len(start))
	copy(end, start)
	end[len(row)] = rowEnd
	return
}

func encodeColumnKey(row, col string) []byte {
	key := make([]byte, len(row)+1+len(col))
	copy(key, row)
	key[len(row)] = rowSeparator
	copy(key[len(row)+1:], col)
	return key
}

func decodeColumnKey(key []byte) (row, col string) {
	idx := bytes.IndexByte(key, rowSeparator)
	if idx < 0 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}
