// Copyright 2023 The Cuber Authors.
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

package kvstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"

	rdb "github.com/tecbot/gorocksdb"
)

type (
	rocksdb struct {
		path      string
		db        *rdb.DB
		opt       *rdb.Options
		readOpt   *rdb.ReadOptions
		writeOpt  *rdb.WriteOptions
		cfHandles map[CF]*rdb.ColumnFamilyHandle
		lock      sync.RWMutex
	}
	listReader struct {
		iterator *rdb.Iterator
		prefix   []byte
		isFirst  bool
	}
	keyGetter struct {
		key *rdb.Slice
	}
	valueGetter struct {
		value *rdb.Slice
	}
	writeBatch struct {
		s     *rocksdb
		batch *rdb.WriteBatch
		err   error
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	// column families created at runtime must be reopened as well
	cols := []CF{defaultCF}
	existing, err := rdb.ListColumnFamilies(dbOpt, path)
	if err == nil {
		for _, name := range existing {
			if name != defaultCF {
				cols = append(cols, CF(name))
			}
		}
	}
	for _, col := range option.ColumnFamily {
		if !containsCF(cols, col) {
			cols = append(cols, col)
		}
	}

	cfNames := make([]string, 0, len(cols))
	cfOpts := make([]*rdb.Options, 0, len(cols))
	for i := range cols {
		cfNames = append(cfNames, cols[i].String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle)
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	wo.SetSync(option.Sync)
	wo.DisableWAL(option.DisableWal)

	return &rocksdb{
		db:        db,
		path:      path,
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		cfHandles: cfhMap,
	}, nil
}

func (kg keyGetter) Key() []byte {
	return kg.key.Data()
}

func (kg keyGetter) Close() {
	kg.key.Free()
}

func (vg *valueGetter) Value() []byte {
	return vg.value.Data()
}

func (vg *valueGetter) Size() int {
	return vg.value.Size()
}

func (vg *valueGetter) Close() {
	vg.value.Free()
}

func (lr *listReader) ReadNext() (key KeyGetter, val ValueGetter, err error) {
	if !lr.isFirst {
		lr.iterator.Next()
	}
	lr.isFirst = false
	return lr.current()
}

func (lr *listReader) ReadPrev() (key KeyGetter, val ValueGetter, err error) {
	if !lr.isFirst {
		lr.iterator.Prev()
	}
	lr.isFirst = false
	return lr.current()
}

func (lr *listReader) ReadNextCopy() (key []byte, value []byte, err error) {
	return copyEntry(lr.ReadNext())
}

func (lr *listReader) ReadPrevCopy() (key []byte, value []byte, err error) {
	return copyEntry(lr.ReadPrev())
}

func (lr *listReader) SeekTo(key []byte) {
	lr.isFirst = true
	lr.iterator.Seek(key)
}

func (lr *listReader) SeekForPrev(key []byte) {
	lr.isFirst = true
	lr.iterator.SeekForPrev(key)
}

func (lr *listReader) SeekToLast() {
	lr.isFirst = true
	if end := PrefixEnd(lr.prefix); end != nil {
		lr.iterator.SeekForPrev(end)
		if lr.iterator.Valid() && bytes.Equal(lr.iterator.Key().Data(), end) {
			lr.iterator.Prev()
		}
		return
	}
	lr.iterator.SeekToLast()
}

func (lr *listReader) Close() {
	lr.iterator.Close()
}

func (lr *listReader) current() (KeyGetter, ValueGetter, error) {
	if err := lr.iterator.Err(); err != nil {
		return nil, nil, err
	}
	if !lr.iterator.Valid() {
		return nil, nil, nil
	}
	if lr.prefix != nil && !lr.iterator.ValidForPrefix(lr.prefix) {
		return nil, nil, nil
	}
	return keyGetter{key: lr.iterator.Key()}, &valueGetter{value: lr.iterator.Value()}, nil
}

func copyEntry(kg KeyGetter, vg ValueGetter, err error) (key []byte, value []byte, _ error) {
	if err != nil || kg == nil {
		return nil, nil, err
	}
	key = make([]byte, len(kg.Key()))
	value = make([]byte, vg.Size())
	copy(key, kg.Key())
	copy(value, vg.Value())
	kg.Close()
	vg.Close()
	return key, value, nil
}

func (w *writeBatch) Put(col CF, key, value []byte) {
	cf, err := w.s.getColumnFamily(col)
	if err != nil {
		w.err = err
		return
	}
	w.batch.PutCF(cf, key, value)
}

func (w *writeBatch) Delete(col CF, key []byte) {
	cf, err := w.s.getColumnFamily(col)
	if err != nil {
		w.err = err
		return
	}
	w.batch.DeleteCF(cf, key)
}

func (w *writeBatch) DeleteRange(col CF, startKey, endKey []byte) {
	cf, err := w.s.getColumnFamily(col)
	if err != nil {
		w.err = err
		return
	}
	w.batch.DeleteRangeCF(cf, startKey, endKey)
}

func (w *writeBatch) Count() int {
	return w.batch.Count()
}

func (w *writeBatch) Close() {
	w.batch.Destroy()
}

func (s *rocksdb) NewWriteBatch() WriteBatch {
	return &writeBatch{
		s:     s,
		batch: rdb.NewWriteBatch(),
	}
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cfHandles[col] != nil {
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		return err
	}
	s.cfHandles[col] = h
	return nil
}

func (s *rocksdb) DropColumn(col CF) error {
	if col == defaultCF {
		return errors.New("can not drop the default column family")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	h, ok := s.cfHandles[col]
	if !ok {
		return nil
	}
	if err := s.db.DropColumnFamily(h); err != nil {
		return err
	}
	h.Destroy()
	delete(s.cfHandles, col)
	return nil
}

func (s *rocksdb) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.cfHandles[col]
	return ok
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error) {
	cf, err := s.getColumnFamily(col)
	if err != nil {
		return nil, err
	}
	v, err := s.db.GetCF(s.readOpt, cf, key)
	if err != nil {
		return nil, err
	}
	defer v.Free()
	if !v.Exists() {
		return nil, ErrNotFound
	}
	value = make([]byte, v.Size())
	copy(value, v.Data())
	return value, nil
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	cf, err := s.getColumnFamily(col)
	if err != nil {
		// an unknown column family lists as empty
		return emptyListReader{}
	}
	t := s.db.NewIteratorCF(s.readOpt, cf)
	if len(marker) > 0 {
		t.Seek(marker)
	} else if prefix != nil {
		t.Seek(prefix)
	} else {
		t.SeekToFirst()
	}

	return &listReader{
		iterator: t,
		prefix:   prefix,
		isFirst:  true,
	}
}

func (s *rocksdb) Write(ctx context.Context, batch WriteBatch) error {
	_batch := batch.(*writeBatch)
	if _batch.err != nil {
		return _batch.err
	}
	return s.db.Write(s.writeOpt, _batch.batch)
}

func (s *rocksdb) Close() {
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
	s.opt.Destroy()
}

func (s *rocksdb) getColumnFamily(col CF) (*rdb.ColumnFamilyHandle, error) {
	if col == "" {
		col = defaultCF
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	cf, ok := s.cfHandles[col]
	if !ok {
		return nil, ErrColumnNotExist
	}
	return cf, nil
}

type emptyListReader struct{}

func (emptyListReader) ReadNext() (KeyGetter, ValueGetter, error) { return nil, nil, nil }
func (emptyListReader) ReadPrev() (KeyGetter, ValueGetter, error) { return nil, nil, nil }
func (emptyListReader) ReadNextCopy() ([]byte, []byte, error)     { return nil, nil, nil }
func (emptyListReader) ReadPrevCopy() ([]byte, []byte, error)     { return nil, nil, nil }
func (emptyListReader) SeekTo(key []byte)                         {}
func (emptyListReader) SeekForPrev(key []byte)                    {}
func (emptyListReader) SeekToLast()                               {}
func (emptyListReader) Close()                                    {}

func containsCF(cols []CF, col CF) bool {
	for i := range cols {
		if cols[i] == col {
			return true
		}
	}
	return false
}

func genRocksdbOpts(opt *Option) (opts *rdb.Options) {
	opts = rdb.NewDefaultOptions()
	blockBaseOpt := rdb.NewDefaultBlockBasedTableOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	if opt.BlockSize > 0 {
		blockBaseOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.BlockCache > 0 {
		blockBaseOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.MaxWriteBufferNumber > 0 {
		opts.SetMaxWriteBufferNumber(opt.MaxWriteBufferNumber)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	if opt.KeepLogFileNum > 0 {
		opts.SetKeepLogFileNum(opt.KeepLogFileNum)
	}
	if opt.MaxLogFileSize > 0 {
		opts.SetMaxLogFileSize(opt.MaxLogFileSize)
	}
	switch opt.CompactionStyle {
	case FIFOStyle:
		opts.SetCompactionStyle(rdb.FIFOCompactionStyle)
	case LevelStyle:
		opts.SetCompactionStyle(rdb.LevelCompactionStyle)
	case UniversalStyle:
		opts.SetCompactionStyle(rdb.UniversalCompactionStyle)
	default:
	}

	opts.SetStatsDumpPeriodSec(0)
	opts.SetBlockBasedTableFactory(blockBaseOpt)
	opts.SetCreateIfMissingColumnFamilies(true)
	return
}
