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
	"context"
	"errors"
)

const (
	defaultCF = "default"

	RocksdbLsmKVType = LsmKVType("rocksdb")

	FIFOStyle      = CompactionStyle("fifo")
	LevelStyle     = CompactionStyle("level")
	UniversalStyle = CompactionStyle("universal")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
	ErrColumnNotExist = errors.New("column family does not exist")
)

type (
	CF              string
	LsmKVType       string
	CompactionStyle string

	Store interface {
		CreateColumn(col CF) error
		DropColumn(col CF) error
		CheckColumns(col CF) bool
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		// List returns a reader positioned at marker, or at prefix when marker is empty.
		// Keys outside of prefix are never returned.
		List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader
		Write(ctx context.Context, batch WriteBatch) error
		NewWriteBatch() WriteBatch
		Close()
	}
	ListReader interface {
		// ReadNext returns the entry under the cursor on the first call after a seek
		// and advances forward on every later call. A nil key means exhausted.
		ReadNext() (key KeyGetter, val ValueGetter, err error)
		ReadNextCopy() (key []byte, value []byte, err error)
		// ReadPrev mirrors ReadNext in the backward direction.
		ReadPrev() (key KeyGetter, val ValueGetter, err error)
		ReadPrevCopy() (key []byte, value []byte, err error)
		SeekTo(key []byte)
		SeekForPrev(key []byte)
		SeekToLast()
		Close()
	}
	KeyGetter interface {
		Key() []byte
		Close()
	}
	ValueGetter interface {
		Value() []byte
		Size() int
		Close()
	}
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Count() int
		Close()
	}

	Option struct {
		Sync                 bool
		DisableWal           bool
		ColumnFamily         []CF `json:"column_family"`
		CreateIfMissing      bool
		BlockSize            int
		BlockCache           uint64
		MaxOpenFiles         int
		MaxWriteBufferNumber int
		WriteBufferSize      int
		KeepLogFileNum       int
		MaxLogFileSize       int
		CompactionStyle      CompactionStyle
	}
)

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	switch lsmType {
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}

// PrefixEnd returns the smallest key greater than every key starting with prefix,
// or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
