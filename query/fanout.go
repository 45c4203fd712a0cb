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
	"strings"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/util/btree"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/proto"
)

const mergeTreeDegree = 8

// Source is one row holding ids as column names, optionally behind a common
// column prefix.
type Source struct {
	Store  string
	Row    string
	Prefix string
}

type idItem string

func (i idItem) Less(than btree.Item) bool {
	return i < than.(idItem)
}

func (i idItem) Copy() btree.Item {
	return i
}

// FanOut reads a page of at most count ids from sources, starting at cursor.
// With several sources every source is read for count ids and the pages are
// merged through a tree bounded to count entries that drops its largest id on
// overflow. Sources are read one after another without a common snapshot, so
// a page merged while shards are written is only an approximation of the
// global order. Paging resumes through Next.
func (r *Reader) FanOut(ctx context.Context, sources []Source, cursor string, inclusive bool, count int) (*proto.Page, error) {
	if count <= 0 || len(sources) == 0 {
		return &proto.Page{}, nil
	}
	if len(sources) == 1 {
		ids, err := r.readSource(ctx, sources[0], cursor, inclusive, count)
		if err != nil {
			return nil, err
		}
		return newPage(ids, count), nil
	}

	span := trace.SpanFromContextSafe(ctx)
	tree := btree.New(mergeTreeDegree)
	for _, src := range sources {
		ids, err := r.readSource(ctx, src, cursor, inclusive, count)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			tree.ReplaceOrInsert(idItem(id))
			if tree.Len() > count {
				tree.DeleteMax()
			}
		}
	}

	ids := make([]string, 0, tree.Len())
	tree.Ascend(func(i btree.Item) bool {
		ids = append(ids, string(i.(idItem)))
		return true
	})
	span.Debugf("merged %d sources into %d ids", len(sources), len(ids))
	return newPage(ids, count), nil
}

func (r *Reader) readSource(ctx context.Context, src Source, cursor string, inclusive bool, count int) ([]string, error) {
	end := ""
	if src.Prefix != "" {
		end = prefixEnd(src.Prefix)
	}
	iter, err := r.store.GetColumnSlice(ctx, src.Store, src.Row, src.Prefix+cursor, end, false)
	if err != nil {
		return nil, apierrors.NewStoreError(err)
	}
	defer iter.Close()

	ids := make([]string, 0, count)
	for len(ids) < count {
		col, err := iter.Next()
		if err != nil {
			return nil, apierrors.NewStoreError(err)
		}
		if col == nil {
			break
		}
		id := strings.TrimPrefix(col.Name, src.Prefix)
		if !inclusive && id == cursor {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newPage(ids []string, count int) *proto.Page {
	page := &proto.Page{IDs: ids}
	if len(ids) == count {
		page.Next = ids[len(ids)-1]
	}
	return page
}

func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
