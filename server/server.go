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

package server

import (
	"context"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/rpc/auditlog"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/objectdb/catalog"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/proto"
	"github.com/cubefs/objectdb/query"
	"github.com/cubefs/objectdb/schema"
	"github.com/cubefs/objectdb/store"
	"github.com/cubefs/objectdb/updater"
	"github.com/cubefs/objectdb/util/limiter"
)

const (
	maxListNum = 1000

	shardStartLayout = "2006-01-02 15:04:05"
)

type Config struct {
	StoreConfig    store.Config        `json:"store_config"`
	UpdaterConfig  updater.Config      `json:"updater_config"`
	ShardCacheTTLS int                 `json:"shard_cache_ttl_s"`
	AuditLog       auditlog.Config     `json:"auditlog"`
	Limit          limiter.LimitConfig `json:"limit"`
	Tables         []*schema.TableDef  `json:"tables"`
}

type Server struct {
	store   *store.Store
	catalog *catalog.Catalog
	reader  *query.Reader
	updater *updater.BatchUpdater
	limiter limiter.Limiter
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	span := trace.SpanFromContextSafe(ctx)
	s, err := store.NewStore(ctx, &cfg.StoreConfig)
	if err != nil {
		return nil, errors.Info(err, "open store failed")
	}

	colStore := s.ColumnStore()
	shardCache := catalog.NewShardCache(colStore, time.Duration(cfg.ShardCacheTTLS)*time.Second)
	c := catalog.NewCatalog(colStore, shardCache)
	if len(cfg.Tables) > 0 {
		if err := c.CreateTables(ctx, cfg.Tables); err != nil {
			s.Close()
			return nil, errors.Info(err, "create tables failed")
		}
	}
	reader := query.NewReader(c)
	span.Infof("server started with %d tables", len(cfg.Tables))

	return &Server{
		store:   s,
		catalog: c,
		reader:  reader,
		updater: updater.NewBatchUpdater(cfg.UpdaterConfig, c, reader),
		limiter: limiter.NewLimiter(cfg.Limit),
	}, nil
}

func (s *Server) CreateTable(ctx context.Context, def *schema.TableDef) error {
	return s.catalog.CreateTable(ctx, def)
}

func (s *Server) DeleteTable(ctx context.Context, name string) error {
	return s.catalog.DeleteTable(ctx, name)
}

func (s *Server) GetTable(ctx context.Context, name string) (*schema.TableDef, error) {
	return s.catalog.GetTable(name)
}

func (s *Server) AddBatch(ctx context.Context, table string, objs []*proto.Object) (*proto.BatchResult, error) {
	if err := s.acquireWrite(ctx, len(objs)); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseWrite()
	return s.updater.AddBatch(ctx, table, objs)
}

func (s *Server) UpdateBatch(ctx context.Context, table string, objs []*proto.Object) (*proto.BatchResult, error) {
	if err := s.acquireWrite(ctx, len(objs)); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseWrite()
	return s.updater.UpdateBatch(ctx, table, objs)
}

func (s *Server) DeleteBatch(ctx context.Context, table string, ids []string) (*proto.BatchResult, error) {
	if err := s.acquireWrite(ctx, len(ids)); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseWrite()
	return s.updater.DeleteBatch(ctx, table, ids)
}

func (s *Server) GetObject(ctx context.Context, table, id string) (*proto.Object, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseRead()
	def, err := s.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	obj, err := s.reader.GetObject(ctx, def, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, apierrors.ErrObjectNotFound
	}
	return obj, nil
}

// GetLinks returns a page of the targets of link held by owner.
func (s *Server) GetLinks(ctx context.Context, table, link, owner, cursor string, inclusive bool, count int) (*proto.Page, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseRead()
	def, err := s.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	return s.reader.GetLinkPage(ctx, def, link, owner, cursor, inclusive, listCount(count))
}

// GetTermPostings returns a page of the objects indexed under term. A nil
// shards searches every shard of the table.
func (s *Server) GetTermPostings(ctx context.Context, table, field, term string, shards []int,
	cursor string, inclusive bool, count int) (*proto.Page, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseRead()
	def, err := s.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	return s.reader.GetTermPage(ctx, def, field, term, shards, cursor, inclusive, listCount(count))
}

// ListObjects returns a page of the ids of every object in shards.
func (s *Server) ListObjects(ctx context.Context, table string, shards []int, cursor string, count int) (*proto.Page, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseRead()
	def, err := s.catalog.GetTable(table)
	if err != nil {
		return nil, err
	}
	return s.reader.GetObjectPage(ctx, def, shards, cursor, false, listCount(count))
}

func (s *Server) Stats(ctx context.Context) (*proto.Stats, error) {
	tables := s.catalog.Tables()
	stats := &proto.Stats{Tables: make([]proto.TableStats, 0, len(tables))}
	for _, def := range tables {
		shardMap, err := s.catalog.ShardCache().GetShardMap(ctx, def)
		if err != nil {
			return nil, err
		}
		ts := proto.TableStats{Name: def.Name}
		if len(shardMap) > 0 {
			ts.Shards = make(map[int]string, len(shardMap))
			for n, start := range shardMap {
				ts.Shards[n] = start.UTC().Format(shardStartLayout)
			}
		}
		stats.Tables = append(stats.Tables, ts)
	}
	return stats, nil
}

func (s *Server) LimitStatus() limiter.Status {
	return s.limiter.Status()
}

func (s *Server) Close() {
	s.store.Close()
}

// acquireWrite takes a write slot and waits until n objects may be written.
func (s *Server) acquireWrite(ctx context.Context, n int) error {
	if err := s.limiter.AcquireWrite(); err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("write of %d objects rejected: %s", n, err)
		return err
	}
	if err := s.limiter.WaitWrite(ctx, n); err != nil {
		s.limiter.ReleaseWrite()
		return err
	}
	return nil
}

func listCount(count int) int {
	if count <= 0 || count > maxListNum {
		return maxListNum
	}
	return count
}
