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

package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/objectdb/common/colstore"
	apierrors "github.com/cubefs/objectdb/errors"
	"github.com/cubefs/objectdb/schema"
)

// Catalog holds the table definitions and owns the stores of every table.
type Catalog struct {
	store      colstore.Store
	shardCache *ShardCache

	tables map[string]*schema.TableDef
	lock   sync.RWMutex
}

func NewCatalog(store colstore.Store, shardCache *ShardCache) *Catalog {
	return &Catalog{
		store:      store,
		shardCache: shardCache,
		tables:     make(map[string]*schema.TableDef),
	}
}

func (c *Catalog) CreateTable(ctx context.Context, def *schema.TableDef) error {
	return c.CreateTables(ctx, []*schema.TableDef{def})
}

// CreateTables registers defs as one group, so tables linking to each other
// can be created together. The objects and terms stores of every table are
// created when absent.
func (c *Catalog) CreateTables(ctx context.Context, defs []*schema.TableDef) error {
	span := trace.SpanFromContextSafe(ctx)
	c.lock.Lock()
	defer c.lock.Unlock()

	all := make(map[string]*schema.TableDef, len(c.tables)+len(defs))
	for name, def := range c.tables {
		all[name] = def
	}
	for _, def := range defs {
		if err := def.Init(); err != nil {
			return err
		}
		if _, ok := all[def.Name]; ok {
			return apierrors.ErrTableAlreadyExists
		}
		all[def.Name] = def
	}
	for _, def := range defs {
		if err := validateLinks(def, all); err != nil {
			return err
		}
	}

	for _, def := range defs {
		if err := c.store.CreateStoreIfAbsent(ctx, def.ObjectsStore(), false); err != nil {
			return errors.Info(apierrors.NewStoreError(err), "create objects store failed")
		}
		if err := c.store.CreateStoreIfAbsent(ctx, def.TermsStore(), false); err != nil {
			return errors.Info(apierrors.NewStoreError(err), "create terms store failed")
		}
		c.tables[def.Name] = def
		span.Infof("table %s created, sharded: %t", def.Name, def.IsSharded())
	}
	return nil
}

// DeleteTable drops both stores of the table and forgets its shards.
func (c *Catalog) DeleteTable(ctx context.Context, name string) error {
	span := trace.SpanFromContextSafe(ctx)
	c.lock.Lock()
	defer c.lock.Unlock()

	def, ok := c.tables[name]
	if !ok {
		return apierrors.ErrTableNotFound
	}
	if err := c.store.DeleteStoreIfPresent(ctx, def.ObjectsStore()); err != nil {
		return errors.Info(apierrors.NewStoreError(err), "drop objects store failed")
	}
	if err := c.store.DeleteStoreIfPresent(ctx, def.TermsStore()); err != nil {
		return errors.Info(apierrors.NewStoreError(err), "drop terms store failed")
	}
	delete(c.tables, name)
	c.shardCache.Clear(name)
	span.Infof("table %s deleted", name)
	return nil
}

func (c *Catalog) GetTable(name string) (*schema.TableDef, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	def, ok := c.tables[name]
	if !ok {
		return nil, apierrors.ErrTableNotFound
	}
	return def, nil
}

// Tables returns every table, sorted by name.
func (c *Catalog) Tables() []*schema.TableDef {
	c.lock.RLock()
	ret := make([]*schema.TableDef, 0, len(c.tables))
	for _, def := range c.tables {
		ret = append(ret, def)
	}
	c.lock.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret
}

func (c *Catalog) ShardCache() *ShardCache {
	return c.shardCache
}

func (c *Catalog) Store() colstore.Store {
	return c.store
}

// validateLinks checks that every link of def targets a known table and that
// its inverse, when declared, is a link of that table pointing back.
func validateLinks(def *schema.TableDef, all map[string]*schema.TableDef) error {
	for _, f := range def.LinkFields() {
		extent, ok := all[f.Extent]
		if !ok {
			return apierrors.WrapValidation(apierrors.ErrInvalidLinkField, "%s.%s targets unknown table %s", def.Name, f.Name, f.Extent)
		}
		if f.Inverse == "" {
			continue
		}
		inv := extent.Field(f.Inverse)
		if inv == nil || !inv.IsLink() || inv.Extent != def.Name || inv.Inverse != f.Name {
			return apierrors.WrapValidation(apierrors.ErrInvalidLinkField, "%s.%s has no matching inverse %s.%s",
				def.Name, f.Name, f.Extent, f.Inverse)
		}
	}
	return nil
}
