/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# ObjectDB: secondary indexing over a column store

## What is it?

1, a document-like object model, named scalar fields and link fields, kept in a generic column store

2, a full inverted term index maintained on every write

3, bidirectional links, the inverse edge is written together with the forward one

4, time based sharding, an object moves to its new shard when its sharding field changes

## Data Model

* Table, a named set of field definitions with an optional sharding config. A table owns two stores, {table} and {table}_Terms.

* Object, a row of the objects store keyed by its _ID, one column per scalar field

* Term, a token produced by the field analyzer, indexed at row [shard/]field/term with the object id as column

* Link, a valueless column ~link/target in the owner row, or a row shard/~link/owner in the terms store when sharded

* Shard, 0 is the default shard. Shard N >= 1 covers [start + (N-1)*granularity, start + N*granularity)

## Writes

Batches are applied object by object. Every object either succeeds as a whole or fails
with its own result, and the accumulated mutations are committed every
batch_mutation_threshold mutations and at the end of the batch.

## Reads

Link and term pages merge the rows of every requested shard in id order and
return a cursor for the next page.

## Building Blocks

* Rocksdb
* Prometheus
* blobstore rpc, trace & log

*/

package objectdb
