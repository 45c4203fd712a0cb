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

package txn

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Persisted layout of a table.
//
// Objects store, one row per object id:
//   _ID               value = object id
//   {field}           scalar value, MV values joined by ValueSeparator
//   ~{link}/{target}  link edge, no value
//
// Terms store:
//   [{shard}/]{field}/{term}     column = object id
//   [{shard}/]_terms/{field}     column = term
//   [{shard}/]_                  column = object id, all objects of the shard
//   {shard}/~{link}/{owner}      column = target id, sharded link edge
//   _fields                      column = scalar field name
//   _shards                      column = shard number, value = start in epoch millis
//
// The shard prefix is omitted for shard 0.
const (
	ValueSeparator = "\uFFFE"

	FieldsRow    = "_fields"
	ShardsRow    = "_shards"
	AllObjectRow = "_"

	termsRowPrefix = "_terms/"
	linkPrefix     = "~"
)

func ShardPrefix(shard int) string {
	if shard <= 0 {
		return ""
	}
	return strconv.Itoa(shard) + "/"
}

func TermIndexRow(shard int, field, term string) string {
	return ShardPrefix(shard) + field + "/" + term
}

func TermsRow(shard int, field string) string {
	return ShardPrefix(shard) + termsRowPrefix + field
}

func AllObjectsRow(shard int) string {
	return ShardPrefix(shard) + AllObjectRow
}

func ShardedLinkRow(shard int, link, owner string) string {
	return ShardPrefix(shard) + linkPrefix + link + "/" + owner
}

func LinkColumn(link, target string) string {
	return LinkColumnPrefix(link) + target
}

func LinkColumnPrefix(link string) string {
	return linkPrefix + link + "/"
}

// ParseLinkColumn splits a link column into link name and target id.
func ParseLinkColumn(col string) (link, target string, ok bool) {
	if !strings.HasPrefix(col, linkPrefix) {
		return "", "", false
	}
	idx := strings.IndexByte(col, '/')
	if idx < 0 {
		return "", "", false
	}
	return col[len(linkPrefix):idx], col[idx+1:], true
}

// ParseShardedLinkRow splits a sharded link row into shard, link name and owner id.
func ParseShardedLinkRow(row string) (shard int, link, owner string, ok bool) {
	idx := strings.IndexByte(row, '/')
	if idx < 0 {
		return 0, "", "", false
	}
	shard, err := strconv.Atoi(row[:idx])
	if err != nil || shard <= 0 {
		return 0, "", "", false
	}
	link, owner, ok = ParseLinkColumn(row[idx+1:])
	return
}

// EncodeValues joins MV values into one stored value. Values are kept as a
// sorted set.
func EncodeValues(values []string) string {
	set := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		set = append(set, v)
	}
	sort.Strings(set)
	return strings.Join(set, ValueSeparator)
}

func DecodeValues(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ValueSeparator)
}

// EncodeShardStart returns the stored form of a shard start date.
func EncodeShardStart(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 10)
}

func DecodeShardStart(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
}

// IsSystemField reports names reserved for the engine, such as _ID.
func IsSystemField(name string) bool {
	return strings.HasPrefix(name, "_")
}

