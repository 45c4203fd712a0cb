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

package proto

// Page is one page of object ids. Next is the id to resume from, empty when
// no more ids remain.
type Page struct {
	IDs  []string `json:"ids"`
	Next string   `json:"next,omitempty"`
}

type Stats struct {
	Tables []TableStats `json:"tables"`
}

type TableStats struct {
	Name   string         `json:"name"`
	Shards map[int]string `json:"shards,omitempty"`
}
