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

type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ObjectResult struct {
	ObjectID string `json:"object_id"`
	Status   Status `json:"status"`
	Updated  bool   `json:"updated"`
	Message  string `json:"message,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (r *ObjectResult) IsError() bool {
	return r.Status == StatusError
}

// BatchResult holds one result per input object, in input order. When Status
// is StatusError the batch was aborted and Commits sub-commits may already be
// applied.
type BatchResult struct {
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Results []*ObjectResult `json:"results"`
	Commits int             `json:"commits"`
}

func (b *BatchResult) HasErrors() bool {
	if b.Status == StatusError {
		return true
	}
	for _, r := range b.Results {
		if r.IsError() {
			return true
		}
	}
	return false
}
