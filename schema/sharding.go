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

package schema

import (
	"strings"
	"time"

	apierrors "github.com/cubefs/objectdb/errors"
)

type Granularity string

const (
	GranularityHour  = Granularity("HOUR")
	GranularityDay   = Granularity("DAY")
	GranularityWeek  = Granularity("WEEK")
	GranularityMonth = Granularity("MONTH")

	dateLayout = "2006-01-02"
)

var timestampLayouts = []string{
	dateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

type ShardingConfig struct {
	Field       string      `json:"field"`
	Granularity Granularity `json:"granularity"`
	Start       string      `json:"start"`

	start time.Time
}

func (s *ShardingConfig) init() error {
	s.Granularity = Granularity(strings.ToUpper(string(s.Granularity)))
	switch s.Granularity {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
	default:
		return apierrors.ErrInvalidSharding
	}
	start, err := ParseTimestamp(s.Start)
	if err != nil {
		return apierrors.ErrInvalidSharding
	}
	s.start = start
	return nil
}

// shardNumber maps t to its shard: 0 before start, otherwise one plus the
// number of whole periods elapsed since start.
func (s *ShardingConfig) shardNumber(t time.Time) int {
	if t.Before(s.start) {
		return 0
	}
	switch s.Granularity {
	case GranularityMonth:
		months := (t.Year()-s.start.Year())*12 + int(t.Month()) - int(s.start.Month())
		if t.Before(s.start.AddDate(0, months, 0)) {
			months--
		}
		return months + 1
	default:
		return int(t.Sub(s.start)/s.period()) + 1
	}
}

func (s *ShardingConfig) shardStart(n int) time.Time {
	if n <= 1 {
		return s.start
	}
	if s.Granularity == GranularityMonth {
		return s.start.AddDate(0, n-1, 0)
	}
	return s.start.Add(time.Duration(n-1) * s.period())
}

func (s *ShardingConfig) period() time.Duration {
	switch s.Granularity {
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	case GranularityWeek:
		return 7 * 24 * time.Hour
	}
	return 0
}

// ParseTimestamp parses a timestamp field value in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apierrors.NewValidationError("invalid timestamp value: %q", value)
}
