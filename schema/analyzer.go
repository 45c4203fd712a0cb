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
	"sort"
	"strconv"
	"strings"
	"unicode"

	apierrors "github.com/cubefs/objectdb/errors"
)

const (
	AnalyzerText    = "text"
	AnalyzerOpaque  = "opaque"
	AnalyzerInteger = "integer"
	AnalyzerBoolean = "boolean"
	AnalyzerNull    = "null"
)

// Analyzer turns a scalar value into the distinct terms it is indexed under.
type Analyzer interface {
	Analyze(value string) ([]string, error)
}

var analyzers = map[string]Analyzer{
	AnalyzerText:    textAnalyzer{},
	AnalyzerOpaque:  opaqueAnalyzer{},
	AnalyzerInteger: integerAnalyzer{},
	AnalyzerBoolean: booleanAnalyzer{},
	AnalyzerNull:    nullAnalyzer{},
}

func GetAnalyzer(name string) (Analyzer, error) {
	a, ok := analyzers[name]
	if !ok {
		return nil, apierrors.ErrUnknownAnalyzer
	}
	return a, nil
}

// AnalyzeValues returns the sorted union of the terms of every value.
func AnalyzeValues(a Analyzer, values []string) ([]string, error) {
	var terms []string
	for _, v := range values {
		t, err := a.Analyze(v)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t...)
	}
	return dedup(terms), nil
}

type textAnalyzer struct{}

func (textAnalyzer) Analyze(value string) ([]string, error) {
	tokens := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return dedup(tokens), nil
}

type opaqueAnalyzer struct{}

func (opaqueAnalyzer) Analyze(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	return []string{strings.ToLower(value)}, nil
}

type integerAnalyzer struct{}

func (integerAnalyzer) Analyze(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, apierrors.NewValidationError("invalid integer value: %q", value)
	}
	return []string{strconv.FormatInt(n, 10)}, nil
}

type booleanAnalyzer struct{}

func (booleanAnalyzer) Analyze(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, apierrors.NewValidationError("invalid boolean value: %q", value)
	}
	return []string{strconv.FormatBool(b)}, nil
}

type nullAnalyzer struct{}

func (nullAnalyzer) Analyze(value string) ([]string, error) {
	return nil, nil
}

func dedup(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	sort.Strings(terms)
	ret := terms[:1]
	for _, t := range terms[1:] {
		if t != ret[len(ret)-1] {
			ret = append(ret, t)
		}
	}
	return ret
}
