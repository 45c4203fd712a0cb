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

package errors

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound      = errors.New("table does not exist")
	ErrTableAlreadyExists = errors.New("table already exists")
	ErrObjectNotFound     = errors.New("object does not exist")

	ErrStoreUnavailable = errors.New("column store unavailable")

	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownFieldType  = errors.New("unknown field type")
	ErrUnknownAnalyzer   = errors.New("unknown analyzer")
	ErrInvalidSharding   = errors.New("invalid sharding config")
	ErrInvalidLinkField  = errors.New("invalid link field")
	ErrDuplicateObjectID = errors.New("duplicate object id in batch")
)

// ValidationError is an expected failure caused by the caller's input. It is
// reported per object and never aborts a batch.
type ValidationError struct {
	msg   string
	cause error
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// WrapValidation returns a validation error that matches cause with errors.Is.
func WrapValidation(cause error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf("%s: %s", cause, fmt.Sprintf(format, args...)), cause: cause}
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StoreError wraps a failure of the column store. It is fatal for the object
// or batch in flight.
type StoreError struct {
	Err error
}

func NewStoreError(err error) *StoreError {
	return &StoreError{Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
