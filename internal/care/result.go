// Package care holds the plant and maintenance task lifecycles. Services are
// stateless: every call receives the unit of work it operates on.
package care

import (
	"sort"
	"strings"
)

type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	// StatusInvalid carries field errors and the caller's input unchanged.
	StatusInvalid
	// StatusConflict means the row still exists but changed since it was
	// read. It is never retried.
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusInvalid:
		return "invalid"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// FieldErrors maps a field name to its validation message.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, message string) {
	f[field] = message
}

func (f FieldErrors) Any() bool {
	return len(f) > 0
}

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+f[field])
	}
	return strings.Join(parts, "; ")
}

type Result[T any] struct {
	Status Status
	Value  T
	Errors FieldErrors
}

func (r Result[T]) OK() bool {
	return r.Status == StatusOK
}

func ok[T any](value T) Result[T] {
	return Result[T]{Status: StatusOK, Value: value}
}

func notFound[T any]() Result[T] {
	return Result[T]{Status: StatusNotFound}
}

func invalid[T any](input T, errs FieldErrors) Result[T] {
	return Result[T]{Status: StatusInvalid, Value: input, Errors: errs}
}

func conflict[T any](input T) Result[T] {
	return Result[T]{Status: StatusConflict, Value: input}
}

// Recorder receives the outcome of every write operation.
type Recorder interface {
	RecordOperation(entity, operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, string) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
