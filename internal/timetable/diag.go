package timetable

import (
	"errors"
	"fmt"

	"ttcal/internal/model"
)

var (
	// ErrMissingSource is returned by an EventSource when no document exists for a unit.
	ErrMissingSource = errors.New("no source document for unit")
	// ErrSerialization marks an output document that could not be encoded.
	ErrSerialization = errors.New("serialization failure")
)

type DiagnosticKind string

const (
	DiagMissingSource    DiagnosticKind = "missing_source"
	DiagSourceError      DiagnosticKind = "source_error"
	DiagMalformedTime    DiagnosticKind = "malformed_time"
	DiagMalformedRecord  DiagnosticKind = "malformed_record"
	DiagElectiveFallback DiagnosticKind = "elective_fallback"
	DiagDuplicateUID     DiagnosticKind = "duplicate_uid"
	DiagBatchCollision   DiagnosticKind = "batch_collision"
)

// Diagnostic records one non-fatal degradation during a run.
type Diagnostic struct {
	Kind   DiagnosticKind
	Unit   model.UnitKey
	Batch  string
	Code   string
	Detail string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s %s", d.Kind, d.Unit)
	if d.Batch != "" {
		s += " batch=" + d.Batch
	}
	if d.Code != "" {
		s += " code=" + d.Code
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

type Diagnostics []Diagnostic

// Count returns how many diagnostics have the given kind.
func (ds Diagnostics) Count(kind DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
