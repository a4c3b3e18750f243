package glacier

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors shared by every stage of a merge. Geometry and topology
// errors are resolved at the smallest scope and reported as Diagnostics;
// only ErrAttributeConflict and ErrEmptyInput abort an operation.
var (
	ErrMalformedGeometry = errors.New("malformed geometry")
	ErrDegenerateSegment = errors.New("degenerate segment")
	ErrCyclicTopology    = errors.New("cyclic flowline topology")
	ErrNoConnection      = errors.New("no flow connection to root")
	ErrAttributeConflict = errors.New("attribute conflict")
	ErrEmptyInput        = errors.New("empty input set")
)

// Kind names an error class in reports.
type Kind string

const (
	KindMalformedGeometry Kind = "MalformedGeometry"
	KindDegenerateSegment Kind = "DegenerateSegment"
	KindCyclicTopology    Kind = "CyclicTopology"
	KindNoConnection      Kind = "NoConnection"
	KindAttributeConflict Kind = "AttributeConflict"
	KindEmptyInput        Kind = "EmptyInput"
	KindOther             Kind = "Other"
)

// KindOf maps err onto the sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrMalformedGeometry):
		return KindMalformedGeometry
	case errors.Is(err, ErrDegenerateSegment):
		return KindDegenerateSegment
	case errors.Is(err, ErrCyclicTopology):
		return KindCyclicTopology
	case errors.Is(err, ErrNoConnection):
		return KindNoConnection
	case errors.Is(err, ErrAttributeConflict):
		return KindAttributeConflict
	case errors.Is(err, ErrEmptyInput):
		return KindEmptyInput
	default:
		return KindOther
	}
}

// Diagnostic is a structured, non-fatal problem found while processing a
// single glacier or a single flowline segment.
type Diagnostic struct {
	Glacier string `json:"glacier" yaml:"glacier"`
	Segment int    `json:"segment" yaml:"segment"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// NewDiagnostic builds a Diagnostic. Use segment -1 for glacier-level problems.
func NewDiagnostic(glacierID string, segment int, err error) Diagnostic {
	return Diagnostic{
		Glacier: glacierID,
		Segment: segment,
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

func (d Diagnostic) String() string {
	if d.Segment < 0 {
		return fmt.Sprintf("%s: %s: %s", d.Glacier, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s[%d]: %s: %s", d.Glacier, d.Segment, d.Kind, d.Message)
}
