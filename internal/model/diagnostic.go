// internal/model/diagnostic.go
package model

import "fmt"

// DiagnosticKind classifies a rejection reported while applying configuration
type DiagnosticKind string

const (
	DiagnosticMalformedEntry DiagnosticKind = "MALFORMED_ENTRY"
	DiagnosticUnknownRecord  DiagnosticKind = "UNKNOWN_RECORD"
	DiagnosticUnknownField   DiagnosticKind = "UNKNOWN_FIELD"
	DiagnosticInvalidValue   DiagnosticKind = "INVALID_VALUE"
	DiagnosticNotConfigured  DiagnosticKind = "NOT_CONFIGURED"
	DiagnosticSanityFailed   DiagnosticKind = "SANITY_FAILED"
)

// Diagnostic is one recoverable problem found in a configuration entry
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Record string         `json:"record"`
	Field  string         `json:"field,omitempty"`
	Value  any            `json:"value,omitempty"`
	Reason string         `json:"reason"`
	Err    error          `json:"-"`
}

func (d Diagnostic) String() string {
	if d.Field == "" {
		return fmt.Sprintf("record:%s %s", d.Record, d.Reason)
	}
	return fmt.Sprintf("record:%s item:%s value:%v %s", d.Record, d.Field, d.Value, d.Reason)
}
