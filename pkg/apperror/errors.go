// Package apperror provides structured application errors for the heating
// network model: specific codes grouped into families (topology, consistency,
// demand, solver), severity levels, additional details and a mapping to
// ConnectRPC status codes.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"connectrpc.com/connect"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	// Topology construction
	CodeNoBuildings          ErrorCode = "NO_BUILDINGS"
	CodeEmptyStreetGraph     ErrorCode = "EMPTY_STREET_GRAPH"
	CodeSegmentNotFound      ErrorCode = "SEGMENT_NOT_FOUND"
	CodeUnsupportedCRS       ErrorCode = "UNSUPPORTED_CRS"
	CodeInvalidGeometry      ErrorCode = "INVALID_GEOMETRY"
	CodeInvalidBuilderConfig ErrorCode = "INVALID_BUILDER_CONFIG"

	// Data model consistency
	CodeInconsistentNetwork ErrorCode = "INCONSISTENT_NETWORK"
	CodeDanglingEdge        ErrorCode = "DANGLING_EDGE"
	CodeDuplicateNode       ErrorCode = "DUPLICATE_NODE"
	CodeDuplicateEdge       ErrorCode = "DUPLICATE_EDGE"
	CodeSelfLoop            ErrorCode = "SELF_LOOP"
	CodeProducerCount       ErrorCode = "PRODUCER_COUNT"
	CodeUnreachableNode     ErrorCode = "UNREACHABLE_NODE"
	CodeUnknownTable        ErrorCode = "UNKNOWN_TABLE"
	CodeMalformedTable      ErrorCode = "MALFORMED_TABLE"

	// Demand
	CodeInvalidDemand ErrorCode = "INVALID_DEMAND"

	// Solver
	CodeSingularSystem      ErrorCode = "SINGULAR_SYSTEM"
	CodeUnsupportedTopology ErrorCode = "UNSUPPORTED_TOPOLOGY"

	// General
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeNilInput         ErrorCode = "NIL_INPUT"
	CodeTimeout          ErrorCode = "TIMEOUT"
)

// Family groups error codes into the error kinds exposed to callers.
type Family string

const (
	FamilyTopology       Family = "TopologyError"
	FamilyConsistency    Family = "ConsistencyError"
	FamilyInvalidDemand  Family = "InvalidDemandError"
	FamilySingularSystem Family = "SingularSystemError"
	FamilyGeneral        Family = "Error"
)

var families = map[ErrorCode]Family{
	CodeNoBuildings:          FamilyTopology,
	CodeEmptyStreetGraph:     FamilyTopology,
	CodeSegmentNotFound:      FamilyTopology,
	CodeUnsupportedCRS:       FamilyTopology,
	CodeInvalidGeometry:      FamilyTopology,
	CodeInvalidBuilderConfig: FamilyTopology,

	CodeInconsistentNetwork: FamilyConsistency,
	CodeDanglingEdge:        FamilyConsistency,
	CodeDuplicateNode:       FamilyConsistency,
	CodeDuplicateEdge:       FamilyConsistency,
	CodeSelfLoop:            FamilyConsistency,
	CodeProducerCount:       FamilyConsistency,
	CodeUnreachableNode:     FamilyConsistency,
	CodeUnknownTable:        FamilyConsistency,
	CodeMalformedTable:      FamilyConsistency,

	CodeInvalidDemand: FamilyInvalidDemand,

	CodeSingularSystem:      FamilySingularSystem,
	CodeUnsupportedTopology: FamilySingularSystem,
}

// FamilyOf returns the family an error code belongs to.
func FamilyOf(code ErrorCode) Family {
	if f, ok := families[code]; ok {
		return f
	}
	return FamilyGeneral
}

// Severity defines the criticality level of an error.
type Severity int

const (
	// SeverityWarning indicates a non-critical issue.
	SeverityWarning Severity = iota
	// SeverityError indicates a standard error that requires attention.
	SeverityError
	// SeverityCritical indicates a severe error.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a custom error type that includes an ErrorCode, message,
// an optional field, additional details, an underlying cause, and a severity level.
type Error struct {
	Code     ErrorCode      // Code is a unique identifier for the type of error.
	Message  string         // Message is a human-readable description of the error.
	Field    string         // Field names the node, pipe, snapshot or setting that caused the error.
	Details  map[string]any // Details provides additional structured information about the error.
	Cause    error          // Cause is the underlying error that triggered this application error.
	Severity Severity       // Severity indicates the criticality level of the error.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s [%s] %s (field: %s)", e.Family(), e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s [%s] %s", e.Family(), e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Family returns the family of the error code.
func (e *Error) Family() Family {
	return FamilyOf(e.Code)
}

// ConnectCode maps the error to a connect.Code.
func (e *Error) ConnectCode() connect.Code {
	switch e.Code {
	case CodeNotFound:
		return connect.CodeNotFound
	case CodeUnauthenticated:
		return connect.CodeUnauthenticated
	case CodePermissionDenied:
		return connect.CodePermissionDenied
	case CodeTimeout:
		return connect.CodeDeadlineExceeded
	case CodeInvalidArgument, CodeNilInput:
		return connect.CodeInvalidArgument
	}

	switch e.Family() {
	case FamilyTopology, FamilyInvalidDemand:
		return connect.CodeInvalidArgument
	case FamilyConsistency, FamilySingularSystem:
		return connect.CodeFailedPrecondition
	default:
		return connect.CodeInternal
	}
}

// New creates a new application error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithField creates a new application error with the given code, message, and field.
func NewWithField(code ErrorCode, message, field string) *Error {
	e := New(code, message)
	e.Field = field
	return e
}

// Wrap creates a new application error that wraps an existing error.
func Wrap(cause error, code ErrorCode, message string) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithDetails adds a key-value pair to the error's details map and returns the modified error.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithField sets the field associated with the error and returns the modified error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSeverity sets the severity level of the error and returns the modified error.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// Is reports whether err or any error it wraps (including joined errors)
// is an application error with the given code.
func Is(err error, code ErrorCode) bool {
	found := false
	walk(err, func(e *Error) bool {
		if e.Code == code {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsFamily reports whether the outermost application error in err belongs to family.
func IsFamily(err error, family Family) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Family() == family
	}
	return false
}

// Code extracts the ErrorCode from an error. If the error is not an *Error,
// it returns CodeInternal.
func Code(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// FamilyOfError returns the family of the outermost application error in err.
func FamilyOfError(err error) Family {
	return FamilyOf(Code(err))
}

// ToConnect converts any error into a *connect.Error.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		cErr := connect.NewError(appErr.ConnectCode(), err)
		cErr.Meta().Set("x-error-code", string(appErr.Code))
		cErr.Meta().Set("x-error-family", string(appErr.Family()))
		return cErr
	}

	return connect.NewError(connect.CodeInternal, err)
}

// walk visits application errors in the chain depth-first until fn returns false.
func walk(err error, fn func(*Error) bool) bool {
	if err == nil {
		return true
	}
	if e, ok := err.(*Error); ok {
		if !fn(e) {
			return false
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if !walk(inner, fn) {
				return false
			}
		}
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), fn)
	}
	return true
}

// Predefined errors for common scenarios.
var (
	ErrNilTopology  = New(CodeNilInput, "topology is nil")
	ErrNilDemand    = New(CodeNilInput, "demand matrix is nil")
	ErrNoBuildings  = New(CodeNoBuildings, "no building points supplied")
	ErrEmptyStreets = New(CodeEmptyStreetGraph, "street graph has no edges")
)

// ValidationErrors is a collection of application errors and warnings,
// used for aggregating results of multiple consistency checks.
type ValidationErrors struct {
	Errors   []*Error // Errors contains all collected errors (SeverityError and SeverityCritical).
	Warnings []*Error // Warnings contains all collected warnings (SeverityWarning).
}

// NewValidationErrors creates and returns a new empty ValidationErrors collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors:   make([]*Error, 0),
		Warnings: make([]*Error, 0),
	}
}

// Add appends an *Error to the appropriate slice based on its Severity.
func (v *ValidationErrors) Add(err *Error) {
	if err.Severity == SeverityWarning {
		v.Warnings = append(v.Warnings, err)
	} else {
		v.Errors = append(v.Errors, err)
	}
}

// AddError creates and adds a new application error with SeverityError.
func (v *ValidationErrors) AddError(code ErrorCode, message string) {
	v.Errors = append(v.Errors, New(code, message))
}

// AddErrorWithField creates and adds a new application error with a specific field.
func (v *ValidationErrors) AddErrorWithField(code ErrorCode, message, field string) {
	v.Errors = append(v.Errors, NewWithField(code, message, field))
}

// AddWarning creates and adds a new application error with SeverityWarning.
func (v *ValidationErrors) AddWarning(code ErrorCode, message string) {
	v.Warnings = append(v.Warnings, New(code, message).WithSeverity(SeverityWarning))
}

// HasErrors returns true if the collection contains any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// IsValid returns true if the collection contains no errors.
func (v *ValidationErrors) IsValid() bool {
	return !v.HasErrors()
}

// Merge combines the current ValidationErrors collection with another one.
func (v *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// ErrorMessages returns a slice of string messages for all collected errors.
func (v *ValidationErrors) ErrorMessages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// Err collapses the collection into a single error with the given code, or nil
// when there is nothing to report. Individual errors stay reachable through
// errors.As / Is, and their codes are listed in the "violations" detail.
func (v *ValidationErrors) Err(code ErrorCode, message string) error {
	if !v.HasErrors() {
		return nil
	}

	causes := make([]error, len(v.Errors))
	codes := make(map[string]int)
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		causes[i] = e
		codes[string(e.Code)]++
		parts[i] = e.Message
	}

	violations := make([]string, 0, len(codes))
	for c := range codes {
		violations = append(violations, c)
	}
	sort.Strings(violations)

	return Wrap(errors.Join(causes...), code, message+": "+strings.Join(parts, "; ")).
		WithDetails("violations", violations).
		WithDetails("count", len(v.Errors))
}
