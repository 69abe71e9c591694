// Package audit records who did what to which network or solver run.
// Entries are built with a fluent Builder and written by a Logger backend:
// the structured application log, a rotated JSONL file or an in-memory
// buffer used in tests.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of operation an entry describes.
type Action string

const (
	// ActionBuild is the construction of a network from geodata.
	ActionBuild Action = "BUILD"
	// ActionImport is loading a network from a tabular directory.
	ActionImport Action = "IMPORT"
	// ActionExport is writing a stored network to a tabular directory.
	ActionExport Action = "EXPORT"
	// ActionSolve is a hydraulic solver run.
	ActionSolve Action = "SOLVE"
	// ActionReport is rendering a report for a solver run.
	ActionReport Action = "REPORT"
	// ActionRead is any read-only lookup.
	ActionRead Action = "READ"
	// ActionDelete is removal of a stored run.
	ActionDelete Action = "DELETE"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	// OutcomeDenied is used when authentication or rate limiting rejected the call.
	OutcomeDenied Outcome = "DENIED"
)

// Entry is a single audit record.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Service      string         `json:"service"`
	Method       string         `json:"method"`
	Action       Action         `json:"action"`
	Outcome      Outcome        `json:"outcome"`
	Subject      string         `json:"subject,omitempty"`
	Role         string         `json:"role,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Resource     string         `json:"resource,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger is implemented by audit backends.
type Logger interface {
	// Log records an entry. Backends must be safe for concurrent use.
	Log(ctx context.Context, entry *Entry) error
	Close() error
}

// QueryFilter selects entries from a MemoryLogger. Zero fields match anything.
type QueryFilter struct {
	Since      time.Time
	Method     string
	Action     Action
	Outcome    Outcome
	Subject    string
	ResourceID string
	Limit      int
}

func (f *QueryFilter) match(e *Entry) bool {
	switch {
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case f.Method != "" && e.Method != f.Method:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.Outcome != "" && e.Outcome != f.Outcome:
		return false
	case f.Subject != "" && e.Subject != f.Subject:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	}
	return true
}

// Builder provides a fluent API for constructing an Entry.
type Builder struct {
	entry *Entry
}

// NewEntry starts an entry stamped with the current time.
func NewEntry() *Builder {
	return &Builder{
		entry: &Entry{
			Timestamp: time.Now(),
			Metadata:  make(map[string]any),
		},
	}
}

func (b *Builder) Service(s string) *Builder {
	b.entry.Service = s
	return b
}

func (b *Builder) Method(m string) *Builder {
	b.entry.Method = m
	return b
}

func (b *Builder) Action(a Action) *Builder {
	b.entry.Action = a
	return b
}

func (b *Builder) Outcome(o Outcome) *Builder {
	b.entry.Outcome = o
	return b
}

// Subject sets the authenticated caller and its role.
func (b *Builder) Subject(subject, role string) *Builder {
	b.entry.Subject = subject
	b.entry.Role = role
	return b
}

func (b *Builder) Client(ip, userAgent string) *Builder {
	b.entry.ClientIP = ip
	b.entry.UserAgent = userAgent
	return b
}

// Resource sets the affected resource kind ("network", "run") and its id.
func (b *Builder) Resource(resource, resourceID string) *Builder {
	b.entry.Resource = resource
	b.entry.ResourceID = resourceID
	return b
}

func (b *Builder) Duration(d time.Duration) *Builder {
	b.entry.DurationMs = d.Milliseconds()
	return b
}

// Error records a failure. The outcome is left untouched.
func (b *Builder) Error(code, message string) *Builder {
	b.entry.ErrorCode = code
	b.entry.ErrorMessage = message
	return b
}

func (b *Builder) Meta(key string, value any) *Builder {
	b.entry.Metadata[key] = value
	return b
}

// Build returns the entry, assigning a random id if none was set.
func (b *Builder) Build() *Entry {
	if b.entry.ID == "" {
		b.entry.ID = uuid.NewString()
	}
	if len(b.entry.Metadata) == 0 {
		b.entry.Metadata = nil
	}
	return b.entry
}
