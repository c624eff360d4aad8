// Package domain holds the client-side model of reference checks: the Check
// Record kept in the history ledger, its per-reference results and the
// aggregate statistics derived from them.
//
// The package has no infrastructure dependencies.
package domain

import (
	"strings"
	"time"
)

// CheckID is the durable identifier of one verification job's record.
type CheckID int64

// DraftID is the reserved check id of the "compose a new check" entry.
// It is never sent to the server.
const DraftID CheckID = 0

// IsDraft reports whether id is the draft sentinel.
func (id CheckID) IsDraft() bool { return id == DraftID }

// SessionID names one open event channel for one running job.
type SessionID string

// Status is the lifecycle status of a check.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further progress is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// IsValid returns true if the status is a recognized check status.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusInProgress, StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// ParseStatus maps server status strings onto Status. The history API
// reports running jobs as "in_progress" or "checking"; unknown values are
// treated as idle.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_progress", "checking", "running", "extracting", "started":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	case "error", "failed":
		return StatusError
	default:
		return StatusIdle
	}
}

// SourceKind says how the paper was supplied.
type SourceKind string

const (
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "file"
	SourceText SourceKind = "text"
)

// Source describes the submitted paper.
type Source struct {
	Kind  SourceKind
	Value string
	// Filename is set for file sources; Value then holds the local path.
	Filename string
}

// Display returns a short human readable form of the source.
func (s Source) Display() string {
	switch s.Kind {
	case SourceFile:
		if s.Filename != "" {
			return s.Filename
		}
		return s.Value
	case SourceText:
		text := strings.TrimSpace(s.Value)
		if len(text) > 60 {
			return text[:57] + "..."
		}
		return text
	default:
		return s.Value
	}
}

// Stats are the aggregate counters of a check.
type Stats struct {
	TotalRefs       int
	ProcessedRefs   int
	Errors          int
	Warnings        int
	Suggestions     int
	Unverified      int
	Verified        int
	ProgressPercent float64
}

// Record is one entry of the history ledger.
type Record struct {
	ID     CheckID
	Title  string
	Label  string
	Source Source
	Model  string
	Status Status
	Stats  Stats

	// Session is the open session id while the job is running.
	Session SessionID

	BatchID    string
	BatchLabel string

	// References is nil until extraction completed or detail was fetched.
	References []Reference

	StatusMessage string
	ErrorMessage  string

	// DetailLoaded is true once References reflect the full result set,
	// either from live events or from a detail fetch.
	DetailLoaded bool
	// Loading is true while a detail fetch is in flight.
	Loading    bool
	FetchError string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DisplayTitle returns the label, falling back to title and then source.
func (r *Record) DisplayTitle() string {
	switch {
	case r.Label != "":
		return r.Label
	case r.Title != "":
		return r.Title
	case r.ID.IsDraft():
		return "New check"
	default:
		return r.Source.Display()
	}
}

// Paper returns the paper-level issue counts for the stored references.
func (r *Record) Paper() PaperStats {
	return ClassifyReferences(r.References)
}

// Clone returns a deep copy so callers never alias ledger internals.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.References = CloneReferences(r.References)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// NewDraft returns the sentinel "compose a new check" record.
func NewDraft() *Record {
	return &Record{
		ID:     DraftID,
		Status: StatusIdle,
	}
}
