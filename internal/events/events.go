// Package events defines the closed set of progress events a running check
// pushes over its channel, and their wire decoding.
//
// Event is a sealed interface: only the variants in this package implement
// it. Consumers dispatch with Visit, which requires a method per variant, so
// adding a kind is a compile-time checked change for every consumer.
package events

import (
	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// Kind is the wire discriminator of an event.
type Kind string

const (
	KindStarted             Kind = "started"
	KindExtracting          Kind = "extracting"
	KindReferencesExtracted Kind = "references_extracted"
	KindCheckingReference   Kind = "checking_reference"
	KindReferenceResult     Kind = "reference_result"
	KindSummaryUpdate       Kind = "summary_update"
	KindCompleted           Kind = "completed"
	KindCancelled           Kind = "cancelled"
	KindError               Kind = "error"

	// Synthesized by the transport, never sent by the server.
	KindConnectionError Kind = "connection_error"
	KindClosed          Kind = "closed"
)

// IsTerminal reports whether the kind ends a job.
func (k Kind) IsTerminal() bool {
	return k == KindCompleted || k == KindCancelled || k == KindError
}

// Event is one message received for a session.
type Event interface {
	Kind() Kind
	// Session is the originating session id (always set by the transport).
	Session() domain.SessionID
	// Check is the explicit check id carried by the payload, or 0.
	Check() domain.CheckID
	isEvent()
}

// Envelope carries the routing identity shared by all variants.
type Envelope struct {
	SessionID domain.SessionID
	CheckID   domain.CheckID
}

func (e Envelope) Session() domain.SessionID { return e.SessionID }
func (e Envelope) Check() domain.CheckID     { return e.CheckID }
func (Envelope) isEvent()                    {}

// Started reports that the server accepted the job.
type Started struct {
	Envelope
	Message    string
	PaperTitle string
}

// Extracting reports progress of reference extraction.
type Extracting struct {
	Envelope
	Message    string
	PaperTitle string
}

// ReferencesExtracted carries the full list of discovered references.
type ReferencesExtracted struct {
	Envelope
	TotalRefs  int
	References []domain.Reference
}

// CheckingReference marks one reference as being verified.
// Index is 0-based; the decoder converts from the 1-based wire value.
type CheckingReference struct {
	Envelope
	Index int
	Title string
}

// ReferenceResult carries the verification outcome for one reference.
// Index is 0-based.
type ReferenceResult struct {
	Envelope
	Index  int
	Result domain.Reference
}

// SummaryUpdate replaces aggregate statistics wholesale.
type SummaryUpdate struct {
	Envelope
	Stats domain.Stats
}

// Completed is the terminal success event.
type Completed struct {
	Envelope
	Stats domain.Stats
}

// Cancelled is the terminal cancellation event.
type Cancelled struct {
	Envelope
	Message string
}

// Error is the terminal failure event reported by the pipeline.
type Error struct {
	Envelope
	Message string
	Details string
}

// ConnectionError is a non-fatal channel-level failure.
type ConnectionError struct {
	Envelope
	Message string
}

// Closed reports that the channel terminated.
type Closed struct {
	Envelope
	Code   int
	Reason string
}

// Unknown wraps a frame whose kind this client does not understand.
type Unknown struct {
	Envelope
	RawKind string
}

func (Started) Kind() Kind             { return KindStarted }
func (Extracting) Kind() Kind          { return KindExtracting }
func (ReferencesExtracted) Kind() Kind { return KindReferencesExtracted }
func (CheckingReference) Kind() Kind   { return KindCheckingReference }
func (ReferenceResult) Kind() Kind     { return KindReferenceResult }
func (SummaryUpdate) Kind() Kind       { return KindSummaryUpdate }
func (Completed) Kind() Kind           { return KindCompleted }
func (Cancelled) Kind() Kind           { return KindCancelled }
func (Error) Kind() Kind               { return KindError }
func (ConnectionError) Kind() Kind     { return KindConnectionError }
func (Closed) Kind() Kind              { return KindClosed }
func (u Unknown) Kind() Kind           { return Kind(u.RawKind) }

// Visitor handles every event variant.
type Visitor interface {
	Started(Started)
	Extracting(Extracting)
	ReferencesExtracted(ReferencesExtracted)
	CheckingReference(CheckingReference)
	ReferenceResult(ReferenceResult)
	SummaryUpdate(SummaryUpdate)
	Completed(Completed)
	Cancelled(Cancelled)
	Error(Error)
	ConnectionError(ConnectionError)
	Closed(Closed)
	Unknown(Unknown)
}

// Visit dispatches ev to the matching Visitor method.
func Visit(ev Event, v Visitor) {
	switch e := ev.(type) {
	case Started:
		v.Started(e)
	case Extracting:
		v.Extracting(e)
	case ReferencesExtracted:
		v.ReferencesExtracted(e)
	case CheckingReference:
		v.CheckingReference(e)
	case ReferenceResult:
		v.ReferenceResult(e)
	case SummaryUpdate:
		v.SummaryUpdate(e)
	case Completed:
		v.Completed(e)
	case Cancelled:
		v.Cancelled(e)
	case Error:
		v.Error(e)
	case ConnectionError:
		v.ConnectionError(e)
	case Closed:
		v.Closed(e)
	case Unknown:
		v.Unknown(e)
	}
}

// Stamp returns ev with its session id set to session. The transport calls
// it on every frame so routing never depends on the payload naming its origin.
func Stamp(ev Event, session domain.SessionID) Event {
	switch e := ev.(type) {
	case Started:
		e.SessionID = session
		return e
	case Extracting:
		e.SessionID = session
		return e
	case ReferencesExtracted:
		e.SessionID = session
		return e
	case CheckingReference:
		e.SessionID = session
		return e
	case ReferenceResult:
		e.SessionID = session
		return e
	case SummaryUpdate:
		e.SessionID = session
		return e
	case Completed:
		e.SessionID = session
		return e
	case Cancelled:
		e.SessionID = session
		return e
	case Error:
		e.SessionID = session
		return e
	case ConnectionError:
		e.SessionID = session
		return e
	case Closed:
		e.SessionID = session
		return e
	case Unknown:
		e.SessionID = session
		return e
	default:
		return ev
	}
}
