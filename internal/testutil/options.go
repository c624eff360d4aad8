package testutil

import (
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// RecordOption configures a record during builder setup.
type RecordOption func(*domain.Record)

// defaultRecord returns a completed URL check created now.
func defaultRecord(id domain.CheckID) *domain.Record {
	return &domain.Record{
		ID:        id,
		Source:    domain.Source{Kind: domain.SourceURL, Value: "https://example.org/paper.pdf"},
		Model:     "anthropic",
		Status:    domain.StatusCompleted,
		CreatedAt: time.Now(),
	}
}

// Title sets the paper title.
func Title(title string) RecordOption {
	return func(r *domain.Record) { r.Title = title }
}

// Label sets the user label.
func Label(label string) RecordOption {
	return func(r *domain.Record) { r.Label = label }
}

// Status sets the status. Terminal statuses get a completion time.
func Status(status domain.Status) RecordOption {
	return func(r *domain.Record) {
		r.Status = status
		if status.IsTerminal() && r.CompletedAt == nil {
			now := time.Now()
			r.CompletedAt = &now
		}
		if !status.IsTerminal() {
			r.CompletedAt = nil
		}
	}
}

// URL makes the source a URL.
func URL(u string) RecordOption {
	return func(r *domain.Record) { r.Source = domain.Source{Kind: domain.SourceURL, Value: u} }
}

// File makes the source an uploaded file.
func File(path, name string) RecordOption {
	return func(r *domain.Record) {
		r.Source = domain.Source{Kind: domain.SourceFile, Value: path, Filename: name}
	}
}

// Progress sets the reference counters.
func Progress(processed, total int) RecordOption {
	return func(r *domain.Record) {
		r.Stats.ProcessedRefs = processed
		r.Stats.TotalRefs = total
	}
}

// Batch puts the record in a batch.
func Batch(id, label string) RecordOption {
	return func(r *domain.Record) {
		r.BatchID = id
		r.BatchLabel = label
	}
}

// Failed marks the record as errored with msg.
func Failed(msg string) RecordOption {
	return func(r *domain.Record) {
		Status(domain.StatusError)(r)
		r.ErrorMessage = msg
	}
}

// CreatedAt sets the creation time.
func CreatedAt(t time.Time) RecordOption {
	return func(r *domain.Record) { r.CreatedAt = t }
}

// Refs attaches results and marks the detail as loaded. Counters follow
// the references.
func Refs(refs ...domain.Reference) RecordOption {
	return func(r *domain.Record) {
		r.References = domain.CloneReferences(refs)
		r.DetailLoaded = true
		r.Stats.TotalRefs = len(refs)
		r.Stats.ProcessedRefs = domain.CountResolved(refs)
		paper := domain.ClassifyReferences(refs)
		r.Stats.Verified = paper.Verified
		r.Stats.Errors = paper.WithErrors
		r.Stats.Unverified = paper.Unverified
	}
}

// Ref returns a reference with the given outcome.
func Ref(title string, status domain.RefStatus) domain.Reference {
	return domain.Reference{Title: title, Status: status}
}

// RefWithError returns a reference flagged with one error.
func RefWithError(title, issueType, detail string) domain.Reference {
	return domain.Reference{
		Title:  title,
		Status: domain.RefError,
		Errors: []domain.Issue{{Type: issueType, Detail: detail}},
	}
}

// RefWithWarning returns a reference flagged with one warning.
func RefWithWarning(title, issueType, detail string) domain.Reference {
	return domain.Reference{
		Title:    title,
		Status:   domain.RefWarning,
		Warnings: []domain.Issue{{Type: issueType, Detail: detail}},
	}
}
