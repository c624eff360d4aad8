package presentation

import (
	"fmt"
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// CheckDTO is one history entry as printed by the CLI.
type CheckDTO struct {
	ID          int64          `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Label       string         `json:"label,omitempty" yaml:"label,omitempty"`
	Source      string         `json:"source" yaml:"source"`
	Model       string         `json:"model,omitempty" yaml:"model,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	Batch       string         `json:"batch,omitempty" yaml:"batch,omitempty"`
	Processed   int            `json:"processed_refs" yaml:"processed_refs"`
	Total       int            `json:"total_refs" yaml:"total_refs"`
	Paper       PaperDTO       `json:"paper" yaml:"paper"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	References  []ReferenceDTO `json:"references,omitempty" yaml:"references,omitempty"`
}

// PaperDTO counts references per bucket.
type PaperDTO struct {
	Verified     int `json:"verified" yaml:"verified"`
	WithErrors   int `json:"with_errors" yaml:"with_errors"`
	WarningsOnly int `json:"warnings_only" yaml:"warnings_only"`
	Unverified   int `json:"unverified" yaml:"unverified"`
}

// ReferenceDTO is one checked reference.
type ReferenceDTO struct {
	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year     string   `json:"year,omitempty" yaml:"year,omitempty"`
	Status   string   `json:"status" yaml:"status"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FromRecord converts a ledger record. References are included only when
// withRefs is set.
func FromRecord(r *domain.Record, withRefs bool) CheckDTO {
	paper := r.Paper()
	if r.References == nil {
		// History listings carry no references; fall back to server counters.
		paper = domain.PaperStats{
			Verified:   r.Stats.Verified,
			WithErrors: r.Stats.Errors,
			Unverified: r.Stats.Unverified,
		}
	}
	dto := CheckDTO{
		ID:        int64(r.ID),
		Title:     r.DisplayTitle(),
		Label:     r.Label,
		Source:    r.Source.Display(),
		Model:     r.Model,
		Status:    string(r.Status),
		Batch:     r.BatchLabel,
		Processed: r.Stats.ProcessedRefs,
		Total:     r.Stats.TotalRefs,
		Paper: PaperDTO{
			Verified:     paper.Verified,
			WithErrors:   paper.WithErrors,
			WarningsOnly: paper.WarningsOnly,
			Unverified:   paper.Unverified,
		},
		Error:       r.ErrorMessage,
		CompletedAt: r.CompletedAt,
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		dto.CreatedAt = &created
	}
	if withRefs {
		dto.References = make([]ReferenceDTO, 0, len(r.References))
		for _, ref := range r.References {
			dto.References = append(dto.References, FromReference(ref))
		}
	}
	return dto
}

// FromRecords converts a history listing.
func FromRecords(records []*domain.Record) []CheckDTO {
	dtos := make([]CheckDTO, 0, len(records))
	for _, r := range records {
		if r.ID.IsDraft() {
			continue
		}
		dtos = append(dtos, FromRecord(r, false))
	}
	return dtos
}

// FromReference converts one reference, flattening issues to text.
func FromReference(ref domain.Reference) ReferenceDTO {
	return ReferenceDTO{
		Title:    ref.Title,
		Authors:  ref.Authors,
		Year:     ref.Year,
		Status:   string(ref.Status),
		Errors:   issueText(ref.Errors),
		Warnings: issueText(ref.Warnings),
	}
}

func issueText(issues []domain.Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, is := range issues {
		text := is.Type
		if is.Detail != "" {
			text += ": " + is.Detail
		}
		if is.Cited != "" || is.Correct != "" {
			text += fmt.Sprintf(" (cited %q, correct %q)", is.Cited, is.Correct)
		}
		out[i] = text
	}
	return out
}
