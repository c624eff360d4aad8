package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
)

// Submission is a request to start one check.
type Submission struct {
	Source domain.Source
	// Model selects the LLM provider; empty uses the server default.
	Model      string
	BatchID    string
	BatchLabel string
}

// Started is the server's answer to a submission.
type Started struct {
	SessionID domain.SessionID
	CheckID   domain.CheckID
	// Source is the server's display form of the submitted source.
	Source string
}

// ActiveSession is a job the server reports as still running.
type ActiveSession struct {
	SessionID domain.SessionID `json:"session_id"`
	CheckID   domain.CheckID   `json:"check_id"`
}

type submitRequest struct {
	SourceType  string `json:"source_type"`
	SourceValue string `json:"source_value"`
	LLMProvider string `json:"llm_provider,omitempty"`
	BatchID     string `json:"batch_id,omitempty"`
	BatchLabel  string `json:"batch_label,omitempty"`
}

type submitResponse struct {
	SessionID string         `json:"session_id"`
	CheckID   domain.CheckID `json:"check_id"`
	Source    string         `json:"source"`
}

type renameRequest struct {
	CustomLabel string `json:"custom_label"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Detail, e.Message, e.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// checkRecord is the history row (and, with results, the detail record).
type checkRecord struct {
	ID               domain.CheckID  `json:"id"`
	PaperTitle       string          `json:"paper_title"`
	PaperSource      string          `json:"paper_source"`
	SourceType       string          `json:"source_type"`
	CustomLabel      string          `json:"custom_label"`
	Status           string          `json:"status"`
	TotalRefs        int             `json:"total_refs"`
	ProcessedRefs    int             `json:"processed_refs"`
	ErrorsCount      int             `json:"errors_count"`
	WarningsCount    int             `json:"warnings_count"`
	SuggestionsCount int             `json:"suggestions_count"`
	UnverifiedCount  int             `json:"unverified_count"`
	VerifiedCount    int             `json:"verified_count"`
	LLMProvider      string          `json:"llm_provider"`
	BatchID          string          `json:"batch_id"`
	BatchLabel       string          `json:"batch_label"`
	ErrorMessage     string          `json:"error_message"`
	Timestamp        string          `json:"timestamp"`
	CompletedAt      string          `json:"completed_at"`
	Results          json.RawMessage `json:"results"`
}

func (c checkRecord) toDomain(withResults bool) (*domain.Record, error) {
	status := domain.ParseStatus(c.Status)
	rec := &domain.Record{
		ID:     c.ID,
		Title:  c.PaperTitle,
		Label:  c.CustomLabel,
		Source: domain.Source{Kind: sourceKind(c.SourceType), Value: c.PaperSource},
		Model:  c.LLMProvider,
		Status: status,
		Stats: domain.Stats{
			TotalRefs:     c.TotalRefs,
			ProcessedRefs: c.ProcessedRefs,
			Errors:        c.ErrorsCount,
			Warnings:      c.WarningsCount,
			Suggestions:   c.SuggestionsCount,
			Unverified:    c.UnverifiedCount,
			Verified:      c.VerifiedCount,
		},
		BatchID:      c.BatchID,
		BatchLabel:   c.BatchLabel,
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    parseTime(c.Timestamp),
	}
	if rec.Source.Kind == domain.SourceFile {
		rec.Source.Filename = c.PaperSource
	}
	if status == domain.StatusCompleted && rec.Stats.ProcessedRefs < rec.Stats.TotalRefs {
		rec.Stats.ProcessedRefs = rec.Stats.TotalRefs
	}
	if t := parseTime(c.CompletedAt); !t.IsZero() {
		rec.CompletedAt = &t
	}
	if withResults {
		refs, err := events.DecodeReferences(c.Results)
		if err != nil {
			return nil, err
		}
		if refs == nil {
			refs = []domain.Reference{}
		}
		rec.References = refs
		rec.DetailLoaded = true
	}
	return rec, nil
}

func sourceKind(s string) domain.SourceKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "pdf", "upload":
		return domain.SourceFile
	case "text", "bibtex", "raw":
		return domain.SourceText
	default:
		return domain.SourceURL
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
