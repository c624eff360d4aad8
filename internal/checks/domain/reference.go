package domain

import (
	"slices"
	"strings"
)

// RefStatus is the verification status of one reference.
type RefStatus string

const (
	RefPending    RefStatus = "pending"
	RefChecking   RefStatus = "checking"
	RefVerified   RefStatus = "verified"
	RefWarning    RefStatus = "warning"
	RefError      RefStatus = "error"
	RefUnverified RefStatus = "unverified"
)

// IsResolved reports whether the reference has a final verification outcome.
func (s RefStatus) IsResolved() bool {
	switch s {
	case RefVerified, RefWarning, RefError, RefUnverified:
		return true
	default:
		return false
	}
}

// NormalizeRefStatus maps wire casing and synonyms onto RefStatus.
// Unknown non-empty values are reported as unverified; empty input yields "".
func NormalizeRefStatus(s string) RefStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "pending":
		return RefPending
	case "checking":
		return RefChecking
	case "verified", "ok", "valid":
		return RefVerified
	case "warning", "warn":
		return RefWarning
	case "error", "failed", "invalid":
		return RefError
	default:
		return RefUnverified
	}
}

// Issue is one error, warning or suggestion attached to a reference.
type Issue struct {
	Type    string
	Detail  string
	Cited   string
	Correct string
}

// Reference is the result record for one extracted reference.
type Reference struct {
	Title   string
	Authors []string
	Year    string
	Venue   string
	URL     string

	Status            RefStatus
	Errors            []Issue
	Warnings          []Issue
	Suggestions       []Issue
	AuthoritativeURLs []string
}

// NewPendingReference returns a freshly extracted reference awaiting checks.
func NewPendingReference(title string, authors []string, year, venue, url string) Reference {
	return Reference{
		Title:   title,
		Authors: slices.Clone(authors),
		Year:    year,
		Venue:   venue,
		URL:     url,
		Status:  RefPending,
	}
}

// Merge overlays a verification result onto r and returns the merged value.
// Non-empty fields of u replace those of r; issue lists in u replace the
// stored lists (a result is a full report, not a delta), which makes Merge
// idempotent.
func (r Reference) Merge(u Reference) Reference {
	out := r.clone()
	if u.Title != "" {
		out.Title = u.Title
	}
	if len(u.Authors) > 0 {
		out.Authors = slices.Clone(u.Authors)
	}
	if u.Year != "" {
		out.Year = u.Year
	}
	if u.Venue != "" {
		out.Venue = u.Venue
	}
	if u.URL != "" {
		out.URL = u.URL
	}
	if u.Status != "" {
		out.Status = u.Status
	}
	if u.Errors != nil {
		out.Errors = slices.Clone(u.Errors)
	}
	if u.Warnings != nil {
		out.Warnings = slices.Clone(u.Warnings)
	}
	if u.Suggestions != nil {
		out.Suggestions = slices.Clone(u.Suggestions)
	}
	if u.AuthoritativeURLs != nil {
		out.AuthoritativeURLs = slices.Clone(u.AuthoritativeURLs)
	}
	return out.reconcile()
}

// reconcile keeps status and issue lists consistent: a reference carrying an
// error is an error even if the pipeline labelled it a warning.
func (r Reference) reconcile() Reference {
	if len(r.Errors) > 0 && (r.Status == RefWarning || r.Status == RefVerified) {
		r.Status = RefError
	}
	if r.Status == RefVerified && len(r.Warnings) > 0 {
		r.Status = RefWarning
	}
	return r
}

func (r Reference) clone() Reference {
	r.Authors = slices.Clone(r.Authors)
	r.Errors = slices.Clone(r.Errors)
	r.Warnings = slices.Clone(r.Warnings)
	r.Suggestions = slices.Clone(r.Suggestions)
	r.AuthoritativeURLs = slices.Clone(r.AuthoritativeURLs)
	return r
}

// CloneReferences deep-copies a reference list; nil stays nil.
func CloneReferences(refs []Reference) []Reference {
	if refs == nil {
		return nil
	}
	out := make([]Reference, len(refs))
	for i, ref := range refs {
		out[i] = ref.clone()
	}
	return out
}
