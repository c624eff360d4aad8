package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// ErrMissingKind is returned for frames without a "type" field.
var ErrMissingKind = errors.New("event frame has no type")

// wireIssue is one error/warning/suggestion object on the wire.
type wireIssue struct {
	Type    string `json:"error_type"`
	Detail  string `json:"error_details"`
	Cited   string `json:"ref_value_cited"`
	Correct string `json:"ref_value_correct"`
}

// wireReference is the wire shape of an extracted or verified reference.
type wireReference struct {
	Title             string      `json:"title"`
	Authors           authorList  `json:"authors"`
	Year              flexString  `json:"year"`
	Venue             string      `json:"venue"`
	URL               string      `json:"url"`
	CitedURL          string      `json:"cited_url"`
	Status            string      `json:"status"`
	Errors            []wireIssue `json:"errors"`
	Warnings          []wireIssue `json:"warnings"`
	Suggestions       []wireIssue `json:"suggestions"`
	AuthoritativeURLs []string    `json:"authoritative_urls"`
}

// frame is the union of all top-level payload fields; unused ones stay zero.
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	CheckID   flexInt         `json:"check_id"`
	Message   string          `json:"message"`
	Title     string          `json:"paper_title"`
	Details   string          `json:"details"`
	Index     flexInt         `json:"index"`
	Refs      []wireReference `json:"references"`
	wireStats
}

type wireStats struct {
	TotalRefs       flexInt   `json:"total_refs"`
	ProcessedRefs   flexInt   `json:"processed_refs"`
	Errors          flexInt   `json:"errors_count"`
	Warnings        flexInt   `json:"warnings_count"`
	Suggestions     flexInt   `json:"suggestions_count"`
	Unverified      flexInt   `json:"unverified_count"`
	Verified        flexInt   `json:"verified_count"`
	ProgressPercent flexFloat `json:"progress_percent"`
}

// Decode parses one JSON frame into an Event. Unrecognized kinds decode to
// Unknown rather than failing.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	kind := strings.TrimSpace(f.Type)
	if kind == "" {
		return nil, ErrMissingKind
	}

	env := Envelope{
		SessionID: domain.SessionID(f.SessionID),
		CheckID:   domain.CheckID(f.CheckID),
	}

	switch Kind(kind) {
	case KindStarted:
		return Started{Envelope: env, Message: f.Message, PaperTitle: f.Title}, nil
	case KindExtracting:
		return Extracting{Envelope: env, Message: f.Message, PaperTitle: f.Title}, nil
	case KindReferencesExtracted:
		refs := make([]domain.Reference, len(f.Refs))
		for i, r := range f.Refs {
			refs[i] = domain.NewPendingReference(r.Title, r.Authors, string(r.Year), r.Venue, r.url())
		}
		total := int(f.TotalRefs)
		if total == 0 {
			total = len(refs)
		}
		return ReferencesExtracted{Envelope: env, TotalRefs: total, References: refs}, nil
	case KindCheckingReference:
		var r wireReference
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return CheckingReference{Envelope: env, Index: wireIndex(f.Index), Title: r.Title}, nil
	case KindReferenceResult:
		var r wireReference
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ReferenceResult{Envelope: env, Index: wireIndex(f.Index), Result: r.toDomain()}, nil
	case KindSummaryUpdate:
		return SummaryUpdate{Envelope: env, Stats: f.wireStats.toDomain()}, nil
	case KindCompleted:
		return Completed{Envelope: env, Stats: f.wireStats.toDomain()}, nil
	case KindCancelled:
		return Cancelled{Envelope: env, Message: f.Message}, nil
	case KindError:
		return Error{Envelope: env, Message: f.Message, Details: f.Details}, nil
	default:
		return Unknown{Envelope: env, RawKind: kind}, nil
	}
}

// wireIndex converts the 1-based wire index to a 0-based slice index.
func wireIndex(i flexInt) int {
	return int(i) - 1
}

func (r wireReference) url() string {
	if r.CitedURL != "" {
		return r.CitedURL
	}
	return r.URL
}

func (r wireReference) toDomain() domain.Reference {
	ref := domain.Reference{
		Title:             r.Title,
		Authors:           r.Authors,
		Year:              string(r.Year),
		Venue:             r.Venue,
		URL:               r.url(),
		Status:            domain.NormalizeRefStatus(r.Status),
		Errors:            toIssues(r.Errors),
		Warnings:          toIssues(r.Warnings),
		Suggestions:       toIssues(r.Suggestions),
		AuthoritativeURLs: r.AuthoritativeURLs,
	}
	return ref
}

func toIssues(in []wireIssue) []domain.Issue {
	if in == nil {
		return nil
	}
	out := make([]domain.Issue, len(in))
	for i, w := range in {
		out[i] = domain.Issue{Type: w.Type, Detail: w.Detail, Cited: w.Cited, Correct: w.Correct}
	}
	return out
}

func (s wireStats) toDomain() domain.Stats {
	return domain.Stats{
		TotalRefs:       int(s.TotalRefs),
		ProcessedRefs:   int(s.ProcessedRefs),
		Errors:          int(s.Errors),
		Warnings:        int(s.Warnings),
		Suggestions:     int(s.Suggestions),
		Unverified:      int(s.Unverified),
		Verified:        int(s.Verified),
		ProgressPercent: float64(s.ProgressPercent),
	}
}

// flexInt accepts both 10 and "10".
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*n = flexInt(v)
	return nil
}

// flexFloat accepts both 12.5 and "12.5".
type flexFloat float64

func (n *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = flexFloat(v)
	return nil
}

// flexString accepts 2020 as well as "2020".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(str, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(str)
	return nil
}

// authorList accepts a JSON array of names or one comma separated string.
type authorList []string

func (a *authorList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*a = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(b, &joined); err != nil {
		return fmt.Errorf("invalid authors: %w", err)
	}
	var out []string
	for _, name := range strings.Split(joined, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	*a = out
	return nil
}

// DecodeReferences parses a JSON array of reference results as returned by
// the history detail endpoint.
func DecodeReferences(data []byte) ([]domain.Reference, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var wire []wireReference
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	out := make([]domain.Reference, len(wire))
	for i, r := range wire {
		ref := r.toDomain()
		if ref.Status == "" {
			ref.Status = domain.RefPending
		}
		out[i] = ref.Merge(domain.Reference{})
	}
	return out, nil
}
