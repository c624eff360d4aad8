// Package view derives what the detail pane shows from the selection, the
// live model and the ledger. Everything here is pure.
package view

import (
	"github.com/zjrosen/refcheck/internal/active"
	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// Mode is the kind of content the detail pane renders.
type Mode string

const (
	// Compose shows the input form for a new check.
	Compose Mode = "compose"
	// Live shows the focused job from the active model.
	Live Mode = "live"
	// Stored shows a ledger entry.
	Stored Mode = "stored"
	// Loading is shown while a ledger entry's detail is being fetched.
	Loading Mode = "loading"
	// Missing means the selected id is not in the ledger.
	Missing Mode = "missing"
)

// View is the content of the detail pane.
type View struct {
	Mode          Mode
	CheckID       domain.CheckID
	Title         string
	Source        domain.Source
	Status        domain.Status
	StatusMessage string
	ErrorMessage  string
	Label         string
	Stats         domain.Stats
	References    []domain.Reference
	// Paper counts references per bucket; one reference counts once no
	// matter how many issues it carries.
	Paper domain.PaperStats
	// FetchError is set when loading the detail failed.
	FetchError string
}

// Select computes the detail view. rec is the ledger entry for selected,
// or nil when there is none.
func Select(selected domain.CheckID, live active.State, rec *domain.Record) View {
	if selected.IsDraft() {
		return View{Mode: Compose, CheckID: domain.DraftID}
	}

	if live.CheckID == selected && live.HasLiveData() {
		v := View{
			Mode:          Live,
			CheckID:       selected,
			Title:         live.PaperTitle,
			Source:        live.Source,
			Status:        live.Phase.LedgerStatus(),
			StatusMessage: live.StatusMessage,
			ErrorMessage:  live.ErrorMessage,
			Stats:         live.Stats,
			References:    live.References,
			Paper:         domain.ClassifyReferences(live.References),
		}
		if live.Connection != "" {
			v.StatusMessage = live.Connection
		}
		if rec != nil {
			v.Label = rec.Label
			if v.Title == "" {
				v.Title = rec.DisplayTitle()
			}
		}
		return v
	}

	if rec == nil {
		return View{Mode: Missing, CheckID: selected}
	}

	v := View{
		Mode:          Stored,
		CheckID:       selected,
		Title:         rec.DisplayTitle(),
		Source:        rec.Source,
		Status:        rec.Status,
		StatusMessage: rec.StatusMessage,
		ErrorMessage:  rec.ErrorMessage,
		Label:         rec.Label,
		Stats:         rec.Stats,
		References:    rec.References,
		Paper:         domain.ClassifyReferences(rec.References),
		FetchError:    rec.FetchError,
	}
	if rec.Loading && !rec.DetailLoaded {
		v.Mode = Loading
		v.References = nil
		v.Paper = domain.PaperStats{}
	}
	return v
}
