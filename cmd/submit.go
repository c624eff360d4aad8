package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/presentation"
	"github.com/zjrosen/refcheck/internal/pubsub"
	"github.com/zjrosen/refcheck/internal/tracker"
)

var (
	submitLabel string
	submitModel string
	submitWait  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <source>...",
	Short: "Start one check per source",
	Long: `Start a reference check for each source. A source is a URL, an arXiv id,
a path to a local PDF or a quoted block of reference text. Several sources
form one batch.

Examples:
  refcheck submit 1706.03762
  refcheck submit paper.pdf https://arxiv.org/abs/2005.14165 --label survey
  refcheck submit 1706.03762 --wait -o yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitLabel, "label", "l", "", "batch label")
	submitCmd.Flags().StringVarP(&submitModel, "model", "m", "", "LLM provider (overrides config)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "follow progress until every check finishes")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if submitModel != "" {
		cfg.Model = submitModel
	}
	e, err := newEnv(ctx, envOptions{live: submitWait})
	if err != nil {
		return err
	}
	defer e.Close()

	// Subscribe before submitting so no terminal event is missed.
	changes := e.tracker.Changes().Subscribe(ctx)

	sources := make([]domain.Source, len(args))
	for i, a := range args {
		sources[i] = api.SourceFromInput(a)
	}
	var started []api.Started
	if len(sources) == 1 && submitLabel == "" {
		s, err := e.tracker.StartCheck(ctx, api.Submission{Source: sources[0]})
		if err != nil {
			return err
		}
		started = append(started, s)
	} else {
		started, err = e.tracker.StartBatch(ctx, sources, submitLabel)
		if err != nil && len(started) == 0 {
			return err
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}

	for _, s := range started {
		fmt.Fprintf(cmd.ErrOrStderr(), "started check %d (session %s)\n", s.CheckID, s.SessionID)
	}
	if !submitWait {
		return nil
	}

	ids := make([]domain.CheckID, len(started))
	for i, s := range started {
		ids[i] = s.CheckID
	}
	if err := waitTerminal(ctx, e.tracker, ids, changes, func(r *domain.Record) {
		fmt.Fprintf(cmd.ErrOrStderr(), "check %d: %s %d/%d\n",
			r.ID, r.Status, r.Stats.ProcessedRefs, r.Stats.TotalRefs)
	}); err != nil {
		return err
	}

	f, err := outputFormatter(cmd)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if r, ok := e.tracker.Record(id); ok {
			if err := f.FormatCheck(presentation.FromRecord(r, true)); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordSource is the part of the tracker waitTerminal reads.
type recordSource interface {
	Record(id domain.CheckID) (*domain.Record, bool)
}

// waitTerminal blocks until every id has a terminal status. progress is
// called whenever a watched record's status or counters change.
func waitTerminal(ctx context.Context, t recordSource, ids []domain.CheckID, changes <-chan pubsub.Event[tracker.Change], progress func(*domain.Record)) error {
	last := make(map[domain.CheckID]string, len(ids))
	check := func() bool {
		done := true
		for _, id := range ids {
			r, ok := t.Record(id)
			if !ok {
				continue
			}
			key := fmt.Sprintf("%s/%d/%d", r.Status, r.Stats.ProcessedRefs, r.Stats.TotalRefs)
			if last[id] != key {
				last[id] = key
				progress(r)
			}
			if !r.Status.IsTerminal() {
				done = false
			}
		}
		return done
	}
	if check() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return tracker.ErrClosed
			}
			if check() {
				return nil
			}
		}
	}
}
