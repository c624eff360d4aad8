package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/log"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <check-id>",
	Short: "Cancel a running check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCheckID(args[0])
		if err != nil {
			return err
		}
		e, err := newEnv(cmd.Context(), envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		// Rediscovery maps the check to its running session.
		if err := e.tracker.Bootstrap(cmd.Context()); err != nil {
			log.Warn(log.CatTracker, "bootstrap incomplete", "error", err)
		}
		rec, ok := e.tracker.Record(id)
		if !ok {
			return &domain.CheckNotFoundError{ID: id}
		}
		if rec.Status.IsTerminal() {
			return fmt.Errorf("check %d already %s", id, rec.Status)
		}
		if err := e.tracker.Cancel(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled check %d\n", id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <check-id>",
	Short: "Delete a check from the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCheckID(args[0])
		if err != nil {
			return err
		}
		e, err := newEnv(cmd.Context(), envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.tracker.Bootstrap(cmd.Context()); err != nil {
			log.Warn(log.CatTracker, "bootstrap incomplete", "error", err)
		}
		if err := e.tracker.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted check %d\n", id)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <check-id> <label>",
	Short: "Set the display label of a check",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCheckID(args[0])
		if err != nil {
			return err
		}
		if err := newClient().Rename(cmd.Context(), id, args[1]); err != nil {
			return fmt.Errorf("renaming check %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed check %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd, deleteCmd, renameCmd)
}
