package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/presentation"
)

var (
	outputFlag   string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent checks",
	Long: `List recent checks, newest first.

Examples:
  refcheck history
  refcheck history --limit 10 -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		limit := cfg.History.Limit
		if cmd.Flags().Changed("limit") {
			limit = historyLimit
		}
		records, err := newClient().ListChecks(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("listing history: %w", err)
		}
		return f.FormatChecks(presentation.FromRecords(records))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <check-id>",
	Short: "Show one check with its references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCheckID(args[0])
		if err != nil {
			return err
		}
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		rec, err := newClient().GetCheckDetail(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("loading check %d: %w", id, err)
		}
		return f.FormatCheck(presentation.FromRecord(rec, true))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "output format: table, json or yaml")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of checks to list (default from config)")
	rootCmd.AddCommand(historyCmd, showCmd)
}

func outputFormatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	format, err := presentation.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}
	return presentation.NewFormatter(cmd.OutOrStdout(), format), nil
}

func parseCheckID(s string) (domain.CheckID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid check id %q", s)
	}
	return domain.CheckID(n), nil
}
