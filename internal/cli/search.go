package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a ranked query against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if limit > a.cfg.Search.MaxResults {
				limit = a.cfg.Search.MaxResults
			}
			query := strings.Join(args, " ")
			results, err := svc.searcher.SearchDocuments(ctx, query, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No results for %q\n", query)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tID\tSCORE\tLABEL\tTEXT")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%d\t%.1f\t%s\t%s\n", i+1, r.ID, r.Score, r.Label, truncate(r.Body, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show document totals per label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			total, err := svc.store.CountDocuments(ctx)
			if err != nil {
				return fmt.Errorf("counting documents: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Documents: %d\n", total)
			return printLabels(ctx, cmd.OutOrStdout(), svc.store)
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
