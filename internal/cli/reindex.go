package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
)

func (a *app) reindexCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Clear and rebuild the whole index",
		Long: `Clear the token dictionary and every posting, then index each stored
document again. Run it after changing tokenizer or weight settings. On
Postgres, searches and indexing in other processes wait until it finishes;
the SQLite and memory stores only coordinate within one process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := runReindex(ctx, cmd, svc, quiet)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d documents (%d postings) in %s\n",
				result.Documents, result.Postings, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, svc *services, quiet bool) (indexer.ReindexResult, error) {
	total, err := svc.store.CountDocuments(ctx)
	if err != nil {
		return indexer.ReindexResult{}, fmt.Errorf("counting documents: %w", err)
	}

	var progress func(int)
	if !quiet && total > 0 {
		bar := progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(cmd.ErrOrStderr())
			}),
		)
		defer bar.Finish()
		progress = func(indexed int) {
			bar.Set64(int64(indexed))
		}
	}
	return svc.indexer.ReindexAll(ctx, progress)
}
