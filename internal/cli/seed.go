package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
)

type sample struct {
	body  string
	label string
}

var sampleCorpus = []sample{
	{"The Federal Reserve announced a rate hike today, affecting markets worldwide.", "BUSINESS"},
	{"The new budget proposal includes significant infrastructure spending.", "POLITICS"},
	{"Scientists discover breakthrough in renewable energy technology.", "SCIENCE"},
	{"Local team wins championship in thrilling overtime victory.", "SPORTS"},
	{"New exhibition opens at the national museum showcasing modern art.", "ENTERTAINMENT"},
	{"Stock markets rally on positive earnings reports from tech sector.", "BUSINESS"},
	{"Senate debates new healthcare legislation in heated session.", "POLITICS"},
	{"Climate change report warns of accelerating global temperatures.", "SCIENCE"},
	{"Olympic athlete breaks world record in swimming competition.", "SPORTS"},
	{"Blockbuster film dominates box office on opening weekend.", "ENTERTAINMENT"},
	{"Major tech company announces quarterly profits exceeding expectations.", "BUSINESS"},
	{"Presidential candidate outlines economic policy platform.", "POLITICS"},
	{"New study reveals insights into human brain function.", "SCIENCE"},
	{"Tennis star advances to finals with dominant performance.", "SPORTS"},
	{"Music festival announces star-studded lineup for summer.", "ENTERTAINMENT"},
}

func (a *app) seedCmd() *cobra.Command {
	var reset, quiet bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample news corpus and rebuild the index",
		Long: `Insert the sample news corpus and rebuild the index. A store that
already holds documents is left alone unless --reset is given, which deletes
every stored document first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			existing, err := svc.store.CountDocuments(ctx)
			if err != nil {
				return fmt.Errorf("counting documents: %w", err)
			}
			if existing > 0 {
				if !reset {
					fmt.Fprintf(out, "Store already contains %d documents; use --reset to reseed.\n", existing)
					return nil
				}
				fmt.Fprintf(out, "Clearing %d existing documents...\n", existing)
				if err := deleteAll(ctx, svc.store); err != nil {
					return err
				}
			}

			for i, s := range sampleCorpus {
				if _, err := svc.store.CreateDocument(ctx, s.body, s.label); err != nil {
					return fmt.Errorf("inserting sample %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(out, "Inserted %d documents.\n", len(sampleCorpus))
			if err := printLabels(ctx, out, svc.store); err != nil {
				return err
			}

			fmt.Fprintln(out, "Building search index...")
			result, err := runReindex(ctx, cmd, svc, quiet)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Indexed %d documents (%d postings).\n", result.Documents, result.Postings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing documents before seeding")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

// deleteAll collects every id first so deletion does not disturb the
// paged listing.
func deleteAll(ctx context.Context, st store.Store) error {
	var ids []int64
	for doc, err := range st.ListDocuments(ctx) {
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	for _, id := range ids {
		if err := st.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("deleting document %d: %w", id, err)
		}
	}
	return st.DeleteAllTokensAndPostings(ctx)
}

func printLabels(ctx context.Context, out io.Writer, st store.Store) error {
	labels, err := st.LabelCounts(ctx)
	if err != nil {
		return fmt.Errorf("counting labels: %w", err)
	}
	fmt.Fprintln(out, "Label distribution:")
	for _, lc := range labels {
		fmt.Fprintf(out, "  %s: %d\n", lc.Label, lc.Count)
	}
	return nil
}
