// Package cli implements searchctl, the administrative command line for the
// news index: schema migration, seeding, per-document indexing, full
// rebuilds and ad-hoc queries.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
)

type app struct {
	cfgFile string
	cfg     *config.Config
}

// NewRootCmd builds the searchctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Administer the news index",
		Long: `searchctl manages the documents and the inverted index behind the
search service.

Example usage:
  searchctl migrate                       # Create tables
  searchctl seed                          # Insert the sample corpus and index it
  searchctl add -l BUSINESS "Markets rally"
  searchctl reindex                       # Rebuild the whole index
  searchctl search "stock market"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			logger.Setup(cfg.Logging.Level, "text")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (defaults plus NI_* environment when empty)")

	root.AddCommand(
		a.migrateCmd(),
		a.seedCmd(),
		a.addCmd(),
		a.indexCmd(),
		a.removeCmd(),
		a.reindexCmd(),
		a.searchCmd(),
		a.statsCmd(),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// services bundles what a command needs against one opened store.
type services struct {
	store    store.Store
	indexer  *indexer.Service
	searcher *searcher.Service
}

func (a *app) open(ctx context.Context) (*services, error) {
	st, err := storage.Open(ctx, a.cfg, true)
	if err != nil {
		return nil, err
	}
	family, err := tokenizer.NewFamily(a.cfg.Indexer.TokenizerConfig())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("tokenizer configuration: %w", err)
	}
	return &services{
		store:   st,
		indexer: indexer.New(st, st, family, a.cfg.Indexer.FieldWeight),
		searcher: searcher.New(st, st, family,
			searcher.WithMaxTokens(a.cfg.Search.MaxQueryTokens),
			searcher.WithDefaultLimit(a.cfg.Search.DefaultLimit),
		),
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

// documentEventProducer returns a producer for document change events, or
// an error when Kafka is disabled.
func (a *app) documentEventProducer() (*kafka.Producer, error) {
	if !a.cfg.Kafka.Enabled {
		return nil, fmt.Errorf("--publish requires kafka.enabled")
	}
	return kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.DocumentEvents), nil
}
