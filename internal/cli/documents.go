package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document and index tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s)\n", a.cfg.Store.Driver)
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var label string
	var publish bool
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Store a document and index it",
		Long: `Store a document and index it. With --publish the document is stored
and an upsert event is sent to the indexer service instead of indexing
in-process.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			doc, err := svc.store.CreateDocument(ctx, strings.Join(args, " "), label)
			if err != nil {
				return fmt.Errorf("storing document: %w", err)
			}
			if publish {
				if err := a.publish(cmd, events.OpUpsert, []int64{doc.ID}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored document %d, upsert event published\n", doc.ID)
				return nil
			}
			n, err := svc.indexer.IndexDocument(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored document %d (%d postings)\n", doc.ID, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "classification label")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish an upsert event instead of indexing in-process")
	return cmd
}

func (a *app) indexCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "index <id>...",
		Short: "(Re)index stored documents by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if publish {
				return a.publish(cmd, events.OpUpsert, ids)
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			for _, id := range ids {
				n, err := svc.indexer.IndexByID(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed document %d (%d postings)\n", id, n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish upsert events instead of indexing in-process")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	var publish, deleteDocument bool
	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove documents from the index",
		Long: `Remove the postings of the given documents. The documents themselves
stay stored unless --delete is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if publish {
				if err := a.publish(cmd, events.OpDelete, ids); err != nil {
					return err
				}
			}
			for _, id := range ids {
				if !publish {
					if err := svc.indexer.RemoveDocument(ctx, id); err != nil {
						return err
					}
				}
				if deleteDocument {
					if err := svc.store.DeleteDocument(ctx, id); err != nil {
						return fmt.Errorf("deleting document %d: %w", id, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed document %d\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish delete events instead of removing in-process")
	cmd.Flags().BoolVar(&deleteDocument, "delete", false, "also delete the stored document")
	return cmd
}

func (a *app) publish(cmd *cobra.Command, op string, ids []int64) error {
	producer, err := a.documentEventProducer()
	if err != nil {
		return err
	}
	defer producer.Close()
	batch := make([]kafka.Event, len(ids))
	for i, id := range ids {
		event := events.DocumentEvent{Op: op, DocumentID: id}
		batch[i] = kafka.Event{Key: event.Key(), Value: event}
	}
	if err := producer.PublishBatch(cmd.Context(), batch); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d %s event(s) to %s\n", len(ids), op, producer.Topic())
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}
