package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/keygen/internal/repo"
)

// BrokerFunc открывает Broker; close освобождает соединение.
type BrokerFunc func() (b *Broker, close func(), err error)

// KeyJournal — чтение журнала ключей. Реализация: repo.KeyRepo.
type KeyJournal interface {
	GetByKey(ctx context.Context, key string) (*repo.KeyRecord, error)
	ListByRequestID(ctx context.Context, requestID string, limit int) ([]repo.KeyRecord, error)
}

// JournalFunc открывает журнал ключей; close освобождает пул.
type JournalFunc func(ctx context.Context) (j KeyJournal, close func(), err error)

// NewRequestCmd создаёт команду публикации запросов.
func NewRequestCmd(brokerFn BrokerFunc, outputFn func() *Output) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Publish key generation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, closeFn, err := brokerFn()
			if err != nil {
				return err
			}
			defer closeFn()

			out := outputFn()

			ids, err := broker.RequestKeys(cmd.Context(), count)
			out.RequestIDs(ids)
			if err != nil {
				return err
			}

			out.Info("published %d request(s) to %s", len(ids), broker.topology.RequestQueue)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of requests to publish")

	return cmd
}

// NewResponsesCmd создаёт команду чтения ответов.
func NewResponsesCmd(brokerFn BrokerFunc, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Drain generated keys from the response queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, closeFn, err := brokerFn()
			if err != nil {
				return err
			}
			defer closeFn()

			out := outputFn()

			keys, skipped, err := broker.DrainResponses(limit)
			out.Keys(keys)
			if err != nil {
				return err
			}

			if skipped > 0 {
				out.Info("%d malformed response(s) left in %s", skipped, broker.topology.ResponseQueue)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum number of responses to take")

	return cmd
}

// NewJournalCmd создаёт команду просмотра журнала ключей.
// Ищет либо все ключи запроса (REQUEST_ID), либо один ключ (--key).
func NewJournalCmd(journalFn JournalFunc, outputFn func() *Output) *cobra.Command {
	var limit int
	var key string

	cmd := &cobra.Command{
		Use:   "journal [REQUEST_ID]",
		Short: "Show keys recorded in the key journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (key == "") == (len(args) == 0) {
				return errors.New("specify either REQUEST_ID or --key")
			}

			journal, closeFn, err := journalFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var records []repo.KeyRecord
			if key != "" {
				rec, err := journal.GetByKey(cmd.Context(), key)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("key %s is not in the journal", key)
					}
					return fmt.Errorf("get journal record: %w", err)
				}
				records = []repo.KeyRecord{*rec}
			} else {
				records, err = journal.ListByRequestID(cmd.Context(), args[0], limit)
				if err != nil {
					return fmt.Errorf("list journal: %w", err)
				}
			}

			outputFn().Journal(records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum number of records")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Look up a single generated key")

	return cmd
}
