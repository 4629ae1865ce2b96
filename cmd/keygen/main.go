// Keygen CLI — инструмент оператора для работы с очередями keygen.
//
// Использование:
//
//	keygen [--json] <command> [flags]
//
// Команды:
//
//	request    Опубликовать запросы на генерацию ключей
//	responses  Забрать сгенерированные ключи из очереди ответов
//	journal    Показать журнал ключей по requestId
//
// Параметры подключения берутся из тех же переменных окружения, что и у worker'а.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/keygen/internal/cli"
	"github.com/shaiso/keygen/internal/config"
	"github.com/shaiso/keygen/internal/mq"
	"github.com/shaiso/keygen/internal/repo"
	"github.com/shaiso/keygen/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "keygen",
		Short:         "Keygen CLI — request and inspect generated keys",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// stdout занят данными, логи пишем в stderr
	logger := telemetry.NewLogger(os.Stderr, telemetry.LogLevel(), os.Getenv("LOG_FORMAT"))

	brokerFn := func() (*cli.Broker, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}

		cfg.RabbitMQ.ConnectionName = "keygen-cli"
		conn, err := mq.Dial(cfg.RabbitMQ, logger)
		if err != nil {
			return nil, nil, err
		}

		broker, err := cli.NewBroker(conn.Channel(), cfg.Topology, logger)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return broker, func() { conn.Close() }, nil
	}

	journalFn := func(ctx context.Context) (cli.KeyJournal, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.JournalDBURL == "" {
			return nil, nil, errors.New("KEY_JOURNAL_DB_URL is not set")
		}

		pool, err := repo.NewPool(ctx, cfg.JournalDBURL)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewKeyRepo(pool), pool.Close, nil
	}

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRequestCmd(brokerFn, outputFn),
		cli.NewResponsesCmd(brokerFn, outputFn),
		cli.NewJournalCmd(journalFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
