package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrhb33/quantsim/services/clickhouse"
	"github.com/mrhb33/quantsim/services/replay"
)

// ingest loads a local CSV kline file into the ClickHouse klines table so
// later runs can pull ranges by symbol and interval.

var (
	flagCSV        string
	flagSymbol     string
	flagInterval   string
	flagTable      string
	flagBatchSize  int
	flagChAddr     string
	flagChDatabase string
	flagChUser     string
	flagChPass     string
)

func main() {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Load a CSV kline dataset into ClickHouse",
		RunE:  run,
	}
	root.Flags().StringVar(&flagCSV, "csv", "", "CSV dataset path (required)")
	root.Flags().StringVar(&flagSymbol, "symbol", "BTCUSDT", "symbol to tag rows with")
	root.Flags().StringVar(&flagInterval, "interval", "5m", "interval to tag rows with")
	root.Flags().StringVar(&flagTable, "table", "data", "destination table")
	root.Flags().IntVar(&flagBatchSize, "batch-size", 10000, "rows per insert batch")
	root.Flags().StringVar(&flagChAddr, "ch-addr", "localhost:19000", "ClickHouse native address")
	root.Flags().StringVar(&flagChDatabase, "ch-db", "backtest", "ClickHouse database")
	root.Flags().StringVar(&flagChUser, "ch-user", "backtest", "ClickHouse user")
	root.Flags().StringVar(&flagChPass, "ch-pass", "backtest123", "ClickHouse password")
	root.MarkFlagRequired("csv")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("ingest failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := replay.LoadCSV(flagCSV, flagSymbol)
	if err != nil {
		return err
	}

	conn, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr: flagChAddr, Database: flagChDatabase, Username: flagChUser, Password: flagChPass,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	insert := fmt.Sprintf(
		"INSERT INTO %s.%s (symbol, interval, open_time_ms, open, high, low, close, volume)",
		flagChDatabase, flagTable)

	total := 0
	for start := 0; start < len(events); start += flagBatchSize {
		end := start + flagBatchSize
		if end > len(events) {
			end = len(events)
		}
		batch, err := conn.PrepareBatch(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for _, ev := range events[start:end] {
			k := ev.Kline
			if err := batch.Append(
				flagSymbol, flagInterval, k.OpenTimeMs,
				k.Open, k.High, k.Low, k.Close, k.Volume,
			); err != nil {
				return fmt.Errorf("append row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
		total += end - start
		logrus.WithField("rows", total).Info("batch sent")
	}

	logrus.WithFields(logrus.Fields{
		"symbol":   flagSymbol,
		"interval": flagInterval,
		"rows":     total,
	}).Info("ingest complete")
	return nil
}
