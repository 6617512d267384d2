package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrhb33/quantsim/services/api"
	"github.com/mrhb33/quantsim/services/clickhouse"
	"github.com/mrhb33/quantsim/services/engine"
	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/services/replay"
)

var (
	flagAddr       string
	flagConfig     string
	flagCSV        string
	flagSymbol     string
	flagFrom       string
	flagTo         string
	flagInterval   string
	flagTable      string
	flagVerbose    bool
	flagChAddr     string
	flagChDatabase string
	flagChUser     string
	flagChPass     string
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Serve backtest runs over HTTP against one loaded dataset",
		RunE:  run,
	}
	root.Flags().StringVar(&flagAddr, "addr", ":8080", "HTTP listen address")
	root.Flags().StringVar(&flagConfig, "config", "", "config file (default: ./quantsim.yaml)")
	root.Flags().StringVar(&flagCSV, "csv", "", "local CSV dataset; skips ClickHouse when set")
	root.Flags().StringVar(&flagSymbol, "symbol", "", "symbol override")
	root.Flags().StringVar(&flagFrom, "from", "2020-09-01 00:00:00", "start UTC (YYYY-MM-DD HH:MM:SS)")
	root.Flags().StringVar(&flagTo, "to", "2024-10-01 00:00:00", "end UTC (YYYY-MM-DD HH:MM:SS)")
	root.Flags().StringVar(&flagInterval, "interval", "5m", "kline interval in ClickHouse")
	root.Flags().StringVar(&flagTable, "table", "data", "ClickHouse klines table")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
	root.Flags().StringVar(&flagChAddr, "ch-addr", "localhost:19000", "ClickHouse native address")
	root.Flags().StringVar(&flagChDatabase, "ch-db", "backtest", "ClickHouse database")
	root.Flags().StringVar(&flagChUser, "ch-user", "backtest", "ClickHouse user")
	root.Flags().StringVar(&flagChPass, "ch-pass", "backtest123", "ClickHouse password")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := engine.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagSymbol != "" {
		cfg.Symbol = flagSymbol
	}

	events, err := loadDataset(ctx, cfg.Symbol)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"events": len(events), "symbol": cfg.Symbol}).Info("dataset loaded")

	runner := func(ctx context.Context, cfg engine.Config) (*engine.Result, error) {
		return engine.New(cfg, replay.New(events)).Run(ctx)
	}
	srv := &http.Server{Addr: flagAddr, Handler: api.NewServer(cfg, runner).Router()}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", flagAddr).Info("api server up")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadDataset(ctx context.Context, symbol string) ([]market.Event, error) {
	if flagCSV != "" {
		return replay.LoadCSV(flagCSV, symbol)
	}
	conn, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr:     flagChAddr,
		Database: flagChDatabase,
		Username: flagChUser,
		Password: flagChPass,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	fromMs, err := parseUTC(flagFrom)
	if err != nil {
		return nil, err
	}
	toMs, err := parseUTC(flagTo)
	if err != nil {
		return nil, err
	}
	return replay.LoadClickHouse(ctx, conn, flagChDatabase, flagTable, symbol, flagInterval, fromMs, toMs)
}

func parseUTC(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}
