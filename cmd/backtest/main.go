package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrhb33/quantsim/services/arrowio"
	"github.com/mrhb33/quantsim/services/clickhouse"
	"github.com/mrhb33/quantsim/services/engine"
	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/services/replay"
)

var (
	flagConfig     string
	flagCSV        string
	flagSymbol     string
	flagFrom       string
	flagTo         string
	flagInterval   string
	flagTable      string
	flagStore      bool
	flagOut        string
	flagOutArrow   string
	flagMetrics    string
	flagVerbose    bool
	flagChAddr     string
	flagChDatabase string
	flagChUser     string
	flagChPass     string
)

func main() {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Run one deterministic backtest over a replayable dataset",
		RunE:  run,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "config file (default: ./quantsim.yaml)")
	root.Flags().StringVar(&flagCSV, "csv", "", "local CSV dataset; skips ClickHouse when set")
	root.Flags().StringVar(&flagSymbol, "symbol", "", "symbol override")
	root.Flags().StringVar(&flagFrom, "from", "2020-09-01 00:00:00", "start UTC (YYYY-MM-DD HH:MM:SS)")
	root.Flags().StringVar(&flagTo, "to", "2024-10-01 00:00:00", "end UTC (YYYY-MM-DD HH:MM:SS)")
	root.Flags().StringVar(&flagInterval, "interval", "5m", "kline interval in ClickHouse")
	root.Flags().StringVar(&flagTable, "table", "data", "ClickHouse klines table")
	root.Flags().BoolVar(&flagStore, "store", false, "persist results to ClickHouse")
	root.Flags().StringVar(&flagOut, "out", "", "write full run result JSON to this path")
	root.Flags().StringVar(&flagOutArrow, "out-arrow", "", "write <prefix>_trades.arrow and <prefix>_equity.arrow")
	root.Flags().StringVar(&flagMetrics, "metrics-addr", "", "serve Prometheus metrics on this address")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
	root.Flags().StringVar(&flagChAddr, "ch-addr", "localhost:19000", "ClickHouse native address")
	root.Flags().StringVar(&flagChDatabase, "ch-db", "backtest", "ClickHouse database")
	root.Flags().StringVar(&flagChUser, "ch-user", "backtest", "ClickHouse user")
	root.Flags().StringVar(&flagChPass, "ch-pass", "backtest123", "ClickHouse password")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("backtest failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	setupLogging(flagVerbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := engine.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagSymbol != "" {
		cfg.Symbol = flagSymbol
	}

	if flagMetrics != "" {
		go serveMetrics(flagMetrics)
	}

	events, conn, err := loadDataset(ctx, cfg.Symbol)
	if err != nil {
		return err
	}

	bt := engine.New(cfg, replay.New(events))
	res, err := bt.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(res)

	if flagOut != "" {
		b, err := json.MarshalIndent(res.Run, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(flagOut, b, 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if flagOutArrow != "" {
		if err := arrowio.Export(flagOutArrow, res.Run); err != nil {
			return err
		}
	}
	if flagStore {
		if conn == nil {
			if conn, err = clickhouse.Open(ctx, chConfig()); err != nil {
				return err
			}
		}
		if err := clickhouse.NewResultSink(conn).Store(ctx, res.Run); err != nil {
			return err
		}
	}
	return nil
}

func loadDataset(ctx context.Context, symbol string) ([]market.Event, driver.Conn, error) {
	if flagCSV != "" {
		events, err := replay.LoadCSV(flagCSV, symbol)
		return events, nil, err
	}
	conn, err := clickhouse.Open(ctx, chConfig())
	if err != nil {
		return nil, nil, err
	}
	fromMs, err := parseUTC(flagFrom)
	if err != nil {
		return nil, nil, err
	}
	toMs, err := parseUTC(flagTo)
	if err != nil {
		return nil, nil, err
	}
	events, err := replay.LoadClickHouse(ctx, conn, flagChDatabase, flagTable, symbol, flagInterval, fromMs, toMs)
	return events, conn, err
}

func chConfig() clickhouse.Config {
	return clickhouse.Config{
		Addr:     flagChAddr,
		Database: flagChDatabase,
		Username: flagChUser,
		Password: flagChPass,
	}
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

func setupLogging(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logrus.WithField("addr", addr).Info("metrics endpoint up")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Warn("metrics endpoint down")
	}
}

func printSummary(res *engine.Result) {
	s := res.Summary
	fmt.Printf("trades        %d\n", s.TotalTrades)
	fmt.Printf("total return  %.4f\n", s.TotalReturn)
	fmt.Printf("sharpe        %.4f\n", s.Sharpe)
	fmt.Printf("max drawdown  %.4f\n", s.MaxDrawdown)
	fmt.Printf("win rate      %.4f\n", s.WinRate)
	fmt.Printf("profit factor %.4f\n", s.ProfitFactor)
	fmt.Printf("manifest      config=%s data=%s\n",
		res.Run.Manifest.ConfigHash[:12], res.Run.Manifest.DataChecksum[:12])
}
