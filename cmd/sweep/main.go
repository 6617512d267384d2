package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrhb33/quantsim/services/clickhouse"
	"github.com/mrhb33/quantsim/services/engine"
	"github.com/mrhb33/quantsim/services/replay"
)

// sweep runs the same dataset through a grid of configurations in parallel.
// Runs are fully independent (each worker owns a private replayer cursor and
// a fresh pipeline), so worker count never changes any result.

var (
	flagConfig     string
	flagCSV        string
	flagSymbol     string
	flagWorkers    int
	flagStore      bool
	flagVerbose    bool
	flagTrendThr   string
	flagNoiseFloor string
	flagMaxPos     string
	flagChAddr     string
	flagChDatabase string
	flagChUser     string
	flagChPass     string
)

type job struct {
	name string
	cfg  engine.Config
}

type outcome struct {
	name   string
	result *engine.Result
	err    error
}

func main() {
	root := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter grid over one dataset in parallel",
		RunE:  run,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "config file (default: ./quantsim.yaml)")
	root.Flags().StringVar(&flagCSV, "csv", "", "local CSV dataset (required)")
	root.Flags().StringVar(&flagSymbol, "symbol", "", "symbol override")
	root.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel workers")
	root.Flags().BoolVar(&flagStore, "store", false, "persist every run to ClickHouse")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
	root.Flags().StringVar(&flagTrendThr, "trend-thresholds", "0.5,1.0,1.5", "regime trend thresholds")
	root.Flags().StringVar(&flagNoiseFloor, "noise-floors", "0.25", "momentum noise floors (ATR multiples)")
	root.Flags().StringVar(&flagMaxPos, "max-positions", "1.0", "risk max position sizes")
	root.Flags().StringVar(&flagChAddr, "ch-addr", "localhost:19000", "ClickHouse native address")
	root.Flags().StringVar(&flagChDatabase, "ch-db", "backtest", "ClickHouse database")
	root.Flags().StringVar(&flagChUser, "ch-user", "backtest", "ClickHouse user")
	root.Flags().StringVar(&flagChPass, "ch-pass", "backtest123", "ClickHouse password")
	root.MarkFlagRequired("csv")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("sweep failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		// worker logs would interleave; keep the console to the ranking table
		logrus.SetLevel(logrus.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := engine.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagSymbol != "" {
		base.Symbol = flagSymbol
	}

	events, err := replay.LoadCSV(flagCSV, base.Symbol)
	if err != nil {
		return err
	}

	jobs, err := buildGrid(base)
	if err != nil {
		return err
	}

	jobCh := make(chan job)
	outCh := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < flagWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				bt := engine.New(j.cfg, replay.New(events))
				res, err := bt.Run(ctx)
				outCh <- outcome{name: j.name, result: res, err: err}
			}
		}()
	}
	go func() {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()
	close(outCh)

	var done []outcome
	for o := range outCh {
		if o.err != nil {
			fmt.Fprintf(os.Stderr, "%-40s error: %v\n", o.name, o.err)
			continue
		}
		done = append(done, o)
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].result.Summary.TotalReturn > done[j].result.Summary.TotalReturn
	})

	fmt.Printf("%-40s %8s %8s %8s %8s %7s\n", "run", "return", "sharpe", "maxdd", "winrate", "trades")
	for _, o := range done {
		s := o.result.Summary
		fmt.Printf("%-40s %8.4f %8.4f %8.4f %8.4f %7d\n",
			o.name, s.TotalReturn, s.Sharpe, s.MaxDrawdown, s.WinRate, s.TotalTrades)
	}

	if flagStore {
		conn, err := clickhouse.Open(ctx, clickhouse.Config{
			Addr: flagChAddr, Database: flagChDatabase, Username: flagChUser, Password: flagChPass,
		})
		if err != nil {
			return err
		}
		sink := clickhouse.NewResultSink(conn)
		for _, o := range done {
			if err := sink.Store(ctx, o.result.Run); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildGrid(base engine.Config) ([]job, error) {
	trends, err := parseFloats(flagTrendThr)
	if err != nil {
		return nil, fmt.Errorf("trend-thresholds: %w", err)
	}
	floors, err := parseFloats(flagNoiseFloor)
	if err != nil {
		return nil, fmt.Errorf("noise-floors: %w", err)
	}
	sizes, err := parseFloats(flagMaxPos)
	if err != nil {
		return nil, fmt.Errorf("max-positions: %w", err)
	}

	var jobs []job
	for _, t := range trends {
		for _, f := range floors {
			for _, s := range sizes {
				cfg := base
				cfg.Regime.TrendThreshold = t
				cfg.Momentum.NoiseFloorATR = f
				cfg.Risk.Limits.MaxPositionSize = s
				jobs = append(jobs, job{
					name: fmt.Sprintf("trend=%g floor=%g size=%g", t, f, s),
					cfg:  cfg,
				})
			}
		}
	}
	return jobs, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}
