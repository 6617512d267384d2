package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/proto"
)

// ResultSink persists finished run results (trade ledger, equity curve and
// run manifest) for later screening. It runs strictly after the replay
// loop; nothing here sits on the hot path.
type ResultSink struct {
	conn driver.Conn
	log  *logrus.Entry
}

func NewResultSink(conn driver.Conn) *ResultSink {
	return &ResultSink{conn: conn, log: logrus.WithField("component", "result_sink")}
}

// Store writes one run's trades, equity curve and manifest in three
// batches. Partial writes are surfaced as errors; the caller decides
// whether to retry.
func (s *ResultSink) Store(ctx context.Context, res *proto.RunResult) error {
	if err := s.storeTrades(ctx, res); err != nil {
		return err
	}
	if err := s.storeEquity(ctx, res); err != nil {
		return err
	}
	if err := s.storeManifest(ctx, res); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"job_id": res.JobID,
		"trades": len(res.Trades),
		"points": len(res.EquityCurve),
	}).Info("run persisted")
	return nil
}

func (s *ResultSink) storeTrades(ctx context.Context, res *proto.RunResult) error {
	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO trades (job_id, open_time, close_time, symbol, side, quantity, entry_price, exit_price, pnl, fees, open)")
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, tr := range res.Trades {
		if err := batch.Append(
			res.JobID, tr.OpenTime, tr.CloseTime, tr.Symbol, tr.Side.String(),
			tr.Quantity, tr.EntryPrice, tr.ExitPrice, tr.Pnl, tr.Fees, tr.Open,
		); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}
	return batch.Send()
}

func (s *ResultSink) storeEquity(ctx context.Context, res *proto.RunResult) error {
	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO equity_curve (job_id, timestamp, equity)")
	if err != nil {
		return fmt.Errorf("prepare equity batch: %w", err)
	}
	for _, p := range res.EquityCurve {
		if err := batch.Append(res.JobID, p.Timestamp, p.Equity); err != nil {
			return fmt.Errorf("append equity point: %w", err)
		}
	}
	return batch.Send()
}

func (s *ResultSink) storeManifest(ctx context.Context, res *proto.RunResult) error {
	if res.Manifest == nil || res.Metrics == nil {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO run_manifests (job_id, config_hash, data_checksum, engine_version, created_at, sharpe, max_drawdown, win_rate, profit_factor, total_return, total_trades)")
	if err != nil {
		return fmt.Errorf("prepare manifest batch: %w", err)
	}
	m, mt := res.Manifest, res.Metrics
	if err := batch.Append(
		m.JobID, m.ConfigHash, m.DataChecksum, m.EngineVersion, m.CreatedAt,
		mt.Sharpe, mt.MaxDrawdown, mt.WinRate, mt.ProfitFactor, mt.TotalReturn, int32(mt.TotalTrades),
	); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return batch.Send()
}
