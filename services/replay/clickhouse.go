package replay

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mrhb33/quantsim/services/market"
)

// LoadClickHouse pulls kline rows for one symbol from a ClickHouse klines
// table into replayable events. The full range is materialized before the
// run starts; the hot loop never touches the connection.
func LoadClickHouse(ctx context.Context, conn driver.Conn, database, table, symbol, interval string, fromMs, toMs int64) ([]market.Event, error) {
	query := fmt.Sprintf(`
SELECT open_time_ms, open, high, low, close, volume
FROM %s.%s
WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
ORDER BY open_time_ms`, database, table)

	rows, err := conn.Query(ctx, query, symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var (
		events []market.Event
		seq    uint64
	)
	for rows.Next() {
		var (
			ts                          int64
			open, high, low, close, vol float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &vol); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		events = append(events, market.Event{
			Ts:     ts,
			Seq:    seq,
			Symbol: symbol,
			Kind:   market.KindKline,
			Kline: &market.Kline{
				OpenTimeMs: ts,
				Open:       open,
				High:       high,
				Low:        low,
				Close:      close,
				Volume:     vol,
			},
		})
		seq++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}
	if len(events) == 0 {
		return nil, &DataIntegrityError{Detail: fmt.Sprintf("no rows for %s in [%d,%d)", symbol, fromMs, toMs)}
	}
	return events, nil
}
