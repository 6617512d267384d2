// Package arrowio serializes run results into Arrow IPC streams so
// columnar tooling can consume trades and equity curves without parsing
// JSON. Decimal strings are down-converted to float64 columns; the
// lossless record of a run stays in the JSON/ClickHouse sinks.
package arrowio

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	"github.com/mrhb33/quantsim/proto"
)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "open_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "close_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fees", Type: arrow.PrimitiveTypes.Float64},
	{Name: "open", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

var curveSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteTrades streams the trade history as one Arrow record batch.
func WriteTrades(w io.Writer, trades []*proto.ExecutedTrade) error {
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, tradeSchema)
	defer b.Release()

	for _, tr := range trades {
		b.Field(0).(*array.Int64Builder).Append(tr.OpenTime)
		b.Field(1).(*array.Int64Builder).Append(tr.CloseTime)
		b.Field(2).(*array.StringBuilder).Append(tr.Symbol)
		b.Field(3).(*array.StringBuilder).Append(tr.Side.String())
		b.Field(4).(*array.Float64Builder).Append(toFloat(tr.Quantity))
		b.Field(5).(*array.Float64Builder).Append(toFloat(tr.EntryPrice))
		b.Field(6).(*array.Float64Builder).Append(toFloat(tr.ExitPrice))
		b.Field(7).(*array.Float64Builder).Append(toFloat(tr.Pnl))
		b.Field(8).(*array.Float64Builder).Append(toFloat(tr.Fees))
		b.Field(9).(*array.BooleanBuilder).Append(tr.Open)
	}
	return writeRecord(w, tradeSchema, b)
}

// WriteCurve streams the equity curve as one Arrow record batch.
func WriteCurve(w io.Writer, curve []*proto.EquityPoint) error {
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, curveSchema)
	defer b.Release()

	for _, p := range curve {
		b.Field(0).(*array.Int64Builder).Append(p.Timestamp)
		b.Field(1).(*array.Float64Builder).Append(toFloat(p.Equity))
	}
	return writeRecord(w, curveSchema, b)
}

// Export writes <prefix>_trades.arrow and <prefix>_equity.arrow for a run.
func Export(prefix string, res *proto.RunResult) error {
	if err := exportFile(prefix+"_trades.arrow", func(w io.Writer) error {
		return WriteTrades(w, res.Trades)
	}); err != nil {
		return err
	}
	return exportFile(prefix+"_equity.arrow", func(w io.Writer) error {
		return WriteCurve(w, res.EquityCurve)
	})
}

func exportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("arrow export: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRecord(w io.Writer, schema *arrow.Schema, b *array.RecordBuilder) error {
	rec := b.NewRecord()
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return wr.Close()
}

func toFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
