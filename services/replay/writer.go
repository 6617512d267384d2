package replay

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/mrhb33/quantsim/services/market"
)

// CSVWriter appends kline events to a dataset file in the same layout
// LoadCSV reads back, so recorded streams replay like historical files.
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVWriter{f: f, w: w}, nil
}

// Append writes one event; non-kline events are skipped.
func (c *CSVWriter) Append(ev market.Event) error {
	if ev.Kind != market.KindKline || ev.Kline == nil {
		return nil
	}
	k := ev.Kline
	return c.w.Write([]string{
		strconv.FormatInt(ev.Ts, 10),
		strconv.FormatFloat(k.Open, 'f', -1, 64),
		strconv.FormatFloat(k.High, 'f', -1, 64),
		strconv.FormatFloat(k.Low, 'f', -1, 64),
		strconv.FormatFloat(k.Close, 'f', -1, 64),
		strconv.FormatFloat(k.Volume, 'f', -1, 64),
	})
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
