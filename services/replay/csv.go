package replay

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mrhb33/quantsim/services/market"
)

// LoadCSV reads kline rows from a CSV file into replayable events. Headers
// are case-insensitive and may appear in any order; both unix timestamps
// (seconds or milliseconds) and RFC3339 are accepted. Files exported from
// spreadsheets often carry a UTF BOM, which is stripped before parsing.
func LoadCSV(path, symbol string) ([]market.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	// tolerate UTF-8/UTF-16 BOMs from exported files
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(bufio.NewReader(transform.NewReader(f, decoder)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		events  []market.Event
		headers []string
		seq     uint64
		rowIdx  int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row %d: %w", rowIdx, err)
		}
		if rowIdx == 0 && looksLikeHeader(rec) {
			headers = lower(rec)
			rowIdx++
			continue
		}
		row := indexRow(headers, rec)

		ts, err := parseTimeFlexible(field(row, rec, 0, "timestamp", "time", "open_time_ms"))
		if err != nil {
			return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d: %v", rowIdx, err)}
		}
		k := &market.Kline{OpenTimeMs: ts}
		if k.Open, err = parseFloat(field(row, rec, 1, "open")); err != nil {
			return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d open: %v", rowIdx, err)}
		}
		if k.High, err = parseFloat(field(row, rec, 2, "high")); err != nil {
			return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d high: %v", rowIdx, err)}
		}
		if k.Low, err = parseFloat(field(row, rec, 3, "low")); err != nil {
			return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d low: %v", rowIdx, err)}
		}
		if k.Close, err = parseFloat(field(row, rec, 4, "close")); err != nil {
			return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d close: %v", rowIdx, err)}
		}
		if v := field(row, rec, 5, "volume", "vol"); v != "" {
			if k.Volume, err = parseFloat(v); err != nil {
				return nil, &DataIntegrityError{Detail: fmt.Sprintf("row %d volume: %v", rowIdx, err)}
			}
		}

		events = append(events, market.Event{
			Ts:     ts,
			Seq:    seq,
			Symbol: symbol,
			Kind:   market.KindKline,
			Kline:  k,
		})
		seq++
		rowIdx++
	}
	if len(events) == 0 {
		return nil, &DataIntegrityError{Detail: "dataset is empty"}
	}
	return events, nil
}

func looksLikeHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(rec[0]))
	return first == "timestamp" || first == "time" || first == "timestamp_ms" || first == "open_time_ms"
}

func lower(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func indexRow(headers, rec []string) map[string]string {
	if headers == nil {
		return nil
	}
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(rec) {
			row[h] = strings.TrimSpace(rec[i])
		}
	}
	return row
}

// field resolves a value by header name, falling back to a positional
// column for headerless files.
func field(row map[string]string, rec []string, pos int, names ...string) string {
	if row != nil {
		for _, n := range names {
			if v := row[n]; v != "" {
				return v
			}
		}
		return ""
	}
	if pos < len(rec) {
		return strings.TrimSpace(rec[pos])
	}
	return ""
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.ParseFloat(s, 64)
}

// parseTimeFlexible accepts RFC3339, unix seconds, or unix milliseconds and
// normalizes to unix ms.
func parseTimeFlexible(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	// heuristic: values before ~2001 in ms are actually seconds
	if n < 1_000_000_000_000 {
		return n * 1000, nil
	}
	return n, nil
}
