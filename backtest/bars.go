// Package backtest runs long-only technical strategies over one OHLCV series
// and scores the resulting trades.
package backtest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/normalize"
)

var ErrNoBars = errors.New("no bars")

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

var barColumns = map[string][]string{
	"time":   {"datetime", "date", "time", "timestamp", "日期"},
	"open":   {"open", "開盤價", "開盤"},
	"high":   {"high", "最高價", "最高"},
	"low":    {"low", "最低價", "最低"},
	"close":  {"close", "收盤價", "收盤", "adj close"},
	"volume": {"volume", "成交量", "成交股數"},
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// ReadBars loads a bar CSV with a time column and open/high/low/close/volume
// columns. Rows without a parsable time or close are skipped. The result is
// sorted by time.
func ReadBars(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()

	records, err := gocsv.CSVToMaps(f)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoBars
	}

	cols := detectBarColumns(records[0])
	for _, need := range []string{"time", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("bars %s: no %s column", path, need)
		}
	}

	var bars []Bar
	for _, rec := range records {
		t, err := parseBarTime(rec[cols["time"]])
		if err != nil {
			continue
		}
		closePrice := normalize.Float(rec[cols["close"]])
		if closePrice == nil {
			continue
		}
		bar := Bar{Time: t, Close: *closePrice}
		bar.Open = normalize.FloatOr(rec[cols["open"]], bar.Close)
		bar.High = normalize.FloatOr(rec[cols["high"]], bar.Close)
		bar.Low = normalize.FloatOr(rec[cols["low"]], bar.Close)
		bar.Volume = normalize.FloatOr(rec[cols["volume"]], 0)
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrNoBars
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func detectBarColumns(rec map[string]string) map[string]string {
	cols := make(map[string]string)
	for header := range rec {
		key := strings.ToLower(strings.TrimSpace(header))
		for field, candidates := range barColumns {
			if _, done := cols[field]; done {
				continue
			}
			for _, c := range candidates {
				if key == c {
					cols[field] = header
					break
				}
			}
		}
	}
	return cols
}

func parseBarTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return normalize.Date(s)
}

// FromStore converts stored bars.
func FromStore(rows []database.BarRow) []Bar {
	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{
			Time:   r.Date,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: float64(r.Volume),
		}
	}
	return bars
}
