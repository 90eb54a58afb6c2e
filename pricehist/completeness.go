package pricehist

import (
	"fmt"
	"strings"
	"time"

	"github.com/viktsys/twmarket/database"
)

// Interval pairs a bar size with the longest range Yahoo serves for it.
type Interval struct {
	Interval string
	Period   string
	Name     string
}

// Intervals are downloaded in this order.
var Intervals = []Interval{
	{"1d", "max", "1日"},
	{"1h", "2y", "1小時"},
	{"30m", "60d", "30分"},
	{"15m", "60d", "15分"},
	{"5m", "60d", "5分"},
	{"1m", "7d", "1分"},
}

const (
	staleAfter     = 7 * 24 * time.Hour
	minBars        = 10
	minDailySpan   = 30 * 24 * time.Hour
	maxMissingFrac = 0.1
)

// NeedsDownload decides from the stored coverage whether symbol must be
// fetched again, and why.
func NeedsDownload(cov database.Coverage, now time.Time) (bool, string) {
	if cov.Latest == nil {
		return true, "no data"
	}
	if missing := missingYears(cov.Years, now.Year()); len(missing) > 0 {
		return true, fmt.Sprintf("missing years %v", missing)
	}
	if age := now.Sub(*cov.Latest); age > staleAfter {
		return true, fmt.Sprintf("stale for %d days", int(age.Hours()/24))
	}
	return false, "complete"
}

func missingYears(years []int, current int) []int {
	if len(years) == 0 {
		return nil
	}
	have := make(map[int]bool, len(years))
	for _, y := range years {
		have[y] = true
	}
	var missing []int
	for y := years[0]; y <= current; y++ {
		if !have[y] {
			missing = append(missing, y)
		}
	}
	return missing
}

// Complete checks a downloaded series before it is stored.
func Complete(bars []Bar, interval string) bool {
	if len(bars) < minBars {
		return false
	}
	first, last := bars[0].Time, bars[0].Time
	missing := 0
	for _, b := range bars {
		if b.Time.Before(first) {
			first = b.Time
		}
		if b.Time.After(last) {
			last = b.Time
		}
		if b.Missing {
			missing++
		}
	}
	if interval == "1d" && last.Sub(first) < minDailySpan {
		return false
	}
	return float64(missing) <= float64(len(bars))*maxMissingFrac
}

// Market decides how a bare stock code is turned into a Yahoo symbol.
type Market string

const (
	MarketTW Market = "TW"
	MarketUS Market = "US"
)

// YahooSymbol appends .TW to Taiwan stock codes that carry no suffix.
func YahooSymbol(code string, market Market) string {
	code = strings.TrimSpace(code)
	if market != MarketTW || strings.HasSuffix(code, ".TW") || strings.HasSuffix(code, ".TWO") {
		return code
	}
	return code + ".TW"
}

// ValidSymbol rejects placeholders and Taiwan symbols with non-digit codes.
func ValidSymbol(symbol string) bool {
	switch strings.TrimSpace(symbol) {
	case "", "N/A", "NaN", "None":
		return false
	}
	base := symbol
	switch {
	case strings.HasSuffix(symbol, ".TWO"):
		base = strings.TrimSuffix(symbol, ".TWO")
	case strings.HasSuffix(symbol, ".TW"):
		base = strings.TrimSuffix(symbol, ".TW")
	default:
		return true
	}
	if base == "" {
		return false
	}
	for _, r := range base {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
