// Package normalize cleans the cell values found in exchange CSV exports and
// scraped report tables.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Call = "C"
	Put  = "P"

	SessionRegular    = "regular"
	SessionAfterHours = "after_hours"
)

var numberReplacer = strings.NewReplacer(
	",", "",
	"%", "",
	"▲", "",
	"+", "",
	"▼", "-",
	" ", "",
	"\u00a0", "",
	"\t", "",
)

// Number parses a numeric cell. Thousands separators, percent signs and the
// ▲/▼ change markers are stripped; ▼ turns the value negative. Placeholder
// cells such as "-", "--" and "" report ok=false.
func Number(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if isPlaceholder(s) {
		return decimal.Zero, false
	}

	s = numberReplacer.Replace(s)
	s = strings.ReplaceAll(s, "--", "-")
	if isPlaceholder(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func isPlaceholder(s string) bool {
	switch strings.ToLower(s) {
	case "", "-", "--", "---", "nan", "n/a", "null", "none":
		return true
	}
	return false
}

// Float returns nil when the cell holds no number.
func Float(raw string) *float64 {
	d, ok := Number(raw)
	if !ok {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// Int truncates toward zero and returns nil when the cell holds no number.
func Int(raw string) *int64 {
	d, ok := Number(raw)
	if !ok {
		return nil
	}
	i := d.IntPart()
	return &i
}

// IntOr returns the parsed integer or def.
func IntOr(raw string, def int64) int64 {
	if v := Int(raw); v != nil {
		return *v
	}
	return def
}

// FloatOr returns the parsed float or def.
func FloatOr(raw string, def float64) float64 {
	if v := Float(raw); v != nil {
		return *v
	}
	return def
}

// HasDigit reports whether the raw OI text carries a number at all.
func HasDigit(raw string) bool {
	s := strings.TrimSpace(raw)
	if isPlaceholder(s) {
		return false
	}
	return strings.ContainsAny(s, "0123456789")
}

var dateLayouts = []string{
	"2006/01/02",
	"2006-01-02",
	"2006/1/2",
	"2006-1-2",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"20060102",
}

var rocDate = regexp.MustCompile(`^(\d{2,3})[/-](\d{1,2})[/-](\d{1,2})$`)

// Date parses the date formats seen in TAIFEX/TWSE exports, including ROC
// (民國) years such as 113/01/15. The result is midnight UTC.
func Date(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if m := rocDate.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("invalid ROC date %q", raw)
		}
		return time.Date(year+1911, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CallPut maps the many spellings of an option side onto C or P.
func CallPut(raw string) (string, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	switch strings.ToUpper(s) {
	case "C", "CALL", "買權":
		return Call, true
	case "P", "PUT", "賣權":
		return Put, true
	}
	switch {
	case strings.Contains(s, "買"):
		return Call, true
	case strings.Contains(s, "賣"):
		return Put, true
	}
	return "", false
}

// Session maps trading-session labels onto regular or after_hours.
func Session(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "盤後"), strings.Contains(s, "後市"), strings.Contains(s, "夜盤"),
		strings.Contains(s, "after"):
		return SessionAfterHours
	}
	return SessionRegular
}
