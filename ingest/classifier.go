package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// DataType is the kind of rows a chunk holds.
type DataType string

const (
	Unknown DataType = ""
	Options DataType = "options"
	Futures DataType = "futures"
	Stocks  DataType = "stocks"
)

func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "options", "option", "1":
		return Options, nil
	case "futures", "future", "2":
		return Futures, nil
	case "stocks", "stock", "3":
		return Stocks, nil
	case "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

var (
	stockFieldKeywords = []string{
		"open", "high", "low", "close", "volume", "value",
		"開盤", "最高", "最低", "收盤", "成交量", "成交金額",
		"日期", "date", "代號", "symbol", "名稱", "name",
	}
	derivativeFieldKeywords = []string{
		"cp", "call", "put", "strike", "履約價", "expiry", "到期",
		"settlement", "結算價", "oi", "未平倉", "留倉",
	}
	proseWords = []string{
		"報告", "報表", "資料", "統計", "明細", "表", "年度", "月份",
		"公司", "股票", "證券", "交易", "市場", "行情", "投資",
	}

	optionIndicators = []string{"cp", "call/put", "買賣權", "strike", "履約價", "expiry", "到期"}
	futureIndicators = []string{"settlement", "結算價", "oi", "未平倉", "留倉"}
	stockIndicators  = []string{"open", "high", "low", "close", "volume", "value", "成交金額", "開盤", "最高", "最低", "收盤", "成交量"}
)

// HeaderScore rates how much a row of cells looks like column names.
func HeaderScore(cells []string) int {
	score := 0
	for _, raw := range cells {
		text := strings.ToLower(raw)
		if containsAny(text, stockFieldKeywords) {
			score += 2
		}
		if containsAny(text, derivativeFieldKeywords) {
			score += 2
		}
		if utf8.RuneCountInString(text) <= 12 && !containsAny(text, proseWords) {
			score++
		}
		if utf8.RuneCountInString(text) > 20 || numeric(text) {
			score--
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func numeric(text string) bool {
	s := strings.NewReplacer(".", "", ",", "", "-", "").Replace(text)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Scores counts header names found in each indicator set.
type Scores struct {
	Option int
	Future int
	Stock  int
}

func indicatorScores(header []string) Scores {
	names := make(map[string]struct{}, len(header))
	for _, h := range header {
		names[strings.ToLower(h)] = struct{}{}
	}
	count := func(set []string) int {
		n := 0
		for _, k := range set {
			if _, ok := names[k]; ok {
				n++
			}
		}
		return n
	}
	return Scores{
		Option: count(optionIndicators),
		Future: count(futureIndicators),
		Stock:  count(stockIndicators),
	}
}

// Symbol is an instrument code and display name found in free text.
type Symbol struct {
	Code    string
	Name    string
	FoundIn string
}

var symbolPattern = regexp.MustCompile(`(?:\s|^)(\d{3,6}[A-Za-z]*)\s+(\p{Han}+)`)
var symbolCode = regexp.MustCompile(`^\d+[A-Za-z]*$`)

// ExtractSymbol finds a Taiwan stock code followed by its name, such as
// "2330 台積電", in any of cells.
func ExtractSymbol(cells []string) (Symbol, bool) {
	for _, c := range cells {
		m := symbolPattern.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		code := strings.TrimSpace(m[1])
		if validSymbol(code) {
			return Symbol{Code: code, Name: strings.TrimSpace(m[2])}, true
		}
	}
	return Symbol{}, false
}

func validSymbol(code string) bool {
	if len(code) < 4 || len(code) > 6 {
		return false
	}
	return symbolCode.MatchString(code)
}

// Chunk is a block of rows as read from a file. Header may still be a title
// line; Preamble holds lines the loader already skipped.
type Chunk struct {
	Header   []string
	Rows     [][]string
	Preamble [][]string
}

// Preview is what an operator sees when asked to pick a type.
type Preview struct {
	Source string
	Header []string
	Rows   [][]string
}

// Chooser resolves chunks the heuristics cannot classify. Returning Unknown
// drops the chunk.
type Chooser interface {
	Choose(ctx context.Context, p Preview) (DataType, error)
}

// Decision is the outcome of classifying a chunk.
type Decision struct {
	Type   DataType
	Header []string
	Rows   [][]string
	// Shifted is set when the first row was a title and the second row
	// became the header.
	Shifted bool
	Symbol  *Symbol
	Scores  Scores
	Reason  string
}

type Classifier struct {
	Chooser Chooser
	log     *logrus.Entry
}

func NewClassifier(log *logrus.Logger, chooser Chooser) *Classifier {
	return &Classifier{
		Chooser: chooser,
		log:     log.WithField("component", "classifier"),
	}
}

// Classify picks the header row, the data type and any embedded symbol.
func (c *Classifier) Classify(ctx context.Context, source string, chunk Chunk) (Decision, error) {
	d := Decision{Header: chunk.Header, Rows: chunk.Rows}

	first := HeaderScore(chunk.Header)
	second := 0
	if first < 3 && len(chunk.Rows) > 0 {
		second = HeaderScore(chunk.Rows[0])
	}

	skipped := append([][]string(nil), chunk.Preamble...)
	if first < second {
		skipped = append(skipped, chunk.Header)
		d.Header = chunk.Rows[0]
		d.Rows = chunk.Rows[1:]
		d.Shifted = true
	}

	d.Scores = indicatorScores(d.Header)
	s := d.Scores

	var firstRow []string
	if len(d.Rows) > 0 {
		firstRow = d.Rows[0]
	}

	switch {
	case s.Option >= 2:
		d.Type, d.Reason = Options, fmt.Sprintf("option score %d", s.Option)
	case s.Future >= 2 && s.Option == 0:
		d.Type, d.Reason = Futures, fmt.Sprintf("future score %d", s.Future)
	case s.Stock >= 2 && s.Option == 0 && s.Future == 0:
		d.Type, d.Reason = Stocks, fmt.Sprintf("stock score %d", s.Stock)
		d.Symbol = findSymbol(skipped, d.Header, nil)
	default:
		if sym := findSymbol(skipped, d.Header, firstRow); sym != nil {
			d.Type, d.Symbol = Stocks, sym
			d.Reason = fmt.Sprintf("symbol %s %s in %s", sym.Code, sym.Name, sym.FoundIn)
			break
		}
		if c.Chooser == nil {
			d.Reason = "unclassified"
			break
		}
		preview := Preview{Source: source, Header: d.Header, Rows: firstRows(d.Rows, 2)}
		choice, err := c.Chooser.Choose(ctx, preview)
		if err != nil {
			return d, fmt.Errorf("choose type for %s: %w", source, err)
		}
		d.Type, d.Reason = choice, "operator choice"
	}

	c.log.WithFields(logrus.Fields{
		"source":  source,
		"type":    d.Type,
		"shifted": d.Shifted,
		"reason":  d.Reason,
	}).Debug("chunk classified")
	return d, nil
}

func findSymbol(skipped [][]string, header, firstRow []string) *Symbol {
	for _, row := range skipped {
		if sym, ok := ExtractSymbol(row); ok {
			sym.FoundIn = "title"
			return &sym
		}
	}
	if sym, ok := ExtractSymbol(header); ok {
		sym.FoundIn = "header"
		return &sym
	}
	if sym, ok := ExtractSymbol(firstRow); ok {
		sym.FoundIn = "data"
		return &sym
	}
	return nil
}

func firstRows(rows [][]string, n int) [][]string {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// PromptChooser asks on a terminal which type an unclassified chunk is.
// Files are imported concurrently, so one prompt and its answer are
// handled at a time.
type PromptChooser struct {
	In  io.Reader
	Out io.Writer

	mu      sync.Mutex
	scanner *bufio.Scanner
}

func (p *PromptChooser) Choose(ctx context.Context, preview Preview) (DataType, error) {
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}

	fmt.Fprintf(p.Out, "Cannot classify %s\n", preview.Source)
	fmt.Fprintf(p.Out, "  header: %q\n", preview.Header)
	for i, row := range preview.Rows {
		fmt.Fprintf(p.Out, "  row %d:  %q\n", i+1, row)
	}
	fmt.Fprint(p.Out, "Type? 1) options 2) futures 3) stocks, anything else skips: ")

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return Unknown, err
		}
		return Unknown, nil
	}
	choice, err := ParseDataType(p.scanner.Text())
	if err != nil {
		return Unknown, nil
	}
	return choice, nil
}
