package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

// TXOReportURL is the TAIFEX option daily market report form.
const TXOReportURL = "https://www.taifex.com.tw/cht/3/optDailyMarketReport"

var (
	// ErrNoTable means the page carried no table mentioning TXO.
	ErrNoTable = errors.New("no TXO table in page")
	// ErrNoRows means the TXO table had no TXO data rows.
	ErrNoRows = errors.New("no TXO rows in table")
)

// TXOReport downloads and parses the TXO daily market report.
type TXOReport struct {
	client *Client
	url    string
}

func NewTXOReport(client *Client, reportURL string) *TXOReport {
	if reportURL == "" {
		reportURL = TXOReportURL
	}
	return &TXOReport{client: client, url: reportURL}
}

// Fetch posts the report form for date and parses the reply.
func (r *TXOReport) Fetch(ctx context.Context, date time.Time) ([]models.TXODailyQuote, error) {
	form := url.Values{
		"queryType":     {"2"},
		"marketCode":    {"0"},
		"dateaddcnt":    {""},
		"commodity_id":  {"TXO"},
		"queryDate":     {date.Format("2006/01/02")},
		"MarketCode":    {"0"},
		"commodity_id2": {""},
	}
	headers := map[string]string{
		"Origin":  "https://www.taifex.com.tw",
		"Referer": TXOReportURL,
	}

	body, err := r.client.PostForm(ctx, r.url, form, headers)
	if err != nil {
		return nil, err
	}
	return ParseTXOReport(body, date)
}

// txoColumns maps quote fields to header substrings. Historical columns come
// first so that 最高價 does not claim 歷史最高價.
var txoColumns = []struct {
	field    string
	patterns []string
}{
	{"historical_high", []string{"歷史最高價"}},
	{"historical_low", []string{"歷史最低價"}},
	{"best_bid", []string{"最後最佳買價"}},
	{"best_ask", []string{"最後最佳賣價"}},
	{"contract_type", []string{"契約"}},
	{"expiry_date", []string{"到期月份"}},
	{"strike_price", []string{"履約價"}},
	{"option_type", []string{"買賣權"}},
	{"open_price", []string{"開盤價"}},
	{"high_price", []string{"最高價"}},
	{"low_price", []string{"最低價"}},
	{"last_price", []string{"最後成交價"}},
	{"settlement_price", []string{"結算價"}},
	{"change_price", []string{"漲跌價"}},
	{"change_percent", []string{"漲跌%"}},
	{"after_hours_volume", []string{"盤後交易時段成交量"}},
	{"regular_volume", []string{"一般交易時段成交量"}},
	{"total_volume", []string{"合計成交量"}},
	{"open_interest", []string{"未沖銷契約量", "未沖銷契約數"}},
}

// ParseTXOReport extracts the TXO rows of a report page.
func ParseTXOReport(page []byte, date time.Time) ([]models.TXODailyQuote, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "TXO")
	}).First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	headers := dedupeHeaders(cellTexts(table.Find("thead tr").Last().Find("th, td")))

	var rows [][]string
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := cellTexts(tr.Find("td"))
		if len(cells) > 3 && cells[0] == "TXO" {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	headers = fitHeaders(headers, len(rows[0]))

	index := mapColumns(headers)
	day := normalize.Day(date)
	quotes := make([]models.TXODailyQuote, 0, len(rows))
	for _, row := range rows {
		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		strike := normalize.Float(get("strike_price"))
		if strike == nil {
			continue
		}
		quotes = append(quotes, models.TXODailyQuote{
			TradeDate:        day,
			ContractType:     strings.TrimSpace(get("contract_type")),
			ExpiryDate:       strings.TrimSpace(get("expiry_date")),
			StrikePrice:      *strike,
			OptionType:       strings.TrimSpace(get("option_type")),
			OpenPrice:        normalize.Float(get("open_price")),
			HighPrice:        normalize.Float(get("high_price")),
			LowPrice:         normalize.Float(get("low_price")),
			LastPrice:        normalize.Float(get("last_price")),
			SettlementPrice:  normalize.Float(get("settlement_price")),
			ChangePrice:      normalize.Float(get("change_price")),
			ChangePercent:    normalize.Float(get("change_percent")),
			AfterHoursVolume: normalize.Int(get("after_hours_volume")),
			RegularVolume:    normalize.Int(get("regular_volume")),
			TotalVolume:      normalize.Int(get("total_volume")),
			OpenInterest:     normalize.Int(get("open_interest")),
			BestBid:          normalize.Float(get("best_bid")),
			BestAsk:          normalize.Float(get("best_ask")),
			HistoricalHigh:   normalize.Float(get("historical_high")),
			HistoricalLow:    normalize.Float(get("historical_low")),
		})
	}
	return quotes, nil
}

func cellTexts(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.TrimSpace(c.Text()))
	})
	return out
}

// dedupeHeaders names blank headers Column_i and suffixes repeats with _n.
func dedupeHeaders(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for i, h := range raw {
		if h == "" {
			h = "Column_" + strconv.Itoa(i)
		}
		name := h
		for n := 1; seen[name]; n++ {
			name = h + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// fitHeaders truncates or pads headers to the data width.
func fitHeaders(headers []string, width int) []string {
	if len(headers) > width {
		return headers[:width]
	}
	for i := len(headers); i < width; i++ {
		headers = append(headers, "Column_"+strconv.Itoa(i))
	}
	return headers
}

func mapColumns(headers []string) map[string]int {
	index := make(map[string]int)
	claimed := make(map[int]bool)
	for _, col := range txoColumns {
	patterns:
		for _, p := range col.patterns {
			for i, h := range headers {
				if !claimed[i] && strings.Contains(h, p) {
					index[col.field] = i
					claimed[i] = true
					break patterns
				}
			}
		}
	}
	return index
}
