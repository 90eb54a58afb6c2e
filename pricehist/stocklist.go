package pricehist

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/viktsys/twmarket/models"
)

var listColumns = map[string][]string{
	"stock_id": {"證券代號", "code", "symbol", "代號", "股票代號", "Code", "Symbol"},
	"name":     {"證券名稱", "name", "股票名稱", "公司名稱", "Name"},
	"market":   {"市場", "market", "Market", "市場別"},
	"industry": {"產業", "industry", "Industry", "產業別", "類股"},
}

const defaultMarket = "上市"

// ReadStockList parses a stock master CSV. The code and name columns are
// found by name; market and industry are optional.
func ReadStockList(path string, now time.Time) ([]models.StockListing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stock list: %w", err)
	}
	text, enc, err := decodeList(raw)
	if err != nil {
		return nil, err
	}

	records, err := gocsv.CSVToMaps(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse stock list (%s): %w", enc, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("stock list %s has no rows", path)
	}

	cols := detectListColumns(records[0])
	if cols["stock_id"] == "" || cols["name"] == "" {
		return nil, fmt.Errorf("stock list %s: no code or name column", path)
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var out []models.StockListing
	for _, rec := range records {
		id := strings.TrimSpace(rec[cols["stock_id"]])
		if id == "" || id == "證券代號" || strings.EqualFold(id, "code") {
			continue
		}
		market := defaultMarket
		if c := cols["market"]; c != "" {
			market = strings.TrimSpace(rec[c])
		}
		var industry string
		if c := cols["industry"]; c != "" {
			industry = strings.TrimSpace(rec[c])
		}
		listed := day
		out = append(out, models.StockListing{
			StockID:     id,
			Name:        strings.TrimSpace(rec[cols["name"]]),
			Market:      market,
			Industry:    industry,
			ListedDate:  &listed,
			IsActive:    true,
			LastUpdated: now,
			DataSource:  "manual_csv",
		})
	}
	return out, nil
}

func detectListColumns(rec map[string]string) map[string]string {
	out := make(map[string]string)
	for header := range rec {
		name := strings.TrimSpace(header)
		for field, candidates := range listColumns {
			if out[field] != "" {
				continue
			}
			for _, c := range candidates {
				if name == c {
					out[field] = header
					break
				}
			}
		}
	}
	return out
}

// decodeList tries utf-8, then big5/cp950, then latin1.
func decodeList(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	if s, err := traditionalchinese.Big5.NewDecoder().Bytes(raw); err == nil && !bytes.ContainsRune(s, utf8.RuneError) {
		return string(s), "big5", nil
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("decode stock list: %w", err)
	}
	return string(s), "latin1", nil
}
