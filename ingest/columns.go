package ingest

import "strings"

// Field is a logical column shared by all export layouts.
type Field string

const (
	FieldDate       Field = "trade_date"
	FieldProduct    Field = "product"
	FieldExpiry     Field = "expiry"
	FieldStrike     Field = "strike"
	FieldCP         Field = "cp"
	FieldSession    Field = "session"
	FieldVolume     Field = "volume"
	FieldOI         Field = "oi"
	FieldOpen       Field = "open"
	FieldHigh       Field = "high"
	FieldLow        Field = "low"
	FieldClose      Field = "close"
	FieldSettlement Field = "settlement"
	FieldValue      Field = "value"
	FieldSymbol     Field = "symbol"
	FieldName       Field = "name"
)

// fieldOrder is the claim order: earlier fields take a column first, so
// 未沖銷契約數 goes to oi before anything else can match it.
var fieldOrder = []Field{
	FieldDate, FieldStrike, FieldCP, FieldOI, FieldSession, FieldExpiry,
	FieldProduct, FieldSymbol, FieldName, FieldSettlement, FieldValue,
	FieldVolume, FieldOpen, FieldHigh, FieldLow, FieldClose,
}

var columnCandidates = map[Field][]string{
	FieldDate:       {"交易日期", "trade_date", "tradedate", "date", "日期"},
	FieldStrike:     {"履約價", "履約", "strike"},
	FieldCP:         {"買賣權", "權別", "call/put", "cp", "call", "put", "買權", "賣權"},
	FieldOI:         {"未沖銷契約數", "未沖銷契約量", "未沖銷", "openinterest", "open_interest", "oi", "未平倉", "留倉"},
	FieldSession:    {"交易時段", "時段", "session"},
	FieldExpiry:     {"到期月份", "到期", "expiry"},
	FieldProduct:    {"契約", "商品代號", "contract", "product"},
	FieldSymbol:     {"證券代號", "股票代號", "symbol", "代號", "code"},
	FieldName:       {"證券名稱", "股票名稱", "chinese_name", "名稱", "name"},
	FieldSettlement: {"結算價", "settlement"},
	FieldValue:      {"成交金額", "value", "金額"},
	FieldVolume:     {"成交量", "成交股數", "volume", "vol"},
	FieldOpen:       {"開盤價", "開盤", "open"},
	FieldHigh:       {"最高價", "最高", "high"},
	FieldLow:        {"最低價", "最低", "low"},
	FieldClose:      {"收盤價", "收盤", "最後成交價", "close", "last"},
}

// Columns maps logical fields onto header positions.
type Columns map[Field]int

// ResolveColumns matches header names to logical fields. For each field the
// candidates are tried in order, exact names before substrings, and a column
// is never assigned twice.
func ResolveColumns(header []string) Columns {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}

	cols := make(Columns)
	claimed := make(map[int]bool)
	for _, f := range fieldOrder {
		if i, ok := matchColumn(norm, claimed, columnCandidates[f]); ok {
			cols[f] = i
			claimed[i] = true
		}
	}
	return cols
}

func matchColumn(norm []string, claimed map[int]bool, candidates []string) (int, bool) {
	for _, c := range candidates {
		c = normalizeHeader(c)
		for i, h := range norm {
			if !claimed[i] && h == c {
				return i, true
			}
		}
		for i, h := range norm {
			if !claimed[i] && strings.Contains(h, c) {
				return i, true
			}
		}
	}
	return 0, false
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// Has reports whether f was found.
func (c Columns) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Get returns the cell of row for f, or "" when the field is absent.
func (c Columns) Get(row []string, f Field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
