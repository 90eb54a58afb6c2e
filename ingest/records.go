package ingest

import (
	"path/filepath"
	"strings"

	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

const (
	DefaultOptionProduct = "TXO"
	DefaultFutureProduct = "TXF"
)

// rowBuilder turns string rows into models for one classified file.
type rowBuilder struct {
	cols     Columns
	loadFile string
	product  string
	symbol   *Symbol
}

func newRowBuilder(d Decision, path, product string) *rowBuilder {
	return &rowBuilder{
		cols:     ResolveColumns(d.Header),
		loadFile: filepath.Base(path),
		product:  product,
		symbol:   d.Symbol,
	}
}

func (b *rowBuilder) productOr(row []string, def string) string {
	if p := b.cols.Get(row, FieldProduct); p != "" {
		return strings.ToUpper(p)
	}
	if b.product != "" {
		return b.product
	}
	return def
}

// option returns false for rows without a date, strike or side.
func (b *rowBuilder) option(row []string) (models.OptionRaw, bool) {
	date, err := normalize.Date(b.cols.Get(row, FieldDate))
	if err != nil {
		return models.OptionRaw{}, false
	}
	strike := normalize.Float(b.cols.Get(row, FieldStrike))
	if strike == nil {
		return models.OptionRaw{}, false
	}
	cp, ok := normalize.CallPut(b.cols.Get(row, FieldCP))
	if !ok {
		return models.OptionRaw{}, false
	}

	rawOI := b.cols.Get(row, FieldOI)
	return models.OptionRaw{
		Product:   b.productOr(row, DefaultOptionProduct),
		TradeDate: date,
		Expiry:    b.cols.Get(row, FieldExpiry),
		Strike:    *strike,
		CP:        cp,
		Volume:    normalize.IntOr(b.cols.Get(row, FieldVolume), 0),
		OI:        normalize.Int(rawOI),
		RawOIText: rawOI,
		Session:   normalize.Session(b.cols.Get(row, FieldSession)),
		LoadFile:  b.loadFile,
	}, true
}

func (b *rowBuilder) future(row []string) (models.FutureRaw, bool) {
	date, err := normalize.Date(b.cols.Get(row, FieldDate))
	if err != nil {
		return models.FutureRaw{}, false
	}
	return models.FutureRaw{
		Product:    b.productOr(row, DefaultFutureProduct),
		TradeDate:  date,
		Expiry:     b.cols.Get(row, FieldExpiry),
		Open:       normalize.Float(b.cols.Get(row, FieldOpen)),
		High:       normalize.Float(b.cols.Get(row, FieldHigh)),
		Low:        normalize.Float(b.cols.Get(row, FieldLow)),
		Close:      normalize.Float(b.cols.Get(row, FieldClose)),
		Volume:     normalize.IntOr(b.cols.Get(row, FieldVolume), 0),
		OI:         normalize.IntOr(b.cols.Get(row, FieldOI), 0),
		Settlement: normalize.Float(b.cols.Get(row, FieldSettlement)),
		Session:    normalize.Session(b.cols.Get(row, FieldSession)),
		LoadFile:   b.loadFile,
	}, true
}

// stock fills symbol and name from the extracted symbol when the row has
// no symbol column.
func (b *rowBuilder) stock(row []string) (models.StockRaw, bool) {
	date, err := normalize.Date(b.cols.Get(row, FieldDate))
	if err != nil {
		return models.StockRaw{}, false
	}

	symbol := b.cols.Get(row, FieldSymbol)
	name := b.cols.Get(row, FieldName)
	if symbol == "" && b.symbol != nil {
		symbol = b.symbol.Code
		if name == "" {
			name = b.symbol.Name
		}
	}
	if symbol == "" {
		return models.StockRaw{}, false
	}

	return models.StockRaw{
		Symbol:      symbol,
		ChineseName: name,
		TradeDate:   date,
		Open:        normalize.Float(b.cols.Get(row, FieldOpen)),
		High:        normalize.Float(b.cols.Get(row, FieldHigh)),
		Low:         normalize.Float(b.cols.Get(row, FieldLow)),
		Close:       normalize.Float(b.cols.Get(row, FieldClose)),
		Volume:      normalize.IntOr(b.cols.Get(row, FieldVolume), 0),
		Value:       normalize.FloatOr(b.cols.Get(row, FieldValue), 0),
		LoadFile:    b.loadFile,
	}, true
}

// rowBatch carries the models built from one slice of rows. Only the slice
// matching the file's type is filled.
type rowBatch struct {
	options []models.OptionRaw
	futures []models.FutureRaw
	stocks  []models.StockRaw
	dropped int
}

func (b rowBatch) len() int {
	return len(b.options) + len(b.futures) + len(b.stocks)
}

func (b *rowBuilder) build(kind DataType, rows [][]string) rowBatch {
	var out rowBatch
	for _, row := range rows {
		switch kind {
		case Options:
			if rec, ok := b.option(row); ok {
				out.options = append(out.options, rec)
				continue
			}
		case Futures:
			if rec, ok := b.future(row); ok {
				out.futures = append(out.futures, rec)
				continue
			}
		case Stocks:
			if rec, ok := b.stock(row); ok {
				out.stocks = append(out.stocks, rec)
				continue
			}
		}
		out.dropped++
	}
	return out
}
