package models

import (
	"testing"
	"time"
)

func TestTableNames(t *testing.T) {
	tables := map[string]interface{ TableName() string }{
		"options_raw":      OptionRaw{},
		"futures_raw":      FutureRaw{},
		"stocks_raw":       StockRaw{},
		"txo_daily_quotes": TXODailyQuote{},
		"stock_list":       StockListing{},
		"stock_bars":       StockBar{},
		"derivatives_list": DerivativeListing{},
		"derivative_bars":  DerivativeBar{},
		"download_log":     DownloadLog{},
	}

	for want, model := range tables {
		if got := model.TableName(); got != want {
			t.Errorf("Expected table %s, got %s", want, got)
		}
	}
}

func TestOptionRawModel(t *testing.T) {
	oi := int64(1520)
	option := OptionRaw{
		Product:   "TXO",
		TradeDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Expiry:    "202401W3",
		Strike:    17500,
		CP:        "C",
		OI:        &oi,
		RawOIText: "1,520",
		Session:   "regular",
	}

	if option.Strike != 17500 {
		t.Errorf("Expected strike 17500, got %f", option.Strike)
	}

	if option.OI == nil || *option.OI != 1520 {
		t.Errorf("Expected OI 1520, got %v", option.OI)
	}
}

func TestStockRawModel(t *testing.T) {
	stock := StockRaw{
		Symbol:      "2330",
		ChineseName: "台積電",
		TradeDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Volume:      25000000,
	}

	if stock.Symbol != "2330" {
		t.Errorf("Expected symbol 2330, got %s", stock.Symbol)
	}

	if stock.Open != nil {
		t.Errorf("Expected nil open, got %v", *stock.Open)
	}
}
