package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viktsys/twmarket/models"
)

// OptimizeIndexes adds the composite indexes used by the OI aggregation and
// the TXO chain queries.
func OptimizeIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_options_product_date_contract
		ON options_raw (product, trade_date, strike, cp)
	`).Error; err != nil {
		return fmt.Errorf("failed to create options contract index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_futures_product_date
		ON futures_raw (product, trade_date)
	`).Error; err != nil {
		return fmt.Errorf("failed to create futures product index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_stocks_symbol_date
		ON stocks_raw (symbol, trade_date)
	`).Error; err != nil {
		return fmt.Errorf("failed to create stocks symbol index: %w", err)
	}

	return nil
}

// DefaultDerivatives is the seed for derivatives_list.
var DefaultDerivatives = []models.DerivativeListing{
	{Symbol: "TXF=F", Name: "台股期貨", Type: "future", Underlying: "台指"},
	{Symbol: "MXF=F", Name: "小型台指期貨", Type: "future", Underlying: "台指"},
	{Symbol: "EXF=F", Name: "電子期貨", Type: "future", Underlying: "電子"},
	{Symbol: "FXF=F", Name: "金融期貨", Type: "future", Underlying: "金融"},
	{Symbol: "ES=F", Name: "S&P500期貨", Type: "future", Underlying: "SP500"},
	{Symbol: "NQ=F", Name: "NASDAQ期貨", Type: "future", Underlying: "NASDAQ"},
	{Symbol: "YM=F", Name: "道瓊期貨", Type: "future", Underlying: "DJIA"},
	{Symbol: "GC=F", Name: "黃金期貨", Type: "future", Underlying: "黃金"},
	{Symbol: "CL=F", Name: "原油期貨", Type: "future", Underlying: "原油"},
}

// SeedDerivatives inserts the default derivatives, leaving existing rows alone.
func SeedDerivatives(db *gorm.DB) error {
	seed := make([]models.DerivativeListing, len(DefaultDerivatives))
	copy(seed, DefaultDerivatives)

	now := time.Now().UTC()
	for i := range seed {
		seed[i].LastUpdated = now
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
}
