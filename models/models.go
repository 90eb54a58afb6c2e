package models

import (
	"time"
)

// OptionRaw is one option contract row as imported from an exchange export.
// OI is nil when the source cell was "-" or empty; RawOIText keeps the cell.
type OptionRaw struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Product   string    `gorm:"size:20;not null;index:idx_options_product;uniqueIndex:uidx_options_row" json:"product"`
	TradeDate time.Time `gorm:"not null;index:idx_options_trade_date;uniqueIndex:uidx_options_row" json:"trade_date"`
	Expiry    string    `gorm:"size:20;not null;index:idx_options_expiry;uniqueIndex:uidx_options_row" json:"expiry"`
	Strike    float64   `gorm:"not null;index:idx_options_strike;uniqueIndex:uidx_options_row" json:"strike"`
	CP        string    `gorm:"column:cp;size:1;not null;uniqueIndex:uidx_options_row" json:"cp"`
	Volume    int64     `gorm:"default:0" json:"volume"`
	OI        *int64    `gorm:"column:oi" json:"oi"`
	RawOIText string    `gorm:"column:raw_oi_text" json:"raw_oi_text"`
	Session   string    `gorm:"size:16;not null;default:regular;uniqueIndex:uidx_options_row" json:"session"`
	LoadFile  string    `json:"load_file"`
	CreatedAt time.Time `json:"created_at"`
}

func (OptionRaw) TableName() string { return "options_raw" }

// FutureRaw is one futures contract row.
type FutureRaw struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Product    string    `gorm:"size:20;not null;index:idx_futures_product;uniqueIndex:uidx_futures_row" json:"product"`
	TradeDate  time.Time `gorm:"not null;index:idx_futures_trade_date;uniqueIndex:uidx_futures_row" json:"trade_date"`
	Expiry     string    `gorm:"size:20;not null;index:idx_futures_expiry;uniqueIndex:uidx_futures_row" json:"expiry"`
	Open       *float64  `json:"open"`
	High       *float64  `json:"high"`
	Low        *float64  `json:"low"`
	Close      *float64  `json:"close"`
	Volume     int64     `gorm:"default:0" json:"volume"`
	OI         int64     `gorm:"column:oi;default:0" json:"oi"`
	Settlement *float64  `json:"settlement"`
	Session    string    `gorm:"size:16;not null;default:regular;uniqueIndex:uidx_futures_row" json:"session"`
	LoadFile   string    `json:"load_file"`
	CreatedAt  time.Time `json:"created_at"`
}

func (FutureRaw) TableName() string { return "futures_raw" }

// StockRaw is one daily stock bar.
type StockRaw struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"size:20;not null;index:idx_stocks_symbol;uniqueIndex:uidx_stocks_row" json:"symbol"`
	ChineseName string    `json:"chinese_name"`
	TradeDate   time.Time `gorm:"not null;index:idx_stocks_trade_date;uniqueIndex:uidx_stocks_row" json:"trade_date"`
	Open        *float64  `json:"open"`
	High        *float64  `json:"high"`
	Low         *float64  `json:"low"`
	Close       *float64  `json:"close"`
	Volume      int64     `gorm:"default:0" json:"volume"`
	Value       float64   `gorm:"default:0" json:"value"`
	LoadFile    string    `json:"load_file"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StockRaw) TableName() string { return "stocks_raw" }

// TXODailyQuote is a row of the TAIFEX TXO daily market report.
type TXODailyQuote struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TradeDate        time.Time `gorm:"not null;index:idx_txo_trade_date;uniqueIndex:uidx_txo_row" json:"trade_date"`
	ContractType     string    `gorm:"size:10;not null" json:"contract_type"`
	ExpiryDate       string    `gorm:"size:20;not null;index:idx_txo_expiry_strike,priority:1;uniqueIndex:uidx_txo_row" json:"expiry_date"`
	StrikePrice      float64   `gorm:"not null;index:idx_txo_expiry_strike,priority:2;uniqueIndex:uidx_txo_row" json:"strike_price"`
	OptionType       string    `gorm:"size:10;not null;index:idx_txo_expiry_strike,priority:3;uniqueIndex:uidx_txo_row" json:"option_type"`
	OpenPrice        *float64  `json:"open_price"`
	HighPrice        *float64  `json:"high_price"`
	LowPrice         *float64  `json:"low_price"`
	LastPrice        *float64  `json:"last_price"`
	SettlementPrice  *float64  `json:"settlement_price"`
	ChangePrice      *float64  `json:"change_price"`
	ChangePercent    *float64  `json:"change_percent"`
	AfterHoursVolume *int64    `json:"after_hours_volume"`
	RegularVolume    *int64    `json:"regular_volume"`
	TotalVolume      *int64    `json:"total_volume"`
	OpenInterest     *int64    `json:"open_interest"`
	BestBid          *float64  `json:"best_bid"`
	BestAsk          *float64  `json:"best_ask"`
	HistoricalHigh   *float64  `json:"historical_high"`
	HistoricalLow    *float64  `json:"historical_low"`
	CreatedAt        time.Time `json:"created_at"`
}

func (TXODailyQuote) TableName() string { return "txo_daily_quotes" }

// StockListing is an entry of the downloadable stock master list.
type StockListing struct {
	StockID     string     `gorm:"primaryKey;size:20" json:"stock_id" csv:"stock_id"`
	Name        string     `json:"name" csv:"name"`
	Market      string     `gorm:"size:10" json:"market" csv:"market"`
	Industry    string     `json:"industry" csv:"industry"`
	ListedDate  *time.Time `json:"listed_date" csv:"-"`
	IsActive    bool       `gorm:"default:true" json:"is_active" csv:"is_active"`
	LastUpdated time.Time  `json:"last_updated" csv:"-"`
	DataSource  string     `json:"data_source" csv:"data_source"`
}

func (StockListing) TableName() string { return "stock_list" }

// StockBar is a downloaded price bar for a listed stock.
type StockBar struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StockID   string    `gorm:"size:20;not null;uniqueIndex:uidx_stock_bar" json:"stock_id"`
	Date      time.Time `gorm:"not null;uniqueIndex:uidx_stock_bar" json:"date"`
	Interval  string    `gorm:"size:8;not null;uniqueIndex:uidx_stock_bar" json:"interval"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

func (StockBar) TableName() string { return "stock_bars" }

// DerivativeListing is an entry of the derivative master list.
type DerivativeListing struct {
	Symbol      string     `gorm:"primaryKey;size:20" json:"symbol"`
	Name        string     `json:"name"`
	Type        string     `gorm:"size:16" json:"type"`
	Underlying  string     `json:"underlying"`
	Expiration  *time.Time `json:"expiration"`
	LastUpdated time.Time  `json:"last_updated"`
}

func (DerivativeListing) TableName() string { return "derivatives_list" }

// DerivativeBar is a downloaded price bar for a derivative.
type DerivativeBar struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Symbol       string    `gorm:"size:20;not null;uniqueIndex:uidx_derivative_bar" json:"symbol"`
	Date         time.Time `gorm:"not null;uniqueIndex:uidx_derivative_bar" json:"date"`
	Interval     string    `gorm:"size:8;not null;uniqueIndex:uidx_derivative_bar" json:"interval"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	CreatedAt    time.Time `json:"created_at"`
}

func (DerivativeBar) TableName() string { return "derivative_bars" }

// DownloadLog records the outcome of one price-history download task.
type DownloadLog struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	RunID             string     `gorm:"size:36;index" json:"run_id"`
	TaskType          string     `gorm:"size:16" json:"task_type"`
	Symbol            string     `gorm:"size:20;index" json:"symbol"`
	Interval          string     `gorm:"size:8" json:"interval"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	RecordsDownloaded int        `json:"records_downloaded"`
	Status            string     `gorm:"size:16" json:"status"`
	ErrorMessage      string     `json:"error_message"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (DownloadLog) TableName() string { return "download_log" }

// TableInfo summarises one table for the database info view.
type TableInfo struct {
	Table    string     `json:"table"`
	Rows     int64      `json:"rows"`
	MinDate  *time.Time `json:"min_date,omitempty"`
	MaxDate  *time.Time `json:"max_date,omitempty"`
	Distinct int64      `json:"distinct_keys"`
}
