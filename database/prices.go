package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm/clause"

	"github.com/viktsys/twmarket/models"
)

// UpsertStockListings writes the stock master list, refreshing known entries.
func (s *Store) UpsertStockListings(ctx context.Context, listings []models.StockListing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&listings, s.batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert stock list: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) StockListings(ctx context.Context, activeOnly bool) ([]models.StockListing, error) {
	q := s.db.WithContext(ctx).Order("stock_id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.StockListing
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("stock list: %w", err)
	}
	return out, nil
}

func (s *Store) DerivativeListings(ctx context.Context, kind string) ([]models.DerivativeListing, error) {
	q := s.db.WithContext(ctx).Order("symbol")
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	var out []models.DerivativeListing
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("derivatives list: %w", err)
	}
	return out, nil
}

func (s *Store) InsertStockBars(ctx context.Context, bars []models.StockBar) (int64, error) {
	n, err := insertIgnore(ctx, s.db, bars, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("insert stock bars: %w", err)
	}
	return n, nil
}

func (s *Store) InsertDerivativeBars(ctx context.Context, bars []models.DerivativeBar) (int64, error) {
	n, err := insertIgnore(ctx, s.db, bars, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("insert derivative bars: %w", err)
	}
	return n, nil
}

// BarKind selects the stock or derivative bar table.
type BarKind string

const (
	StockBars      BarKind = "stock"
	DerivativeBars BarKind = "derivative"
)

func (k BarKind) table() (string, string) {
	if k == DerivativeBars {
		return "derivative_bars", "symbol"
	}
	return "stock_bars", "stock_id"
}

// BarDates returns the stored bar timestamps of symbol at interval, oldest
// first.
func (s *Store) BarDates(ctx context.Context, kind BarKind, symbol, interval string) ([]time.Time, error) {
	table, key := kind.table()

	var dates []time.Time
	err := s.db.WithContext(ctx).
		Table(table).
		Where(key+" = ? AND interval = ?", symbol, interval).
		Order("date").
		Pluck("date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("bar dates %s %s: %w", symbol, interval, err)
	}
	return dates, nil
}

// Coverage summarises what is stored for one symbol and interval.
type Coverage struct {
	Years  []int
	Latest *time.Time
	Bars   int
}

// BarCoverage reports the distinct calendar years and the latest stored bar.
func (s *Store) BarCoverage(ctx context.Context, kind BarKind, symbol, interval string) (Coverage, error) {
	dates, err := s.BarDates(ctx, kind, symbol, interval)
	if err != nil {
		return Coverage{}, err
	}

	cov := Coverage{Bars: len(dates)}
	seen := make(map[int]struct{})
	for _, d := range dates {
		seen[d.Year()] = struct{}{}
	}
	for y := range seen {
		cov.Years = append(cov.Years, y)
	}
	sort.Ints(cov.Years)
	if n := len(dates); n > 0 {
		latest := dates[n-1]
		cov.Latest = &latest
	}
	return cov, nil
}

// BarRow is a stored candle of either bar table.
type BarRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Bars returns the stored candles of symbol at interval, oldest first.
func (s *Store) Bars(ctx context.Context, kind BarKind, symbol, interval string) ([]BarRow, error) {
	table, key := kind.table()

	var rows []BarRow
	err := s.db.WithContext(ctx).
		Table(table).
		Select("date, open, high, low, close, volume").
		Where(key+" = ? AND interval = ?", symbol, interval).
		Order("date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, interval, err)
	}
	return rows, nil
}

func (s *Store) LogDownload(ctx context.Context, entry *models.DownloadLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("log download: %w", err)
	}
	return nil
}

func (s *Store) DownloadLogs(ctx context.Context, limit int) ([]models.DownloadLog, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.DownloadLog
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("download log: %w", err)
	}
	return out, nil
}
