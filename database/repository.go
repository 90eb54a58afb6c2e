package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viktsys/twmarket/models"
)

var ErrNoData = errors.New("no data")

// insertIgnore writes rows in batches and skips rows whose natural key
// already exists. It returns the number of rows actually inserted.
func insertIgnore[T any](ctx context.Context, db *gorm.DB, rows []T, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *Store) InsertOptions(ctx context.Context, rows []models.OptionRaw) (int64, error) {
	n, err := insertIgnore(ctx, s.db, rows, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("insert options: %w", err)
	}
	return n, nil
}

func (s *Store) InsertFutures(ctx context.Context, rows []models.FutureRaw) (int64, error) {
	n, err := insertIgnore(ctx, s.db, rows, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("insert futures: %w", err)
	}
	return n, nil
}

func (s *Store) InsertStocks(ctx context.Context, rows []models.StockRaw) (int64, error) {
	n, err := insertIgnore(ctx, s.db, rows, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("insert stocks: %w", err)
	}
	return n, nil
}

// OptionFilter narrows option queries; zero fields are ignored.
type OptionFilter struct {
	Product string
	Expiry  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

func (s *Store) QueryOptions(ctx context.Context, f OptionFilter) ([]models.OptionRaw, error) {
	q := s.db.WithContext(ctx).Model(&models.OptionRaw{})
	if f.Product != "" {
		q = q.Where("product = ?", f.Product)
	}
	if f.Expiry != "" {
		q = q.Where("expiry = ?", f.Expiry)
	}
	q = dateRange(q, "trade_date", f.From, f.To)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []models.OptionRaw
	if err := q.Order("trade_date, strike, cp").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	return rows, nil
}

type FutureFilter struct {
	Product string
	From    *time.Time
	To      *time.Time
	Limit   int
}

func (s *Store) QueryFutures(ctx context.Context, f FutureFilter) ([]models.FutureRaw, error) {
	q := s.db.WithContext(ctx).Model(&models.FutureRaw{})
	if f.Product != "" {
		q = q.Where("product = ?", f.Product)
	}
	q = dateRange(q, "trade_date", f.From, f.To)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []models.FutureRaw
	if err := q.Order("trade_date, expiry").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query futures: %w", err)
	}
	return rows, nil
}

type StockFilter struct {
	Symbol string
	From   *time.Time
	To     *time.Time
	Limit  int
}

func (s *Store) QueryStocks(ctx context.Context, f StockFilter) ([]models.StockRaw, error) {
	q := s.db.WithContext(ctx).Model(&models.StockRaw{})
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	q = dateRange(q, "trade_date", f.From, f.To)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []models.StockRaw
	if err := q.Order("symbol, trade_date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	return rows, nil
}

// LatestOptionDate returns the most recent trade date stored for product.
func (s *Store) LatestOptionDate(ctx context.Context, product string) (time.Time, error) {
	var row models.OptionRaw
	err := s.db.WithContext(ctx).
		Where("product = ?", product).
		Order("trade_date DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("latest option date: %w", err)
	}
	if row.ID == 0 {
		return time.Time{}, fmt.Errorf("options for %s: %w", product, ErrNoData)
	}
	return row.TradeDate, nil
}

func dateRange(q *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where(column+" >= ?", *from)
	}
	if to != nil {
		q = q.Where(column+" <= ?", *to)
	}
	return q
}
