package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/viktsys/twmarket/models"
)

// CompleteDayRows is the row count above which a scraped TXO day is treated
// as already downloaded.
const CompleteDayRows = 1000

// ReplaceTXODay swaps the stored quotes for date with quotes in a single
// transaction.
func (s *Store) ReplaceTXODay(ctx context.Context, date time.Time, quotes []models.TXODailyQuote) (int64, error) {
	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trade_date = ?", date).Delete(&models.TXODailyQuote{}).Error; err != nil {
			return fmt.Errorf("delete %s: %w", date.Format("2006-01-02"), err)
		}
		n, err := insertIgnore(ctx, tx, quotes, s.batchSize)
		if err != nil {
			return fmt.Errorf("insert %s: %w", date.Format("2006-01-02"), err)
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("replace txo day: %w", err)
	}
	return inserted, nil
}

// TXODayComplete reports whether date already holds a full report.
func (s *Store) TXODayComplete(ctx context.Context, date time.Time) (bool, error) {
	var result struct {
		RecordCount int64
		ExpiryCount int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.TXODailyQuote{}).
		Select("COUNT(*) AS record_count, COUNT(DISTINCT expiry_date) AS expiry_count").
		Where("trade_date = ?", date).
		Scan(&result).Error
	if err != nil {
		return false, fmt.Errorf("check txo day: %w", err)
	}
	return result.RecordCount > CompleteDayRows && result.ExpiryCount >= 1, nil
}

func (s *Store) TXODates(ctx context.Context) ([]time.Time, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).
		Model(&models.TXODailyQuote{}).
		Distinct("trade_date").
		Order("trade_date").
		Pluck("trade_date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("txo dates: %w", err)
	}
	return dates, nil
}

// TXOChain returns the option chain of a day, optionally for one expiry.
func (s *Store) TXOChain(ctx context.Context, date time.Time, expiry string) ([]models.TXODailyQuote, error) {
	q := s.db.WithContext(ctx).Where("trade_date = ?", date)
	if expiry != "" {
		q = q.Where("expiry_date = ?", expiry)
	}

	var quotes []models.TXODailyQuote
	if err := q.Order("strike_price, option_type").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("txo chain: %w", err)
	}
	return quotes, nil
}

type TXOVolumeSummary struct {
	OptionType        string `json:"option_type"`
	TotalVolume       int64  `json:"total_volume"`
	TotalOpenInterest int64  `json:"total_open_interest"`
	ContractCount     int64  `json:"contract_count"`
}

// TXOVolumeByType sums volume and open interest per option type for a day.
func (s *Store) TXOVolumeByType(ctx context.Context, date time.Time) ([]TXOVolumeSummary, error) {
	var out []TXOVolumeSummary
	err := s.db.WithContext(ctx).
		Model(&models.TXODailyQuote{}).
		Select(`option_type,
			COALESCE(SUM(total_volume), 0) AS total_volume,
			COALESCE(SUM(open_interest), 0) AS total_open_interest,
			COUNT(*) AS contract_count`).
		Where("trade_date = ?", date).
		Group("option_type").
		Order("option_type").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("txo volume: %w", err)
	}
	return out, nil
}
