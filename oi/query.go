package oi

import (
	"context"
	"time"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

// OptionStore is the part of the store the OI views read.
type OptionStore interface {
	QueryOptions(ctx context.Context, f database.OptionFilter) ([]models.OptionRaw, error)
	LatestOptionDate(ctx context.Context, product string) (time.Time, error)
}

// Query selects the stored options an OI view is computed from. A nil Date
// means the latest stored day; a nil From/To means the 30 days ending at
// Date.
type Query struct {
	Product string
	Date    *time.Time
	From    *time.Time
	To      *time.Time
}

// Resolve fills the report day and the date range.
func (q Query) Resolve(ctx context.Context, store OptionStore) (day, from, to time.Time, err error) {
	if q.Date != nil {
		day = normalize.Day(*q.Date)
	} else {
		day, err = store.LatestOptionDate(ctx, q.Product)
		if err != nil {
			return day, from, to, err
		}
		day = normalize.Day(day)
	}

	from, to = DefaultRange(day)
	if q.From != nil {
		from = normalize.Day(*q.From)
	}
	if q.To != nil {
		to = normalize.Day(*q.To)
	}
	if day.After(to) {
		to = day
	}
	return day, from, to, nil
}

// Load reads and aggregates the options of the resolved range.
func Load(ctx context.Context, store OptionStore, q Query) (time.Time, []Aggregate, error) {
	day, from, to, err := q.Resolve(ctx, store)
	if err != nil {
		return day, nil, err
	}
	rows, err := store.QueryOptions(ctx, database.OptionFilter{Product: q.Product, From: &from, To: &to})
	if err != nil {
		return day, nil, err
	}
	return day, AggregateDaily(FromOptions(rows)), nil
}

// BuildReport loads the range around the report day and summarises it.
func BuildReport(ctx context.Context, store OptionStore, q Query, p Params) (DayReport, error) {
	day, aggs, err := Load(ctx, store, q)
	if err != nil {
		return DayReport{}, err
	}
	return Report(aggs, day, p), nil
}
