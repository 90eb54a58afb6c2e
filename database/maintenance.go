package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viktsys/twmarket/models"
)

var ErrUnknownTable = errors.New("unknown table")

type tableSpec struct {
	model      interface{}
	dateColumn string
	keyColumn  string
	order      string
}

var tables = map[string]tableSpec{
	"options_raw":      {&models.OptionRaw{}, "trade_date", "product", "trade_date, product, expiry, strike, cp"},
	"futures_raw":      {&models.FutureRaw{}, "trade_date", "product", "trade_date, product, expiry"},
	"stocks_raw":       {&models.StockRaw{}, "trade_date", "symbol", "symbol, trade_date"},
	"txo_daily_quotes": {&models.TXODailyQuote{}, "trade_date", "expiry_date", "trade_date, expiry_date, strike_price, option_type"},
	"stock_list":       {&models.StockListing{}, "", "market", "stock_id"},
	"stock_bars":       {&models.StockBar{}, "date", "stock_id", "stock_id, interval, date"},
	"derivatives_list": {&models.DerivativeListing{}, "", "type", "symbol"},
	"derivative_bars":  {&models.DerivativeBar{}, "date", "symbol", "symbol, interval, date"},
	"download_log":     {&models.DownloadLog{}, "created_at", "run_id", "id"},
}

// Tables lists the managed table names in alphabetical order.
func Tables() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%q: %w", table, ErrUnknownTable)
	}
	return spec, nil
}

// Info reports row counts, date coverage and distinct key counts per table.
func (s *Store) Info(ctx context.Context) ([]models.TableInfo, error) {
	out := make([]models.TableInfo, 0, len(tables))
	for _, name := range Tables() {
		info, err := s.tableInfo(ctx, name, tables[name])
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *Store) tableInfo(ctx context.Context, name string, spec tableSpec) (models.TableInfo, error) {
	info := models.TableInfo{Table: name}
	db := s.db.WithContext(ctx)

	if err := db.Model(spec.model).Count(&info.Rows).Error; err != nil {
		return info, fmt.Errorf("count %s: %w", name, err)
	}
	if err := db.Model(spec.model).Distinct(spec.keyColumn).Count(&info.Distinct).Error; err != nil {
		return info, fmt.Errorf("distinct %s.%s: %w", name, spec.keyColumn, err)
	}

	if spec.dateColumn == "" || info.Rows == 0 {
		return info, nil
	}

	var first, last []time.Time
	if err := db.Model(spec.model).Order(spec.dateColumn).Limit(1).Pluck(spec.dateColumn, &first).Error; err != nil {
		return info, fmt.Errorf("min date %s: %w", name, err)
	}
	if err := db.Model(spec.model).Order(spec.dateColumn + " DESC").Limit(1).Pluck(spec.dateColumn, &last).Error; err != nil {
		return info, fmt.Errorf("max date %s: %w", name, err)
	}
	if len(first) == 1 {
		info.MinDate = &first[0]
	}
	if len(last) == 1 {
		info.MaxDate = &last[0]
	}
	return info, nil
}

// Filter is a column equality condition for maintenance queries.
type Filter struct {
	Column string
	Value  string
}

// ParseFilters turns "column=value" terms into filters.
func ParseFilters(terms []string) ([]Filter, error) {
	filters := make([]Filter, 0, len(terms))
	for _, term := range terms {
		col, val, ok := strings.Cut(term, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid filter %q, want column=value", term)
		}
		filters = append(filters, Filter{Column: col, Value: strings.TrimSpace(val)})
	}
	return filters, nil
}

func (s *Store) applyFilters(q *gorm.DB, table string, spec tableSpec, filters []Filter) (*gorm.DB, error) {
	for _, f := range filters {
		if !s.db.Migrator().HasColumn(spec.model, f.Column) {
			return nil, fmt.Errorf("table %s has no column %q", table, f.Column)
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: filterValue(f.Column, spec, f.Value)})
	}
	return q, nil
}

func filterValue(column string, spec tableSpec, raw string) interface{} {
	if column == spec.dateColumn || column == "trade_date" || column == "date" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return raw
}

// Delete removes the rows of table matching every filter. At least one
// filter is required; use Truncate to empty a table.
func (s *Store) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	spec, err := lookup(table)
	if err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete from %s: at least one filter is required", table)
	}

	q, err := s.applyFilters(s.db.WithContext(ctx), table, spec, filters)
	if err != nil {
		return 0, err
	}
	result := q.Delete(spec.model)
	if result.Error != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, result.Error)
	}
	s.log.WithField("table", table).Infof("deleted %d rows", result.RowsAffected)
	return result.RowsAffected, nil
}

// Truncate removes every row of table.
func (s *Store) Truncate(ctx context.Context, table string) (int64, error) {
	spec, err := lookup(table)
	if err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(spec.model)
	if result.Error != nil {
		return 0, fmt.Errorf("truncate %s: %w", table, result.Error)
	}
	s.log.WithField("table", table).Warnf("truncated %d rows", result.RowsAffected)
	return result.RowsAffected, nil
}

// TableRows reads a table as ordered column names and stringified cells.
func (s *Store) TableRows(ctx context.Context, table string, filters []Filter, limit int) ([]string, [][]string, error) {
	spec, err := lookup(table)
	if err != nil {
		return nil, nil, err
	}

	q, err := s.applyFilters(s.db.WithContext(ctx).Table(table), table, spec, filters)
	if err != nil {
		return nil, nil, err
	}
	q = q.Order(spec.order)
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows, err := q.Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns %s: %w", table, err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", table, err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = cellString(v)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", table, err)
	}
	return columns, out, nil
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
