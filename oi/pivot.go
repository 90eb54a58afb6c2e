package oi

import (
	"fmt"
	"strconv"
	"time"
)

// PivotValue selects what a pivot cell holds.
type PivotValue string

const (
	PivotOI    PivotValue = "oi"
	PivotDelta PivotValue = "delta"
)

func ParsePivotValue(s string) (PivotValue, error) {
	switch PivotValue(s) {
	case PivotOI, "":
		return PivotOI, nil
	case PivotDelta:
		return PivotDelta, nil
	}
	return "", fmt.Errorf("unknown pivot value %q (want oi or delta)", s)
}

// Pivot is a strike by date matrix with calls and puts summed per cell.
// Missing cells are 0.
type Pivot struct {
	Strikes []float64
	Dates   []time.Time
	Cells   [][]int64
}

// BuildPivot pivots aggs. When days > 0 only the most recent days are kept.
func BuildPivot(aggs []Aggregate, value PivotValue, days int) Pivot {
	dates := Dates(aggs)
	if days > 0 && len(dates) > days {
		dates = dates[len(dates)-days:]
	}
	col := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		col[d] = i
	}

	var kept []Aggregate
	for _, a := range aggs {
		if _, ok := col[a.Date]; ok {
			kept = append(kept, a)
		}
	}
	strikes := Strikes(kept)
	row := make(map[float64]int, len(strikes))
	for i, s := range strikes {
		row[s] = i
	}

	cells := make([][]int64, len(strikes))
	for i := range cells {
		cells[i] = make([]int64, len(dates))
	}
	for _, a := range kept {
		v := a.OI
		if value == PivotDelta {
			v = a.Delta1
		}
		cells[row[a.Strike]][col[a.Date]] += v
	}
	return Pivot{Strikes: strikes, Dates: dates, Cells: cells}
}

// Records renders the pivot as a header row plus one row per strike.
func (p Pivot) Records() [][]string {
	header := make([]string, 0, len(p.Dates)+1)
	header = append(header, "strike")
	for _, d := range p.Dates {
		header = append(header, d.Format("2006-01-02"))
	}

	out := [][]string{header}
	for i, s := range p.Strikes {
		rec := make([]string, 0, len(p.Dates)+1)
		rec = append(rec, strconv.FormatFloat(s, 'f', -1, 64))
		for _, v := range p.Cells[i] {
			rec = append(rec, strconv.FormatInt(v, 10))
		}
		out = append(out, rec)
	}
	return out
}
