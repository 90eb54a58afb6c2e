// Package oi aggregates option open interest per contract and day and flags
// unusual day-over-day changes.
package oi

import (
	"sort"
	"strings"
	"time"

	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

// Observation is one option row as stored or loaded from a CSV export.
type Observation struct {
	Date    time.Time
	Strike  float64
	CP      string
	OI      *int64
	RawText string
	Session string
}

// FromOptions converts stored option rows.
func FromOptions(rows []models.OptionRaw) []Observation {
	out := make([]Observation, len(rows))
	for i, r := range rows {
		out[i] = Observation{
			Date:    r.TradeDate,
			Strike:  r.Strike,
			CP:      r.CP,
			OI:      r.OI,
			RawText: r.RawOIText,
			Session: r.Session,
		}
	}
	return out
}

// Aggregate is the summed OI of one contract on one day together with the
// OI of the two previous sessions of the same contract.
type Aggregate struct {
	Date   time.Time
	Strike float64
	CP     string
	OI     int64
	RawOI  string
	Prev1  int64
	Prev2  int64
	Delta1 int64
	Delta2 int64
}

// FilterSession keeps regular-session rows when there are any. A row without
// a session label is regular: normalize.Session maps blank and unknown labels
// to the regular session, so only an explicit after-hours label excludes it.
func FilterSession(obs []Observation) []Observation {
	var regular []Observation
	for _, o := range obs {
		if o.Session == "" || o.Session == normalize.SessionRegular {
			regular = append(regular, o)
		}
	}
	if len(regular) == 0 {
		return obs
	}
	return regular
}

type contractDay struct {
	date   time.Time
	strike float64
	cp     string
}

// AggregateDaily sums OI per (date, strike, cp) after the session filter and
// computes prev1/prev2 and the deltas per contract. The result is sorted by
// strike, cp and date.
func AggregateDaily(obs []Observation) []Aggregate {
	obs = FilterSession(obs)

	index := make(map[contractDay]int)
	var aggs []Aggregate
	var raws [][]string

	for _, o := range obs {
		key := contractDay{date: normalize.Day(o.Date), strike: o.Strike, cp: o.CP}
		i, ok := index[key]
		if !ok {
			i = len(aggs)
			index[key] = i
			aggs = append(aggs, Aggregate{Date: key.date, Strike: key.strike, CP: key.cp})
			raws = append(raws, nil)
		}
		if o.OI != nil {
			aggs[i].OI += *o.OI
		}
		raws[i] = append(raws[i], o.RawText)
	}
	for i := range aggs {
		aggs[i].RawOI = strings.Join(raws[i], "|")
	}

	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		if a.CP != b.CP {
			return a.CP < b.CP
		}
		return a.Date.Before(b.Date)
	})

	for i := range aggs {
		if i >= 1 && sameContract(aggs[i], aggs[i-1]) {
			aggs[i].Prev1 = aggs[i-1].OI
		}
		if i >= 2 && sameContract(aggs[i], aggs[i-2]) {
			aggs[i].Prev2 = aggs[i-2].OI
		}
		aggs[i].Delta1 = aggs[i].OI - aggs[i].Prev1
		aggs[i].Delta2 = aggs[i].OI - aggs[i].Prev2
	}
	return aggs
}

func sameContract(a, b Aggregate) bool {
	return a.Strike == b.Strike && a.CP == b.CP
}

// Dates lists the distinct days in aggs, oldest first.
func Dates(aggs []Aggregate) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, a := range aggs {
		if _, ok := seen[a.Date]; ok {
			continue
		}
		seen[a.Date] = struct{}{}
		out = append(out, a.Date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// OnDate returns the aggregates of one day.
func OnDate(aggs []Aggregate, day time.Time) []Aggregate {
	day = normalize.Day(day)
	var out []Aggregate
	for _, a := range aggs {
		if a.Date.Equal(day) {
			out = append(out, a)
		}
	}
	return out
}

// Strikes lists the distinct strikes in aggs in ascending order.
func Strikes(aggs []Aggregate) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, a := range aggs {
		if _, ok := seen[a.Strike]; ok {
			continue
		}
		seen[a.Strike] = struct{}{}
		out = append(out, a.Strike)
	}
	sort.Float64s(out)
	return out
}
