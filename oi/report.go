package oi

import (
	"sort"
	"time"

	"github.com/viktsys/twmarket/normalize"
)

// Mover is one contract ranked by its OI change.
type Mover struct {
	Strike float64 `json:"strike"`
	CP     string  `json:"cp"`
	OI     int64   `json:"oi"`
	Delta  int64   `json:"delta"`
}

// StrikeOI is the contract with the largest OI on one side.
type StrikeOI struct {
	Strike float64 `json:"strike"`
	OI     int64   `json:"oi"`
}

// DayReport summarises one trading day.
type DayReport struct {
	Date           time.Time `json:"date"`
	Contracts      int       `json:"contracts"`
	ATM            float64   `json:"atm"`
	HasATM         bool      `json:"has_atm"`
	MaxCall        *StrikeOI `json:"max_call,omitempty"`
	MaxPut         *StrikeOI `json:"max_put,omitempty"`
	TopIncrease1   []Mover   `json:"top_increase_1"`
	TopDecrease1   []Mover   `json:"top_decrease_1"`
	TopIncrease2   []Mover   `json:"top_increase_2"`
	TopDecrease2   []Mover   `json:"top_decrease_2"`
	Anomalies      []Anomaly `json:"anomalies"`
	TotalCallOI    int64     `json:"total_call_oi"`
	TotalPutOI     int64     `json:"total_put_oi"`
	PutCallOIRatio float64   `json:"put_call_oi_ratio"`
}

const topMovers = 3

// Report builds the day report for day from aggregates of a date range.
func Report(aggs []Aggregate, day time.Time, p Params) DayReport {
	day = normalize.Day(day)
	today := OnDate(aggs, day)
	r := DayReport{Date: day, Contracts: len(today)}
	if len(today) == 0 {
		return r
	}

	r.ATM, r.HasATM = EstimateATM(today, p.ATM)
	r.MaxCall = maxOI(today, normalize.Call)
	r.MaxPut = maxOI(today, normalize.Put)

	delta1 := func(a Aggregate) int64 { return a.Delta1 }
	delta2 := func(a Aggregate) int64 { return a.Delta2 }
	r.TopIncrease1, r.TopDecrease1 = movers(today, delta1)
	r.TopIncrease2, r.TopDecrease2 = movers(today, delta2)

	for _, a := range today {
		switch a.CP {
		case normalize.Call:
			r.TotalCallOI += a.OI
		case normalize.Put:
			r.TotalPutOI += a.OI
		}
	}
	if r.TotalCallOI > 0 {
		r.PutCallOIRatio = float64(r.TotalPutOI) / float64(r.TotalCallOI)
	}

	r.Anomalies = Detect(aggs, day, p)
	return r
}

func maxOI(day []Aggregate, cp string) *StrikeOI {
	var best *StrikeOI
	for _, a := range day {
		if a.CP != cp {
			continue
		}
		if best == nil || a.OI > best.OI {
			best = &StrikeOI{Strike: a.Strike, OI: a.OI}
		}
	}
	return best
}

// movers returns the largest positive changes, descending, and the largest
// negative changes, most negative first.
func movers(day []Aggregate, delta func(Aggregate) int64) (inc, dec []Mover) {
	for _, a := range day {
		m := Mover{Strike: a.Strike, CP: a.CP, OI: a.OI, Delta: delta(a)}
		switch {
		case m.Delta > 0:
			inc = append(inc, m)
		case m.Delta < 0:
			dec = append(dec, m)
		}
	}
	sort.SliceStable(inc, func(i, j int) bool { return inc[i].Delta > inc[j].Delta })
	sort.SliceStable(dec, func(i, j int) bool { return dec[i].Delta < dec[j].Delta })
	if len(inc) > topMovers {
		inc = inc[:topMovers]
	}
	if len(dec) > topMovers {
		dec = dec[:topMovers]
	}
	return inc, dec
}

// DefaultRange is the 30 calendar days ending at latest.
func DefaultRange(latest time.Time) (from, to time.Time) {
	to = normalize.Day(latest)
	return to.AddDate(0, 0, -29), to
}
