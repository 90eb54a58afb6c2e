package oi

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/viktsys/twmarket/normalize"
)

// Level grades the size of a one-session OI change.
type Level int

const (
	LevelNone Level = iota
	LevelLarge
	LevelMajor
	LevelExtreme
)

// Fixed |delta_1| thresholds.
const (
	LargeOrderThreshold = 400
	MajorThreshold      = 800
	ExtremeThreshold    = 1200
)

var levelRules = []struct {
	min   int64
	level Level
}{
	{ExtremeThreshold, LevelExtreme},
	{MajorThreshold, LevelMajor},
	{LargeOrderThreshold, LevelLarge},
}

// ClassifyDelta maps a change to its level. The sign is ignored.
func ClassifyDelta(delta int64) Level {
	abs := absInt(delta)
	for _, r := range levelRules {
		if abs >= r.min {
			return r.level
		}
	}
	return LevelNone
}

func (l Level) String() string {
	switch l {
	case LevelLarge:
		return "大單"
	case LevelMajor:
		return "重大"
	case LevelExtreme:
		return "極端"
	}
	return ""
}

const (
	labelRelative = "相對異常"
	labelRemote   = "遠端大單"
)

// Params tune anomaly detection.
type Params struct {
	ATM           ATMMethod
	WindowStrikes int
	StrikeStep    float64
	TopN          int
	// Lookback is how many prior sessions feed the relative baseline.
	Lookback int
	// RelativeFactor multiplies the baseline mean.
	RelativeFactor float64
}

func DefaultParams() Params {
	return Params{
		ATM:            ATMMaxOI,
		WindowStrikes:  10,
		StrikeStep:     100,
		TopN:           10,
		Lookback:       5,
		RelativeFactor: 3,
	}
}

// Window is the distance from ATM beyond which a strike counts as remote.
func (p Params) Window() float64 {
	return float64(p.WindowStrikes) * p.StrikeStep
}

// Anomaly is a contract whose OI change on a day tripped at least one rule.
type Anomaly struct {
	Date     time.Time `json:"date"`
	Strike   float64   `json:"strike"`
	CP       string    `json:"cp"`
	OI       int64     `json:"oi"`
	Delta1   int64     `json:"delta_1"`
	Abs      int64     `json:"abs_delta"`
	Level    Level     `json:"-"`
	Relative bool      `json:"relative"`
	Remote   bool      `json:"remote"`
	Label    string    `json:"label"`
	// Baseline is the mean |delta_1| of the prior sessions, 0 when unknown.
	Baseline float64 `json:"baseline"`
}

// Detect flags the contracts of one day. aggs must come from
// AggregateDaily; history before the day feeds the relative rule.
func Detect(aggs []Aggregate, day time.Time, p Params) []Anomaly {
	day = normalize.Day(day)
	today := OnDate(aggs, day)
	if len(today) == 0 {
		return nil
	}
	atm, haveATM := EstimateATM(today, p.ATM)
	history := priorDeltas(aggs, day)

	var out []Anomaly
	for _, a := range today {
		abs := absInt(a.Delta1)
		an := Anomaly{
			Date:   a.Date,
			Strike: a.Strike,
			CP:     a.CP,
			OI:     a.OI,
			Delta1: a.Delta1,
			Abs:    abs,
			Level:  ClassifyDelta(a.Delta1),
		}

		prior := history[contractKey{a.Strike, a.CP}]
		if n := len(prior); n > 0 {
			if n > p.Lookback && p.Lookback > 0 {
				prior = prior[n-p.Lookback:]
			}
			mean, err := stats.Mean(prior)
			if err == nil && mean > 0 {
				an.Baseline = mean
				an.Relative = float64(abs) > p.RelativeFactor*mean
			}
		}

		if haveATM {
			an.Remote = math.Abs(a.Strike-atm) > p.Window() && abs >= LargeOrderThreshold
		}

		switch {
		case an.Level != LevelNone:
			an.Label = an.Level.String()
		case an.Relative:
			an.Label = labelRelative
		case an.Remote:
			an.Label = labelRemote
		default:
			continue
		}
		out = append(out, an)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Abs > out[j].Abs })
	if p.TopN > 0 && len(out) > p.TopN {
		out = out[:p.TopN]
	}
	return out
}

type contractKey struct {
	strike float64
	cp     string
}

// priorDeltas collects |delta_1| per contract for sessions before day, in
// date order.
func priorDeltas(aggs []Aggregate, day time.Time) map[contractKey]stats.Float64Data {
	sorted := make([]Aggregate, 0, len(aggs))
	for _, a := range aggs {
		if a.Date.Before(day) {
			sorted = append(sorted, a)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make(map[contractKey]stats.Float64Data)
	for _, a := range sorted {
		k := contractKey{a.Strike, a.CP}
		out[k] = append(out[k], float64(absInt(a.Delta1)))
	}
	return out
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
