package oi

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
)

// ATMMethod selects how the at-the-money strike is estimated.
type ATMMethod string

const (
	// ATMMaxOI picks the strike with the largest combined call and put OI.
	ATMMaxOI ATMMethod = "maxoi"
	// ATMMedian picks the median of the strikes carrying any OI.
	ATMMedian ATMMethod = "median"
)

// ParseATMMethod accepts "maxoi" and "median".
func ParseATMMethod(s string) (ATMMethod, error) {
	switch ATMMethod(s) {
	case ATMMaxOI, "":
		return ATMMaxOI, nil
	case ATMMedian:
		return ATMMedian, nil
	}
	return "", fmt.Errorf("unknown ATM method %q (want maxoi or median)", s)
}

// EstimateATM estimates the at-the-money strike from one day's aggregates.
// It reports false when the day carries no OI at all.
func EstimateATM(day []Aggregate, method ATMMethod) (float64, bool) {
	byStrike := make(map[float64]int64)
	for _, a := range day {
		byStrike[a.Strike] += a.OI
	}

	strikes := make([]float64, 0, len(byStrike))
	for s, total := range byStrike {
		if total > 0 {
			strikes = append(strikes, s)
		}
	}
	if len(strikes) == 0 {
		return 0, false
	}
	sort.Float64s(strikes)

	if method == ATMMedian {
		median, err := stats.Median(stats.Float64Data(strikes))
		if err != nil {
			return 0, false
		}
		return median, true
	}

	// ties go to the lowest strike
	best := strikes[0]
	for _, s := range strikes[1:] {
		if byStrike[s] > byStrike[best] {
			best = s
		}
	}
	return best, true
}
