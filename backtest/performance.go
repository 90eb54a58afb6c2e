package backtest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// InitialEquity is the account size every equity curve starts from.
const InitialEquity = 100000

// Performance scores a strategy's closed trades. Money values are computed
// with decimals and reported as floats.
type Performance struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalProfit   float64
	TotalLoss     float64
	// ProfitFactor is +Inf when there are no losing trades.
	ProfitFactor float64
	MaxDrawdown  float64
	FinalEquity  float64
	TotalReturn  float64
	Equity       []float64
	PnL          []float64
}

// NetPnL is the points won on a long trade less commission on both fills.
func NetPnL(t Trade, commission float64) decimal.Decimal {
	entry := decimal.NewFromFloat(t.EntryPrice)
	exit := decimal.NewFromFloat(t.ExitPrice)
	cost := entry.Add(exit).Mul(decimal.NewFromFloat(commission))
	return exit.Sub(entry).Sub(cost)
}

// Evaluate returns nil when there are no trades.
func Evaluate(trades []Trade, commission float64) *Performance {
	if len(trades) == 0 {
		return nil
	}

	equity := decimal.NewFromInt(InitialEquity)
	profit, loss := decimal.Zero, decimal.Zero
	perf := &Performance{
		TotalTrades: len(trades),
		Equity:      []float64{InitialEquity},
		PnL:         make([]float64, 0, len(trades)),
	}

	for _, t := range trades {
		pnl := NetPnL(t, commission)
		equity = equity.Add(pnl)

		switch pnl.Sign() {
		case 1:
			perf.WinningTrades++
			profit = profit.Add(pnl)
		case -1:
			perf.LosingTrades++
			loss = loss.Add(pnl.Abs())
		}
		perf.PnL = append(perf.PnL, pnl.InexactFloat64())
		perf.Equity = append(perf.Equity, equity.InexactFloat64())
	}

	perf.WinRate = float64(perf.WinningTrades) / float64(perf.TotalTrades)
	perf.TotalProfit = profit.InexactFloat64()
	perf.TotalLoss = loss.InexactFloat64()
	if loss.IsZero() {
		perf.ProfitFactor = math.Inf(1)
	} else {
		perf.ProfitFactor = profit.Div(loss).InexactFloat64()
	}
	perf.MaxDrawdown = MaxDrawdown(perf.Equity)
	perf.FinalEquity = equity.InexactFloat64()
	initial := decimal.NewFromInt(InitialEquity)
	perf.TotalReturn = equity.Sub(initial).Div(initial).InexactFloat64()
	return perf
}

// MaxDrawdown is the largest fall from a running peak, as a fraction of
// that peak.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var maxDD float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Rank orders results that traded by total return, best first, and keeps
// the first n (all when n <= 0).
func Rank(results []Result, n int) []Result {
	var ranked []Result
	for _, r := range results {
		if r.Performance != nil {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Performance.TotalReturn > ranked[j].Performance.TotalReturn
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
