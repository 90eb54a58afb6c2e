package backtest

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Indicators holds one value per bar for every series the strategies read.
// Rolling-window series are NaN until their window is full, so every
// comparison against them is false. Exponential series start at the first bar.
type Indicators struct {
	EMA12, EMA20, EMA26, EMA50 []float64
	SMA5, SMA10, SMA20, SMA50  []float64
	MACD, MACDSignal, MACDHist []float64
	RSI                        []float64
	K, D                       []float64
	BBUpper, BBMiddle, BBLower []float64
	ATR                        []float64
	VolumeMA20, VolumeMA50     []float64
	Momentum                   []float64
}

const (
	macdSignal = 9
	rsiPeriod  = 14
	kdPeriod   = 9
	kdSmooth   = 3
	bbPeriod   = 20
	bbWidth    = 2.0
	atrPeriod  = 14
	momPeriod  = 5
)

// Compute derives the indicator set from bars.
func Compute(bars []Bar) Indicators {
	n := len(bars)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		high[i], low[i], closes[i], volume[i] = b.High, b.Low, b.Close, b.Volume
	}

	sma := func(in []float64, period int) []float64 {
		return series(n, period-1, func() []float64 { return talib.Sma(in, period) })
	}

	ind := Indicators{
		EMA12:      ewm(closes, 12),
		EMA20:      ewm(closes, 20),
		EMA26:      ewm(closes, 26),
		EMA50:      ewm(closes, 50),
		SMA5:       sma(closes, 5),
		SMA10:      sma(closes, 10),
		SMA20:      sma(closes, 20),
		SMA50:      sma(closes, 50),
		VolumeMA20: sma(volume, 20),
		VolumeMA50: sma(volume, 50),
		RSI:        rsi(closes, rsiPeriod),
		ATR:        ewm(trueRange(high, low, closes), atrPeriod),
		Momentum:   series(n, momPeriod, func() []float64 { return talib.Mom(closes, momPeriod) }),
	}

	ind.MACD = make([]float64, n)
	for i := range n {
		ind.MACD[i] = ind.EMA12[i] - ind.EMA26[i]
	}
	ind.MACDSignal = ewm(ind.MACD, macdSignal)
	ind.MACDHist = make([]float64, n)
	for i := range n {
		ind.MACDHist[i] = ind.MACD[i] - ind.MACDSignal[i]
	}

	kdLookback := kdPeriod - 1 + kdSmooth - 1
	if n > kdLookback {
		k, d := talib.StochF(high, low, closes, kdPeriod, kdSmooth, talib.SMA)
		ind.K = warm(k, kdLookback)
		ind.D = warm(d, kdLookback)
	} else {
		ind.K, ind.D = nans(n), nans(n)
	}

	if n > bbPeriod-1 {
		upper, middle, lower := talib.BBands(closes, bbPeriod, bbWidth, bbWidth, talib.SMA)
		ind.BBUpper = warm(upper, bbPeriod-1)
		ind.BBMiddle = warm(middle, bbPeriod-1)
		ind.BBLower = warm(lower, bbPeriod-1)
	} else {
		ind.BBUpper, ind.BBMiddle, ind.BBLower = nans(n), nans(n), nans(n)
	}

	return ind
}

// ewm is the bias-corrected exponential mean with alpha 2/(span+1): bar t is
// the weighted mean of bars 0..t with weights (1-alpha)^age. A constant input
// yields exactly that constant.
func ewm(in []float64, span int) []float64 {
	out := make([]float64, len(in))
	decay := 1 - 2/float64(span+1)
	var mean, weight float64
	for i, x := range in {
		weight = 1 + decay*weight
		mean += (x - mean) / weight
		out[i] = mean
	}
	return out
}

// rsi averages gains and losses of the close-to-close changes over a plain
// rolling window. The first period bars have no full window of changes.
func rsi(closes []float64, period int) []float64 {
	n := len(closes)
	if n <= period {
		return nans(n)
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		if d := closes[i] - closes[i-1]; d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := talib.Sma(gains, period)
	avgLoss := talib.Sma(losses, period)

	out := nans(n)
	for i := period; i < n; i++ {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case l == 0 && g == 0:
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// trueRange is the widest of high-low and the gaps to the previous close.
// The first bar has no previous close and uses high-low.
func trueRange(high, low, closes []float64) []float64 {
	n := len(closes)
	if n == 0 {
		return nil
	}
	out := talib.TRange(high, low, closes)
	out[0] = high[0] - low[0]
	return out
}

// series runs fn only when there are enough bars to fill the warm-up window.
func series(n, lookback int, fn func() []float64) []float64 {
	if n <= lookback {
		return nans(n)
	}
	return warm(fn(), lookback)
}

func warm(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
