package backtest

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Exit reasons.
const (
	ReasonStopLoss      = "stop_loss"
	ReasonProfitTake    = "profit_take"
	ReasonSignal        = "signal_exit"
	ReasonReverseCross  = "reverse_cross"
	ReasonMiddleBand    = "middle_band_exit"
	ReasonTrendBreak    = "trend_break"
	ReasonHistogramTurn = "histogram_turn"
	ReasonForceClose    = "force_close"
)

// Info describes a strategy for listings and reports.
type Info struct {
	Key       string
	Name      string
	Entry     string
	Exit      string
	Timeframe string
}

type position struct {
	entryIndex int
	entryPrice float64
	stop       float64
}

// scan is the read-only view a rule evaluates against.
type scan struct {
	bars []Bar
	ind  Indicators
}

type (
	entryRule func(s *scan, i int) bool
	stopRule  func(s *scan, i int) float64
	exitRule  func(s *scan, i int, p position) (reason string, price float64, ok bool)
)

type strategy struct {
	Info
	start int
	enter entryRule
	stop  stopRule
	exit  exitRule
}

// atrStop places the stop mult ATRs under the entry bar's close.
func atrStop(mult float64) stopRule {
	return func(s *scan, i int) float64 {
		return s.bars[i].Close - s.ind.ATR[i]*mult
	}
}

// below places the stop mult ATRs under a reference series.
func below(ref func(s *scan) []float64, mult float64) stopRule {
	return func(s *scan, i int) float64 {
		return ref(s)[i] - s.ind.ATR[i]*mult
	}
}

// bracket exits at the close when the entry stop is hit, when the high
// reaches tp ATRs above the entry price, or when signal fires.
func bracket(tp float64, signal func(s *scan, i int) bool) exitRule {
	return func(s *scan, i int, p position) (string, float64, bool) {
		b := s.bars[i]
		hitStop := b.Low <= p.stop
		target := p.entryPrice + s.ind.ATR[i]*tp
		if !hitStop && b.High < target && (signal == nil || !signal(s, i)) {
			return "", 0, false
		}
		if hitStop {
			return ReasonStopLoss, b.Close, true
		}
		return ReasonProfitTake, b.Close, true
	}
}

// onSignal exits at the close when cond holds.
func onSignal(reason string, cond func(s *scan, i int) bool) exitRule {
	return func(s *scan, i int, _ position) (string, float64, bool) {
		if cond(s, i) {
			return reason, s.bars[i].Close, true
		}
		return "", 0, false
	}
}

func ema20(s *scan) []float64    { return s.ind.EMA20 }
func ema26(s *scan) []float64    { return s.ind.EMA26 }
func bbMiddle(s *scan) []float64 { return s.ind.BBMiddle }

func bandWidth(s *scan, i int) float64 {
	return (s.ind.BBUpper[i] - s.ind.BBLower[i]) / s.ind.BBMiddle[i]
}

var strategies = []strategy{
	{
		Info:  Info{"kd_crossover", "KD金叉策略", "%K crosses above %D below 30", "stop, entry + 2 ATR or %K > 80", "any"},
		start: 2,
		enter: func(s *scan, i int) bool {
			k, d := s.ind.K, s.ind.D
			return k[i-1] > d[i-1] && k[i-2] <= d[i-2] && k[i-1] < 30
		},
		stop: atrStop(1.5),
		exit: bracket(2, func(s *scan, i int) bool { return s.ind.K[i] > 80 }),
	},
	{
		Info:  Info{"rsi_rebound", "RSI超賣反彈策略", "RSI under 30 turns up", "stop, entry + 2 ATR or RSI > 70", "any"},
		start: 1,
		enter: func(s *scan, i int) bool {
			rsi := s.ind.RSI
			return rsi[i-1] < 30 && rsi[i] > rsi[i-1]
		},
		stop: atrStop(1.5),
		exit: bracket(2, func(s *scan, i int) bool { return s.ind.RSI[i] > 70 }),
	},
	{
		Info:  Info{"volume_breakout", "成交量突破策略", "volume > 1.5x 20-bar average on an up bar", "stop or entry + 2 ATR", "any"},
		start: 1,
		enter: func(s *scan, i int) bool {
			b, prev := s.bars[i], s.bars[i-1]
			return b.Volume > s.ind.VolumeMA20[i]*1.5 && b.Close > b.Open && b.Close > prev.Close
		},
		stop: atrStop(1.5),
		exit: bracket(2, nil),
	},
	{
		Info:  Info{"ema_rebound", "EMA反彈策略", "previous bar touches EMA50 ±1, up close", "low under EMA20 - 1 ATR", "5m"},
		start: 1,
		enter: func(s *scan, i int) bool {
			prev, b := s.bars[i-1], s.bars[i]
			ema := s.ind.EMA50[i-1]
			return prev.Low <= ema+1 && prev.High >= ema-1 && b.Close > b.Open
		},
		stop: below(ema20, 1),
		exit: func(s *scan, i int, _ position) (string, float64, bool) {
			level := s.ind.EMA20[i] - s.ind.ATR[i]
			if s.bars[i].Low <= level {
				return ReasonStopLoss, level, true
			}
			return "", 0, false
		},
	},
	{
		Info:  Info{"macd_crossover", "MACD金叉策略", "MACD crosses above signal", "stop or MACD under signal", "any"},
		start: 2,
		enter: func(s *scan, i int) bool {
			m, sig := s.ind.MACD, s.ind.MACDSignal
			return m[i-1] > sig[i-1] && m[i-2] <= sig[i-2]
		},
		stop: atrStop(2),
		exit: func(s *scan, i int, p position) (string, float64, bool) {
			b := s.bars[i]
			switch {
			case b.Low <= p.stop:
				return ReasonStopLoss, b.Close, true
			case s.ind.MACD[i] < s.ind.MACDSignal[i]:
				return ReasonSignal, b.Close, true
			}
			return "", 0, false
		},
	},
	{
		Info:  Info{"dual_ma", "雙均線金叉策略", "SMA5 crosses above SMA20", "SMA5 under SMA20", "15m+"},
		start: 1,
		enter: func(s *scan, i int) bool {
			fast, slow := s.ind.SMA5, s.ind.SMA20
			return fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		},
		stop: atrStop(1.5),
		exit: onSignal(ReasonReverseCross, func(s *scan, i int) bool { return s.ind.SMA5[i] < s.ind.SMA20[i] }),
	},
	{
		Info:  Info{"bollinger_breakout", "布林通道突破策略", "close breaks above the upper band", "close back to the middle band", "any"},
		start: 1,
		enter: func(s *scan, i int) bool {
			up := s.ind.BBUpper
			return s.bars[i].Close > up[i] && s.bars[i-1].Close <= up[i-1]
		},
		stop: below(bbMiddle, 0.5),
		exit: onSignal(ReasonMiddleBand, func(s *scan, i int) bool { return s.bars[i].Close <= s.ind.BBMiddle[i] }),
	},
	{
		Info:  Info{"rsi_divergence", "RSI背離策略", "lower low with higher RSI under 35", "stop, entry + 2 ATR or RSI > 70", "30m+"},
		start: 5,
		enter: func(s *scan, i int) bool {
			rsi := s.ind.RSI
			return s.bars[i].Low < s.bars[i-1].Low && rsi[i] > rsi[i-1] && rsi[i] < 35
		},
		stop: atrStop(1.5),
		exit: bracket(2, func(s *scan, i int) bool { return s.ind.RSI[i] > 70 }),
	},
	{
		Info:  Info{"volume_price", "量價確認策略", "two rising closes on expanding above-average volume", "stop, entry + 2.5 ATR or volume under average", "1d"},
		start: 2,
		enter: func(s *scan, i int) bool {
			b, prev, prev2 := s.bars[i], s.bars[i-1], s.bars[i-2]
			return b.Close > prev.Close && b.Volume > prev.Volume &&
				b.Volume > s.ind.VolumeMA20[i] && prev.Close > prev2.Close
		},
		stop: atrStop(1.2),
		exit: bracket(2.5, func(s *scan, i int) bool { return s.bars[i].Volume < s.ind.VolumeMA20[i] }),
	},
	{
		Info:  Info{"ema_trend", "EMA趨勢跟隨策略", "EMA12 > EMA26 > EMA50 and close crosses above EMA12", "close under EMA26", "1h+"},
		start: 1,
		enter: func(s *scan, i int) bool {
			ind := s.ind
			return ind.EMA12[i] > ind.EMA26[i] && ind.EMA26[i] > ind.EMA50[i] &&
				s.bars[i].Close > ind.EMA12[i] && s.bars[i-1].Close <= ind.EMA12[i-1]
		},
		stop: below(ema26, 0.8),
		exit: onSignal(ReasonTrendBreak, func(s *scan, i int) bool { return s.bars[i].Close < s.ind.EMA26[i] }),
	},
	{
		Info:  Info{"macd_histogram", "MACD柱狀圖策略", "histogram turns positive", "histogram turns negative", "any"},
		start: 2,
		enter: func(s *scan, i int) bool {
			h := s.ind.MACDHist
			return h[i-1] > 0 && h[i-2] <= 0
		},
		stop: atrStop(1.8),
		exit: onSignal(ReasonHistogramTurn, func(s *scan, i int) bool { return s.ind.MACDHist[i] < 0 }),
	},
	{
		Info:  Info{"kd_momentum", "KD動量策略", "%K under 30 rising two bars in a row", "stop, entry + 2.2 ATR or %K > 75", "1d"},
		start: 3,
		enter: func(s *scan, i int) bool {
			k := s.ind.K
			return k[i-1] < 30 && k[i-1] > k[i-2] && k[i-2] > k[i-3]
		},
		stop: atrStop(1.3),
		exit: bracket(2.2, func(s *scan, i int) bool { return s.ind.K[i] > 75 }),
	},
	{
		Info:  Info{"bollinger_squeeze", "布林通道擠壓策略", "band width drops under 5% with close above the upper band", "close back to the middle band", "30m+"},
		start: 2,
		enter: func(s *scan, i int) bool {
			return bandWidth(s, i) < 0.05 && bandWidth(s, i-1) >= 0.05 && s.bars[i].Close > s.ind.BBUpper[i]
		},
		stop: below(bbMiddle, 0.6),
		exit: onSignal(ReasonMiddleBand, func(s *scan, i int) bool { return s.bars[i].Close <= s.ind.BBMiddle[i] }),
	},
	{
		Info:  Info{"triple_screen", "三重濾網策略", "EMA12 > EMA26, MACD > 0 and RSI leaves oversold", "stop, entry + 2.8 ATR or EMA12 under EMA26", "4h/1d"},
		start: 5,
		enter: func(s *scan, i int) bool {
			ind := s.ind
			return ind.EMA12[i] > ind.EMA26[i] && ind.MACD[i] > 0 &&
				ind.RSI[i] > 30 && ind.RSI[i] < 70 && ind.RSI[i-1] < 30
		},
		stop: atrStop(1.4),
		exit: bracket(2.8, func(s *scan, i int) bool { return s.ind.EMA12[i] < s.ind.EMA26[i] }),
	},
}

// Strategies lists every strategy in run order.
func Strategies() []Info {
	out := make([]Info, len(strategies))
	for i, st := range strategies {
		out[i] = st.Info
	}
	return out
}

func lookup(key string) (strategy, error) {
	for _, st := range strategies {
		if strings.EqualFold(st.Key, key) || st.Name == key {
			return st, nil
		}
	}
	return strategy{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, key)
}
