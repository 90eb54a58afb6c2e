package backtest

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config sets the trading costs applied to every fill.
type Config struct {
	// Slippage in price points, added on entry and subtracted on exit.
	Slippage float64
	// Commission as a fraction of entry plus exit price.
	Commission float64
}

func DefaultConfig() Config {
	return Config{Slippage: 2, Commission: 0.0002}
}

// Trade is one closed long position.
type Trade struct {
	Strategy   string
	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	Reason     string
}

// Result is the outcome of one strategy. Performance is nil when the
// strategy never traded.
type Result struct {
	Info
	Trades      []Trade
	Performance *Performance
}

type Engine struct {
	cfg  Config
	scan scan
	log  *logrus.Entry
}

// NewEngine computes the indicators for bars once; every strategy run reuses
// them.
func NewEngine(bars []Bar, cfg Config, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:  cfg,
		scan: scan{bars: bars, ind: Compute(bars)},
		log:  log.WithField("component", "backtest"),
	}
}

// Indicators exposes the computed series.
func (e *Engine) Indicators() Indicators {
	return e.scan.ind
}

// Run backtests one strategy by key or display name.
func (e *Engine) Run(key string) (Result, error) {
	st, err := lookup(key)
	if err != nil {
		return Result{}, err
	}
	return e.run(st), nil
}

// RunAll backtests the named strategies, or all of them when keys is empty.
func (e *Engine) RunAll(keys []string) ([]Result, error) {
	if len(keys) == 0 {
		results := make([]Result, len(strategies))
		for i, st := range strategies {
			results[i] = e.run(st)
		}
		return results, nil
	}

	results := make([]Result, 0, len(keys))
	for _, key := range keys {
		r, err := e.Run(key)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) run(st strategy) Result {
	s := &e.scan
	last := len(s.bars) - 1

	var trades []Trade
	var pos *position
	for i := st.start; i <= last; i++ {
		if pos == nil {
			if st.enter(s, i) {
				pos = &position{
					entryIndex: i,
					entryPrice: s.bars[i].Close + e.cfg.Slippage,
					stop:       st.stop(s, i),
				}
			}
		} else if reason, price, ok := st.exit(s, i, *pos); ok {
			trades = append(trades, e.fill(st, *pos, i, price, reason))
			pos = nil
		}

		if pos != nil && i == last {
			trades = append(trades, e.fill(st, *pos, i, s.bars[i].Close, ReasonForceClose))
			pos = nil
		}
	}

	result := Result{Info: st.Info, Trades: trades, Performance: Evaluate(trades, e.cfg.Commission)}
	fields := logrus.Fields{"strategy": st.Key, "trades": len(trades)}
	if result.Performance != nil {
		fields["return"] = result.Performance.TotalReturn
	}
	e.log.WithFields(fields).Debug("strategy finished")
	return result
}

func (e *Engine) fill(st strategy, p position, i int, price float64, reason string) Trade {
	return Trade{
		Strategy:   st.Key,
		EntryIndex: p.entryIndex,
		ExitIndex:  i,
		EntryTime:  e.scan.bars[p.entryIndex].Time,
		ExitTime:   e.scan.bars[i].Time,
		EntryPrice: p.entryPrice,
		ExitPrice:  price - e.cfg.Slippage,
		StopLoss:   p.stop,
		Reason:     reason,
	}
}
