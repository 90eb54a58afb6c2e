package backtest

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SummaryRow is the CSV shape of one strategy result.
type SummaryRow struct {
	Strategy     string  `csv:"strategy"`
	Name         string  `csv:"name"`
	Trades       int     `csv:"total_trades"`
	Winning      int     `csv:"winning_trades"`
	Losing       int     `csv:"losing_trades"`
	WinRate      float64 `csv:"win_rate"`
	TotalProfit  float64 `csv:"total_profit"`
	TotalLoss    float64 `csv:"total_loss"`
	ProfitFactor string  `csv:"profit_factor"`
	MaxDrawdown  float64 `csv:"max_drawdown"`
	FinalEquity  float64 `csv:"final_equity"`
	TotalReturn  float64 `csv:"total_return"`
}

// TradeRow is the CSV shape of one trade.
type TradeRow struct {
	Strategy   string  `csv:"strategy"`
	EntryTime  string  `csv:"entry_time"`
	ExitTime   string  `csv:"exit_time"`
	EntryPrice float64 `csv:"entry_price"`
	ExitPrice  float64 `csv:"exit_price"`
	StopLoss   float64 `csv:"stop_loss"`
	Reason     string  `csv:"reason"`
	PnL        float64 `csv:"pnl"`
}

func formatFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

// SummaryRows flattens results that traded.
func SummaryRows(results []Result) []SummaryRow {
	var rows []SummaryRow
	for _, r := range results {
		p := r.Performance
		if p == nil {
			continue
		}
		rows = append(rows, SummaryRow{
			Strategy:     r.Key,
			Name:         r.Name,
			Trades:       p.TotalTrades,
			Winning:      p.WinningTrades,
			Losing:       p.LosingTrades,
			WinRate:      p.WinRate,
			TotalProfit:  p.TotalProfit,
			TotalLoss:    p.TotalLoss,
			ProfitFactor: formatFactor(p.ProfitFactor),
			MaxDrawdown:  p.MaxDrawdown,
			FinalEquity:  p.FinalEquity,
			TotalReturn:  p.TotalReturn,
		})
	}
	return rows
}

// TradeRows lists every trade of results with its net pnl.
func TradeRows(results []Result) []TradeRow {
	var rows []TradeRow
	for _, r := range results {
		for i, t := range r.Trades {
			row := TradeRow{
				Strategy:   t.Strategy,
				EntryTime:  t.EntryTime.Format(time.RFC3339),
				ExitTime:   t.ExitTime.Format(time.RFC3339),
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				StopLoss:   t.StopLoss,
				Reason:     t.Reason,
			}
			if r.Performance != nil && i < len(r.Performance.PnL) {
				row.PnL = r.Performance.PnL[i]
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func WriteSummaryCSV(w io.Writer, results []Result) error {
	rows := SummaryRows(results)
	return gocsv.Marshal(&rows, w)
}

func WriteTradesCSV(w io.Writer, results []Result) error {
	rows := TradeRows(results)
	return gocsv.Marshal(&rows, w)
}

// RenderSummary prints the ranked results as a table.
func RenderSummary(w io.Writer, results []Result) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Strategy", "Trades", "Win rate", "Profit factor", "Max DD", "Final equity", "Return"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, r := range results {
		perf := r.Performance
		if perf == nil {
			table.Append([]string{fmt.Sprint(i + 1), r.Name, "0", "-", "-", "-", "-", "-"})
			continue
		}
		table.Append([]string{
			fmt.Sprint(i + 1),
			r.Name,
			fmt.Sprint(perf.TotalTrades),
			fmt.Sprintf("%.1f%%", perf.WinRate*100),
			formatFactor(perf.ProfitFactor),
			fmt.Sprintf("%.2f%%", perf.MaxDrawdown*100),
			p.Sprintf("%.0f", perf.FinalEquity),
			fmt.Sprintf("%.2f%%", perf.TotalReturn*100),
		})
	}
	table.Render()
}
