package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/backtest"
	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/export"
)

var (
	btStrategies []string
	btSlippage   float64
	btCommission float64
	btTop        int
	btSymbol     string
	btInterval   string
	btDerivative bool
	btOut        string
	btTrades     string
	btList       bool
)

var backtestCMD = &cobra.Command{
	Use:   "backtest [bars.csv]",
	Short: "Backtest the built-in technical strategies on OHLCV bars",
	Long: `Run long-only technical strategies over a bar series and rank them by
total return. Bars come from a CSV file or, with --symbol, from downloaded
price history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if btList {
			t := export.Table{Header: []string{"key", "name", "entry", "exit", "timeframe"}}
			for _, info := range backtest.Strategies() {
				t.Rows = append(t.Rows, []string{info.Key, info.Name, info.Entry, info.Exit, info.Timeframe})
			}
			export.Render(cmd.OutOrStdout(), t)
			return nil
		}

		bars, err := loadBars(cmd, args)
		if err != nil {
			return err
		}
		log.WithField("bars", len(bars)).Info("running backtest")

		engine := backtest.NewEngine(bars, backtest.Config{Slippage: btSlippage, Commission: btCommission}, log)
		results, err := engine.RunAll(btStrategies)
		if err != nil {
			return err
		}

		ranked := backtest.Rank(results, btTop)
		if len(ranked) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no strategy traded on these bars")
		} else {
			backtest.RenderSummary(cmd.OutOrStdout(), ranked)
		}

		if btOut != "" {
			if err := writeWith(btOut, func(f *os.File) error { return backtest.WriteSummaryCSV(f, results) }); err != nil {
				return err
			}
			log.Infof("wrote %s", btOut)
		}
		if btTrades != "" {
			if err := writeWith(btTrades, func(f *os.File) error { return backtest.WriteTradesCSV(f, results) }); err != nil {
				return err
			}
			log.Infof("wrote %s", btTrades)
		}
		return nil
	},
}

func loadBars(cmd *cobra.Command, args []string) ([]backtest.Bar, error) {
	switch {
	case len(args) == 1:
		return backtest.ReadBars(args[0])
	case btSymbol == "":
		return nil, errors.New("give a bars CSV or --symbol")
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	kind := database.StockBars
	if btDerivative {
		kind = database.DerivativeBars
	}
	rows, err := store.Bars(cmd.Context(), kind, btSymbol, btInterval)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w for %s %s; run 'prices download' first", backtest.ErrNoBars, btSymbol, btInterval)
	}
	return backtest.FromStore(rows), nil
}

func writeWith(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func init() {
	def := backtest.DefaultConfig()
	backtestCMD.Flags().StringSliceVar(&btStrategies, "strategy", nil, "strategy key or name, repeatable (default: all)")
	backtestCMD.Flags().Float64Var(&btSlippage, "slippage", def.Slippage, "slippage in price points per fill")
	backtestCMD.Flags().Float64Var(&btCommission, "commission", def.Commission, "commission rate on entry plus exit price")
	backtestCMD.Flags().IntVar(&btTop, "top", 5, "strategies to show, 0 for all")
	backtestCMD.Flags().StringVar(&btSymbol, "symbol", "", "read stored bars of this symbol")
	backtestCMD.Flags().StringVar(&btInterval, "interval", "1d", "bar interval of --symbol")
	backtestCMD.Flags().BoolVar(&btDerivative, "derivative", false, "--symbol is a derivative")
	backtestCMD.Flags().StringVar(&btOut, "out", "", "write the summary CSV")
	backtestCMD.Flags().StringVar(&btTrades, "trades", "", "write every trade to CSV")
	backtestCMD.Flags().BoolVar(&btList, "list", false, "list the strategies and exit")
}
