package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/export"
	"github.com/viktsys/twmarket/pricehist"
)

var (
	pricesDerivative   bool
	pricesAllIntervals bool
	pricesMarket       string
	pricesShowDerivs   bool
	pricesDerivKind    string
	pricesLogLimit     int
)

var pricesCMD = &cobra.Command{
	Use:   "prices",
	Short: "Stock and derivative price history",
}

var pricesDownloadCMD = &cobra.Command{
	Use:   "download [symbol]...",
	Short: "Download price history; without symbols every active listed stock is fetched",
	RunE: func(cmd *cobra.Command, args []string) error {
		market := pricehist.Market(strings.ToUpper(pricesMarket))
		if market != pricehist.MarketTW && market != pricehist.MarketUS {
			return fmt.Errorf("unknown market %q (want TW or US)", pricesMarket)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := interruptible(cmd)
		defer cancel()

		req := pricehist.Request{
			Symbols:      args,
			Kind:         database.StockBars,
			Market:       market,
			AllIntervals: pricesAllIntervals,
		}
		if pricesDerivative {
			req.Kind = database.DerivativeBars
		}
		if len(req.Symbols) == 0 {
			if pricesDerivative {
				return errors.New("derivative downloads need explicit symbols")
			}
			listings, err := store.StockListings(ctx, true)
			if err != nil {
				return err
			}
			for _, l := range listings {
				req.Symbols = append(req.Symbols, l.StockID)
			}
			if len(req.Symbols) == 0 {
				return errors.New("stock list is empty; run 'prices list import' first")
			}
		}

		client := pricehist.NewClient(cfg.HTTP, "", log)
		job := pricehist.NewDownloader(client, store, log).Start(ctx, req)
		go func() {
			<-ctx.Done()
			job.Stop()
		}()

		out := cmd.OutOrStdout()
		for p := range job.Progress() {
			fmt.Fprintf(out, "[%d/%d] %s %s %s: %s\n", p.Done, p.Total, p.Symbol, p.Interval, p.Status, p.Message)
		}
		summary, err := job.Wait()
		fmt.Fprintf(out, "run %s: success %d, skipped %d, failed %d\n", summary.RunID, summary.Success, summary.Skipped, summary.Failed)
		if errors.Is(err, pricehist.ErrStopped) || errors.Is(err, context.Canceled) {
			log.Warn("download interrupted")
			return nil
		}
		return err
	},
}

var pricesListCMD = &cobra.Command{
	Use:   "list",
	Short: "Manage the stock and derivative lists",
}

var pricesListImportCMD = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import a stock list CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listings, err := pricehist.ReadStockList(args[0], time.Now())
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.UpsertStockListings(cmd.Context(), listings)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s stocks read, %s saved\n", humanize.Comma(int64(len(listings))), humanize.Comma(n))
		return nil
	},
}

var pricesListShowCMD = &cobra.Command{
	Use:   "show",
	Short: "Show the stored stock or derivative list",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if pricesShowDerivs {
			derivs, err := store.DerivativeListings(cmd.Context(), pricesDerivKind)
			if err != nil {
				return err
			}
			t := export.Table{Header: []string{"symbol", "name", "type", "underlying", "expiration"}}
			for _, d := range derivs {
				exp := ""
				if d.Expiration != nil {
					exp = formatDay(*d.Expiration)
				}
				t.Rows = append(t.Rows, []string{d.Symbol, d.Name, d.Type, d.Underlying, exp})
			}
			export.Render(cmd.OutOrStdout(), t)
			return nil
		}

		stocks, err := store.StockListings(cmd.Context(), false)
		if err != nil {
			return err
		}
		t := export.Table{Header: []string{"stock_id", "name", "market", "industry", "active", "updated"}}
		for _, s := range stocks {
			t.Rows = append(t.Rows, []string{
				s.StockID, s.Name, s.Market, s.Industry,
				fmt.Sprint(s.IsActive), humanize.Time(s.LastUpdated),
			})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

var pricesLogCMD = &cobra.Command{
	Use:   "log",
	Short: "Show recent price download tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.DownloadLogs(cmd.Context(), pricesLogLimit)
		if err != nil {
			return err
		}
		t := export.Table{Header: []string{"when", "run", "type", "symbol", "interval", "records", "status", "error"}}
		for _, e := range entries {
			run := e.RunID
			if len(run) > 8 {
				run = run[:8]
			}
			t.Rows = append(t.Rows, []string{
				humanize.Time(e.CreatedAt), run, e.TaskType, e.Symbol, e.Interval,
				humanize.Comma(int64(e.RecordsDownloaded)), e.Status, e.ErrorMessage,
			})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

func init() {
	pricesDownloadCMD.Flags().BoolVar(&pricesDerivative, "derivative", false, "symbols are derivatives (no .TW suffix)")
	pricesDownloadCMD.Flags().BoolVar(&pricesAllIntervals, "all-intervals", false, "download 1h, 30m, 15m, 5m and 1m bars too")
	pricesDownloadCMD.Flags().StringVar(&pricesMarket, "market", string(pricehist.MarketTW), "market of bare stock codes: TW|US")

	pricesListShowCMD.Flags().BoolVar(&pricesShowDerivs, "derivatives", false, "show the derivative list")
	pricesListShowCMD.Flags().StringVar(&pricesDerivKind, "type", "", "derivative type filter")
	pricesLogCMD.Flags().IntVar(&pricesLogLimit, "limit", 50, "entries to show")

	pricesListCMD.AddCommand(pricesListImportCMD, pricesListShowCMD)
	pricesCMD.AddCommand(pricesDownloadCMD, pricesListCMD, pricesLogCMD)
}
