package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/export"
	"github.com/viktsys/twmarket/normalize"
	"github.com/viktsys/twmarket/scrape"
)

var (
	txoFrom    string
	txoTo      string
	txoForce   bool
	txoWorkers int
	txoDate    string
	txoExpiry  string
)

var txoCMD = &cobra.Command{
	Use:   "txo",
	Short: "TAIFEX TXO daily market reports",
}

var txoDownloadCMD = &cobra.Command{
	Use:   "download",
	Short: "Download the TXO daily report for every weekday of a range",
	RunE: func(cmd *cobra.Command, args []string) error {
		toDay, err := parseDayFlag("to", txoTo)
		if err != nil {
			return err
		}
		fromDay, err := parseDayFlag("from", txoFrom)
		if err != nil {
			return err
		}
		to := normalize.Day(time.Now())
		if toDay != nil {
			to = *toDay
		}
		from := to
		if fromDay != nil {
			from = *fromDay
		}
		if from.After(to) {
			return fmt.Errorf("--from %s is after --to %s", formatDay(from), formatDay(to))
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := interruptible(cmd)
		defer cancel()

		client := scrape.NewClient(cfg.HTTP, "taifex", log)
		dl := scrape.NewRangeDownloader(scrape.NewTXOReport(client, ""), store, txoWorkers, log)
		job := dl.Start(ctx, from, to, txoForce)
		go func() {
			<-ctx.Done()
			job.Stop()
		}()

		out := cmd.OutOrStdout()
		for p := range job.Progress() {
			line := fmt.Sprintf("[%d/%d] %s %s", p.Done, p.Total, formatDay(p.Date), p.Status)
			if p.Rows > 0 {
				line += fmt.Sprintf(" (%s rows)", humanize.Comma(p.Rows))
			}
			if p.Err != nil {
				line += ": " + p.Err.Error()
			}
			fmt.Fprintln(out, line)
		}

		summary, err := job.Wait()
		fmt.Fprintf(out, "success %d, skipped %d, failed %d\n", summary.Success, summary.Skipped, summary.Failed)
		if len(summary.FailedDates) > 0 {
			days := make([]string, len(summary.FailedDates))
			for i, d := range summary.FailedDates {
				days[i] = formatDay(d)
			}
			fmt.Fprintf(out, "failed dates: %v\n", days)
		}
		if errors.Is(err, scrape.ErrStopped) || errors.Is(err, context.Canceled) {
			log.Warn("download interrupted")
			return nil
		}
		return err
	},
}

var txoChainCMD = &cobra.Command{
	Use:   "chain",
	Short: "Show the stored option chain of a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := requiredDay()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		quotes, err := store.TXOChain(cmd.Context(), date, txoExpiry)
		if err != nil {
			return err
		}
		if len(quotes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no TXO quotes for %s\n", formatDay(date))
			return nil
		}

		t := export.Table{Header: []string{"expiry", "strike", "type", "last", "settle", "change", "volume", "oi", "bid", "ask"}}
		for _, q := range quotes {
			t.Rows = append(t.Rows, []string{
				q.ExpiryDate,
				strconv.FormatFloat(q.StrikePrice, 'f', -1, 64),
				q.OptionType,
				optFloat(q.LastPrice),
				optFloat(q.SettlementPrice),
				optFloat(q.ChangePrice),
				optInt(q.TotalVolume),
				optInt(q.OpenInterest),
				optFloat(q.BestBid),
				optFloat(q.BestAsk),
			})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

var txoVolumeCMD = &cobra.Command{
	Use:   "volume",
	Short: "Sum TXO volume and open interest per option type for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := requiredDay()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sums, err := store.TXOVolumeByType(cmd.Context(), date)
		if err != nil {
			return err
		}
		t := export.Table{Header: []string{"type", "volume", "open interest", "contracts"}}
		for _, s := range sums {
			t.Rows = append(t.Rows, []string{
				s.OptionType,
				humanize.Comma(s.TotalVolume),
				humanize.Comma(s.TotalOpenInterest),
				humanize.Comma(s.ContractCount),
			})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

var txoDatesCMD = &cobra.Command{
	Use:   "dates",
	Short: "List the days with stored TXO quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		dates, err := store.TXODates(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range dates {
			fmt.Fprintln(cmd.OutOrStdout(), formatDay(d))
		}
		return nil
	},
}

func requiredDay() (time.Time, error) {
	d, err := parseDayFlag("date", txoDate)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return time.Time{}, errors.New("--date is required")
	}
	return *d, nil
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return humanize.Comma(*v)
}

func init() {
	txoDownloadCMD.Flags().StringVar(&txoFrom, "from", "", "first day (default: --to)")
	txoDownloadCMD.Flags().StringVar(&txoTo, "to", "", "last day (default: today)")
	txoDownloadCMD.Flags().BoolVar(&txoForce, "force", false, "download days that are already complete")
	txoDownloadCMD.Flags().IntVar(&txoWorkers, "workers", 2, "concurrent downloads")

	for _, c := range []*cobra.Command{txoChainCMD, txoVolumeCMD} {
		c.Flags().StringVar(&txoDate, "date", "", "trading day")
	}
	txoChainCMD.Flags().StringVar(&txoExpiry, "expiry", "", "expiry month, e.g. 202401")

	txoCMD.AddCommand(txoDownloadCMD, txoChainCMD, txoVolumeCMD, txoDatesCMD)
}
