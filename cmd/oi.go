package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/export"
	"github.com/viktsys/twmarket/ingest"
	"github.com/viktsys/twmarket/normalize"
	"github.com/viktsys/twmarket/oi"
)

var (
	oiProduct  string
	oiDate     string
	oiFrom     string
	oiTo       string
	oiATM      string
	oiWindow   int
	oiStep     float64
	oiTop      int
	oiCSVOut   string
	oiDeltaOut string
	oiPivotOut string
	oiValue    string
	oiDays     int
)

var oiCMD = &cobra.Command{
	Use:   "oi",
	Short: "Option open interest analysis",
}

func oiQuery() (oi.Query, error) {
	q := oi.Query{Product: oiProduct}
	var err error
	if q.Date, err = parseDayFlag("date", oiDate); err != nil {
		return q, err
	}
	if q.From, err = parseDayFlag("from", oiFrom); err != nil {
		return q, err
	}
	if q.To, err = parseDayFlag("to", oiTo); err != nil {
		return q, err
	}
	return q, nil
}

func oiParams() (oi.Params, error) {
	p := oi.DefaultParams()
	method, err := oi.ParseATMMethod(oiATM)
	if err != nil {
		return p, err
	}
	p.ATM = method
	p.WindowStrikes, p.StrikeStep, p.TopN = oiWindow, oiStep, oiTop
	return p, nil
}

var oiReportCMD = &cobra.Command{
	Use:   "report",
	Short: "Summarise one trading day and flag unusual OI changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := oiQuery()
		if err != nil {
			return err
		}
		p, err := oiParams()
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := oi.BuildReport(cmd.Context(), store, q, p)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var oiExportCMD = &cobra.Command{
	Use:   "export",
	Short: "Write per-contract daily OI and deltas to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := oiQuery()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		_, aggs, err := oi.Load(cmd.Context(), store, q)
		if err != nil {
			return err
		}

		f, err := os.Create(oiDeltaOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", oiDeltaOut, err)
		}
		defer f.Close()
		if err := oi.WriteDeltasCSV(f, aggs); err != nil {
			return err
		}
		log.WithField("rows", len(aggs)).Infof("wrote %s", oiDeltaOut)
		return nil
	},
}

var oiPivotCMD = &cobra.Command{
	Use:   "pivot",
	Short: "Pivot OI or delta by strike and date",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := oi.ParsePivotValue(oiValue)
		if err != nil {
			return err
		}
		q, err := oiQuery()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		_, aggs, err := oi.Load(cmd.Context(), store, q)
		if err != nil {
			return err
		}

		records := oi.BuildPivot(aggs, value, oiDays).Records()
		t := export.Table{Name: "pivot_" + string(value), Header: records[0], Rows: records[1:]}
		if oiPivotOut == "" {
			export.Render(cmd.OutOrStdout(), t)
			return nil
		}
		if err := export.WriteFile(oiPivotOut, t); err != nil {
			return err
		}
		log.WithField("strikes", len(t.Rows)).Infof("wrote %s", oiPivotOut)
		return nil
	},
}

var oiLoadCSVCMD = &cobra.Command{
	Use:   "load-csv <file>",
	Short: "Report on an option CSV directly, without the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := oiParams()
		if err != nil {
			return err
		}
		rows, invalid, err := ingest.ReadOptions(args[0], oiProduct)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"rows": len(rows), "invalid": invalid}).Info("loaded option file")

		aggs := oi.AggregateDaily(oi.FromOptions(rows))
		dates := oi.Dates(aggs)
		if len(dates) == 0 {
			return fmt.Errorf("no option rows in %s", args[0])
		}

		day := dates[len(dates)-1]
		if oiDate != "" {
			if day, err = normalize.Date(oiDate); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
		}
		printReport(cmd.OutOrStdout(), oi.Report(aggs, day, p))

		if oiCSVOut != "" {
			f, err := os.Create(oiCSVOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", oiCSVOut, err)
			}
			defer f.Close()
			return oi.WriteDeltasCSV(f, aggs)
		}
		return nil
	},
}

func printReport(w io.Writer, r oi.DayReport) {
	fmt.Fprintf(w, "Date: %s  contracts: %d\n", formatDay(r.Date), r.Contracts)
	if r.Contracts == 0 {
		fmt.Fprintln(w, "no data for this day")
		return
	}
	if r.HasATM {
		fmt.Fprintf(w, "ATM: %s\n", strconv.FormatFloat(r.ATM, 'f', -1, 64))
	}
	if r.MaxCall != nil {
		fmt.Fprintf(w, "Max call OI: %s @ %s\n", humanize.Comma(r.MaxCall.OI), strconv.FormatFloat(r.MaxCall.Strike, 'f', -1, 64))
	}
	if r.MaxPut != nil {
		fmt.Fprintf(w, "Max put OI: %s @ %s\n", humanize.Comma(r.MaxPut.OI), strconv.FormatFloat(r.MaxPut.Strike, 'f', -1, 64))
	}
	fmt.Fprintf(w, "Total call OI: %s  put OI: %s  P/C: %.2f\n\n",
		humanize.Comma(r.TotalCallOI), humanize.Comma(r.TotalPutOI), r.PutCallOIRatio)

	movers := export.Table{Header: []string{"window", "direction", "strike", "cp", "oi", "delta"}}
	addMovers := func(window, direction string, ms []oi.Mover) {
		for _, m := range ms {
			movers.Rows = append(movers.Rows, []string{
				window, direction,
				strconv.FormatFloat(m.Strike, 'f', -1, 64), m.CP,
				humanize.Comma(m.OI), humanize.Comma(m.Delta),
			})
		}
	}
	addMovers("1d", "increase", r.TopIncrease1)
	addMovers("1d", "decrease", r.TopDecrease1)
	addMovers("2d", "increase", r.TopIncrease2)
	addMovers("2d", "decrease", r.TopDecrease2)
	if len(movers.Rows) > 0 {
		export.Render(w, movers)
	}

	if len(r.Anomalies) == 0 {
		fmt.Fprintln(w, "no anomalies")
		return
	}
	anomalies := export.Table{Header: []string{"strike", "cp", "oi", "delta_1", "baseline", "label"}}
	for _, a := range r.Anomalies {
		anomalies.Rows = append(anomalies.Rows, []string{
			strconv.FormatFloat(a.Strike, 'f', -1, 64), a.CP,
			humanize.Comma(a.OI), humanize.Comma(a.Delta1),
			strconv.FormatFloat(a.Baseline, 'f', 1, 64), a.Label,
		})
	}
	export.Render(w, anomalies)
}

func init() {
	for _, c := range []*cobra.Command{oiReportCMD, oiExportCMD, oiPivotCMD} {
		c.Flags().StringVar(&oiDate, "date", "", "report day (default: latest stored day)")
		c.Flags().StringVar(&oiFrom, "from", "", "range start")
		c.Flags().StringVar(&oiTo, "to", "", "range end")
	}
	for _, c := range []*cobra.Command{oiReportCMD, oiLoadCSVCMD} {
		c.Flags().StringVar(&oiATM, "atm", string(oi.ATMMaxOI), "ATM estimate: maxoi|median")
		c.Flags().IntVar(&oiWindow, "window", 10, "strikes from ATM before a strike counts as remote")
		c.Flags().Float64Var(&oiStep, "step", 100, "strike step")
		c.Flags().IntVar(&oiTop, "top", 10, "anomalies to list")
	}
	oiLoadCSVCMD.Flags().StringVar(&oiDate, "date", "", "report day (default: last day in the file)")
	oiLoadCSVCMD.Flags().StringVar(&oiCSVOut, "out", "", "also write deltas CSV")

	oiExportCMD.Flags().StringVar(&oiDeltaOut, "out", "oi_deltas.csv", "output CSV")
	oiPivotCMD.Flags().StringVar(&oiPivotOut, "out", "", "output file (.csv, .json or .xlsx); prints when empty")
	oiPivotCMD.Flags().StringVar(&oiValue, "value", string(oi.PivotOI), "cell value: oi|delta")
	oiPivotCMD.Flags().IntVar(&oiDays, "days", 0, "keep only the most recent days")

	oiCMD.PersistentFlags().StringVar(&oiProduct, "product", "TXO", "option product code")
	oiCMD.AddCommand(oiReportCMD, oiExportCMD, oiPivotCMD, oiLoadCSVCMD)
}
