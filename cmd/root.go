package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/logger"
	"github.com/viktsys/twmarket/normalize"
)

var (
	cfg     *config.Config
	log     *logrus.Logger
	verbose bool
)

var rootCMD = &cobra.Command{
	Use:   "twmarket",
	Short: "Taiwan market data ingestion and analysis tool",
	Long: `A CLI application for collecting and analyzing Taiwan market data.
It imports exchange CSV exports of options, futures and stocks, downloads
TAIFEX option reports and price history, flags unusual option open interest
changes, backtests technical strategies and serves the stored data through a
local REST API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		log = logger.New(cfg.Log)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func Execute() {
	err := rootCMD.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCMD.AddCommand(ingestCMD, oiCMD, txoCMD, scrapeCMD, pricesCMD, backtestCMD, dbCMD, serverCMD)
}

func openStore() (*database.Store, error) {
	log.WithField("driver", cfg.Database.Driver).Debug("opening database")
	store, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store.SetBatchSize(cfg.Ingest.BatchSize)
	return store, nil
}

// interruptible cancels on Ctrl-C or SIGTERM.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func parseDayFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := normalize.Date(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}
