package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/export"
	"github.com/viktsys/twmarket/ingest"
)

var (
	importType        string
	importInteractive bool
	importProduct     string
)

var ingestCMD = &cobra.Command{
	Use:     "import <path>...",
	Aliases: []string{"ingest"},
	Short:   "Import option, futures and stock CSV exports",
	Long: `Classify and import exchange CSV exports from files or directories.
Files are processed concurrently; rows already stored are skipped, so the
same file can be imported again safely.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := ingest.ImportOptions{Product: importProduct}
		if importType != "" {
			t, err := ingest.ParseDataType(importType)
			if err != nil {
				return err
			}
			opts.Force = t
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var chooser ingest.Chooser
		if importInteractive {
			chooser = &ingest.PromptChooser{In: os.Stdin, Out: cmd.OutOrStdout()}
		}

		ctx, cancel := interruptible(cmd)
		defer cancel()

		processor := ingest.NewProcessor(store, ingest.NewClassifier(log, chooser), cfg.Ingest, opts, log)
		summary, err := processor.ProcessPaths(ctx, args)
		if len(summary.Files) == 0 {
			return err
		}
		if err != nil {
			log.WithError(err).Warn("some files failed")
		}

		printImportSummary(cmd, summary)
		return nil
	},
}

func printImportSummary(cmd *cobra.Command, summary ingest.Summary) {
	t := export.Table{Header: []string{"file", "type", "rows", "inserted", "duplicates", "invalid", "status"}}
	for _, f := range summary.Files {
		status := "ok"
		switch {
		case f.Err != nil:
			status = "error"
			var loadErr *ingest.LoadError
			if errors.As(f.Err, &loadErr) {
				status = "unreadable"
				if verbose {
					fmt.Fprintln(cmd.ErrOrStderr(), loadErr.Report())
				}
			}
		case f.Dropped:
			status = "dropped"
		}
		t.Rows = append(t.Rows, []string{
			filepath.Base(f.Path),
			string(f.Type),
			humanize.Comma(f.Rows),
			humanize.Comma(f.Inserted),
			humanize.Comma(f.Duplicates()),
			humanize.Comma(f.Invalid),
			status,
		})
	}
	export.Render(cmd.OutOrStdout(), t)
	fmt.Fprintf(cmd.OutOrStdout(), "%d files, %s rows, %s new, %d failed, %d dropped in %s\n",
		len(summary.Files), humanize.Comma(summary.Rows), humanize.Comma(summary.Inserted),
		summary.Failed, summary.Dropped, summary.Duration.Round(time.Millisecond))
}

func init() {
	ingestCMD.Flags().StringVar(&importType, "type", "", "skip classification and import as options|futures|stocks")
	ingestCMD.Flags().BoolVar(&importInteractive, "interactive", false, "ask which type to use when a file cannot be classified")
	ingestCMD.Flags().StringVar(&importProduct, "product", "", "product code for files without one")
}
