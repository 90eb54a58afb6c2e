package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/export"
)

var (
	dbLimit int
	dbOut   string
	dbWhere []string
	dbYes   bool
)

var dbCMD = &cobra.Command{
	Use:   "db",
	Short: "Inspect and maintain the database",
	Long:  "Inspect and maintain the database. Tables: " + strings.Join(database.Tables(), ", "),
}

var dbInfoCMD = &cobra.Command{
	Use:   "info",
	Short: "Row counts and date coverage per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.Info(cmd.Context())
		if err != nil {
			return err
		}
		t := export.Table{Header: []string{"table", "rows", "from", "to", "distinct keys"}}
		for _, info := range infos {
			from, to := "-", "-"
			if info.MinDate != nil {
				from = formatDay(*info.MinDate)
			}
			if info.MaxDate != nil {
				to = formatDay(*info.MaxDate)
			}
			t.Rows = append(t.Rows, []string{info.Table, humanize.Comma(info.Rows), from, to, humanize.Comma(info.Distinct)})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

var dbQueryCMD = &cobra.Command{
	Use:   "query <table> [column=value]...",
	Short: "Print the rows of a table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := readTable(cmd, args[0], args[1:], dbLimit)
		if err != nil {
			return err
		}
		export.Render(cmd.OutOrStdout(), t)
		fmt.Fprintf(cmd.OutOrStdout(), "%s rows\n", humanize.Comma(int64(len(t.Rows))))
		return nil
	},
}

var dbExportCMD = &cobra.Command{
	Use:   "export <table> [column=value]...",
	Short: "Export a table to CSV, JSON or Excel",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := export.FormatFromPath(dbOut); err != nil {
			return err
		}
		t, err := readTable(cmd, args[0], args[1:], 0)
		if err != nil {
			return err
		}
		if err := export.WriteFile(dbOut, t); err != nil {
			return err
		}
		log.WithField("rows", len(t.Rows)).Infof("wrote %s", dbOut)
		return nil
	},
}

var dbDeleteCMD = &cobra.Command{
	Use:   "delete <table> --where column=value",
	Short: "Delete the rows matching every --where condition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := database.ParseFilters(dbWhere)
		if err != nil {
			return err
		}
		if len(filters) == 0 {
			return errors.New("--where is required; use truncate to empty a table")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Delete(cmd.Context(), args[0], filters)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s rows from %s\n", humanize.Comma(n), args[0])
		return nil
	},
}

var dbTruncateCMD = &cobra.Command{
	Use:   "truncate <table>",
	Short: "Delete every row of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dbYes {
			return fmt.Errorf("truncate %s removes every row; pass --yes to confirm", args[0])
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Truncate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s rows from %s\n", humanize.Comma(n), args[0])
		return nil
	},
}

func readTable(cmd *cobra.Command, table string, terms []string, limit int) (export.Table, error) {
	filters, err := database.ParseFilters(terms)
	if err != nil {
		return export.Table{}, err
	}
	store, err := openStore()
	if err != nil {
		return export.Table{}, err
	}
	defer store.Close()

	header, rows, err := store.TableRows(cmd.Context(), table, filters, limit)
	if err != nil {
		return export.Table{}, err
	}
	return export.Table{Name: table, Header: header, Rows: rows}, nil
}

func init() {
	dbQueryCMD.Flags().IntVar(&dbLimit, "limit", 100, "rows to print, 0 for all")
	dbExportCMD.Flags().StringVar(&dbOut, "out", "", "output file (.csv, .json or .xlsx)")
	_ = dbExportCMD.MarkFlagRequired("out")
	dbDeleteCMD.Flags().StringArrayVar(&dbWhere, "where", nil, "column=value condition, repeatable")
	dbTruncateCMD.Flags().BoolVar(&dbYes, "yes", false, "confirm")

	dbCMD.AddCommand(dbInfoCMD, dbQueryCMD, dbExportCMD, dbDeleteCMD, dbTruncateCMD)
}
