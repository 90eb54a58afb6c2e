package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/export"
	"github.com/viktsys/twmarket/scrape"
)

var (
	scrapeJSON string
	scrapeCSV  string
)

var scrapeCMD = &cobra.Command{
	Use:   "scrape",
	Short: "Extract tables and download links from market web pages",
}

var scrapeFetchCMD = &cobra.Command{
	Use:   "fetch <url|source>",
	Short: "Fetch a page and extract every table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := scrape.ResolveTarget(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := interruptible(cmd)
		defer cancel()

		body, err := scrape.NewClient(cfg.HTTP, "web", log).Get(ctx, target)
		if err != nil {
			return err
		}
		page, err := scrape.ParseTables(body, target, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d tables, %d with data\n", target, page.Metadata.TotalTables, len(page.Tables))
		for _, t := range page.Tables {
			fmt.Fprintf(out, "  table %d: %d rows, columns %s\n", t.Index, t.RowCount, strings.Join(t.Columns, ", "))
		}

		if scrapeJSON != "" {
			if err := writeJSONFile(scrapeJSON, page); err != nil {
				return err
			}
			log.Infof("wrote %s", scrapeJSON)
		}
		if scrapeCSV != "" {
			return writeTableCSVs(scrapeCSV, page.Tables)
		}
		return nil
	},
}

var scrapeLinksCMD = &cobra.Command{
	Use:   "links <url|source>",
	Short: "List download links, forms and scripts of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := scrape.ResolveTarget(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := interruptible(cmd)
		defer cancel()

		body, err := scrape.NewClient(cfg.HTTP, "web", log).Get(ctx, target)
		if err != nil {
			return err
		}
		analysis, err := scrape.AnalyzeLinks(body, target, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		links := export.Table{Header: []string{"type", "keyword", "text", "url"}}
		for _, l := range analysis.Links {
			links.Rows = append(links.Rows, []string{l.Type, l.Keyword, l.Text, l.URL})
		}
		export.Render(out, links)

		for _, f := range analysis.Forms {
			fmt.Fprintf(out, "form %s %s (%d inputs, download: %t)\n", f.Method, f.FullURL, len(f.Inputs), f.LikelyDownload)
		}
		for _, s := range analysis.Scripts {
			fmt.Fprintf(out, "script [%s] %s\n", s.Keyword, s.Snippet)
		}
		fmt.Fprintf(out, "%d links (%d likely tabular), %d forms, %d scripts\n",
			len(analysis.Links), len(analysis.TableLinks()), len(analysis.Forms), len(analysis.Scripts))

		if scrapeJSON != "" {
			return writeJSONFile(scrapeJSON, analysis)
		}
		return nil
	},
}

var scrapeCatalogCMD = &cobra.Command{
	Use:   "catalog",
	Short: "List the built-in market data sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := scrape.Catalog()
		if err != nil {
			return err
		}
		t := export.Table{Header: []string{"category", "name", "url"}}
		for _, s := range sources {
			t.Rows = append(t.Rows, []string{s.Category, s.Name, s.URL})
		}
		export.Render(cmd.OutOrStdout(), t)
		return nil
	},
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return encodeJSON(f, v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTableCSVs writes one file per table. With several tables the index is
// added before the extension.
func writeTableCSVs(path string, tables []scrape.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for _, t := range tables {
		name := path
		if len(tables) > 1 {
			name = base + "_table" + strconv.Itoa(t.Index) + ext
		}
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		err = t.WriteCSV(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		log.Infof("wrote %s", name)
	}
	return nil
}

func init() {
	scrapeFetchCMD.Flags().StringVar(&scrapeJSON, "json", "", "write the structured result as JSON")
	scrapeFetchCMD.Flags().StringVar(&scrapeCSV, "csv", "", "write each table as CSV")
	scrapeLinksCMD.Flags().StringVar(&scrapeJSON, "json", "", "write the analysis as JSON")

	scrapeCMD.AddCommand(scrapeFetchCMD, scrapeLinksCMD, scrapeCatalogCMD)
}
