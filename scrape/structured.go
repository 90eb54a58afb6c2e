package scrape

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocarina/gocsv"
)

const structuredFormat = "structured_v1"

// Metadata describes one structured scrape.
type Metadata struct {
	SourceURL   string    `json:"source_url"`
	ScrapeTime  time.Time `json:"scrape_time"`
	TotalTables int       `json:"total_tables"`
	DataFormat  string    `json:"data_format"`
}

// Table is one HTML table with its rows keyed by column name.
type Table struct {
	Index    int                 `json:"table_index"`
	Columns  []string            `json:"columns"`
	RowCount int                 `json:"row_count"`
	Data     []map[string]string `json:"data"`
	rows     [][]string
}

// Page is every table of a scraped page.
type Page struct {
	Metadata Metadata `json:"metadata"`
	Tables   []Table  `json:"tables"`
}

// ParseTables turns every table of page into a Table. Tables without rows
// of at least two cells are left out.
func ParseTables(page []byte, sourceURL string, now time.Time) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	tables := doc.Find("table")
	out := Page{
		Metadata: Metadata{
			SourceURL:   sourceURL,
			ScrapeTime:  now,
			TotalTables: tables.Length(),
			DataFormat:  structuredFormat,
		},
	}
	tables.Each(func(i int, s *goquery.Selection) {
		if t, ok := parseTable(s, i+1); ok {
			out.Tables = append(out.Tables, t)
		}
	})
	return out, nil
}

func parseTable(s *goquery.Selection, index int) (Table, bool) {
	var header []string
	var rows [][]string
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if header == nil && tr.Find("td").Length() == 0 && tr.Find("th").Length() > 0 {
			header = cellTexts(tr.Find("th"))
			return
		}
		cells := cellTexts(tr.Find("td, th"))
		if len(cells) > 1 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return Table{}, false
	}
	if len(header) == 0 {
		header = genericColumns(len(rows[0]))
	}

	t := Table{Index: index, Columns: header, RowCount: len(rows), rows: rows}
	for _, row := range rows {
		names := header
		if len(row) != len(header) {
			names = genericColumns(len(row))
		}
		rec := make(map[string]string, len(row))
		for j, v := range row {
			rec[names[j]] = v
		}
		t.Data = append(t.Data, rec)
	}
	return t, true
}

func genericColumns(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "Column_" + strconv.Itoa(i+1)
	}
	return out
}

// WriteCSV writes the table with its header. Rows whose width differs from
// the header are written as they are.
func (t Table) WriteCSV(w io.Writer) error {
	cw := gocsv.DefaultCSVWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.records() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t Table) records() [][]string {
	if t.rows != nil {
		return t.rows
	}
	out := make([][]string, 0, len(t.Data))
	for _, rec := range t.Data {
		row := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = rec[c]
		}
		out = append(out, row)
	}
	return out
}
