package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viktsys/twmarket/scrape"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"import"},
		{"ingest"},
		{"oi", "report"},
		{"oi", "load-csv"},
		{"txo", "download"},
		{"scrape", "catalog"},
		{"prices", "list", "import"},
		{"backtest"},
		{"db", "truncate"},
		{"server"},
	} {
		c, _, err := rootCMD.Find(path)
		require.NoError(t, err, path)
		assert.NotEqual(t, rootCMD, c, path)
	}
}

func TestParseDayFlag(t *testing.T) {
	d, err := parseDayFlag("date", "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDayFlag("date", "2024/01/16")
	require.NoError(t, err)
	assert.True(t, d.Equal(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)))

	_, err = parseDayFlag("from", "someday")
	assert.ErrorContains(t, err, "--from")
}

func TestWriteTableCSVs(t *testing.T) {
	log = logrus.New()
	log.SetOutput(io.Discard)

	page, err := scrape.ParseTables([]byte(`<html><body>
<table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr></table>
<table><tr><td>x</td><td>y</td></tr></table>
</body></html>`), "https://example.com", time.Now())
	require.NoError(t, err)
	require.Len(t, page.Tables, 2)

	dir := t.TempDir()
	require.NoError(t, writeTableCSVs(filepath.Join(dir, "out.csv"), page.Tables))

	first, err := os.ReadFile(filepath.Join(dir, "out_table1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(first))
	assert.FileExists(t, filepath.Join(dir, "out_table2.csv"))
}
