package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const optionExport = "臺指選擇權每日交易行情,,,,,\n" +
	"交易日期,契約,到期月份(週別),履約價,買賣權,未沖銷契約數\n" +
	"2024/01/15,TXO,202401,17500,買權,100\n" +
	"2024/01/15,TXO,202401,17500,賣權,-\n"

func TestLoaderPicksKeywordHeaderRow(t *testing.T) {
	path := writeFile(t, "txo.csv", optionExport)

	src, err := NewLoader(OptionProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 1, src.HeaderRow)
	assert.Equal(t, "utf-8", src.Encoding)
	assert.Equal(t, ',', src.Delimiter)
	assert.Equal(t, []string{"交易日期", "契約", "到期月份(週別)", "履約價", "買賣權", "未沖銷契約數"}, src.Header)
	require.Len(t, src.Preamble, 1)
	assert.Equal(t, "臺指選擇權每日交易行情", src.Preamble[0][0])

	rows, err := src.ReadChunk(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "-", rows[1][5])

	_, err = src.ReadChunk(10)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestLoaderReadsBig5(t *testing.T) {
	encoded, err := traditionalchinese.Big5.NewEncoder().String(optionExport)
	require.NoError(t, err)
	path := writeFile(t, "big5.csv", encoded)

	src, err := NewLoader(OptionProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "big5", src.Encoding)
	assert.Equal(t, "履約價", src.Header[3])
}

func TestLoaderStripsBOMAndTabs(t *testing.T) {
	content := "\ufeff交易日期\t履約價\t買賣權\t未沖銷契約數\n2024/01/15\t17500\tCall\t12\n"
	path := writeFile(t, "tab.csv", content)

	src, err := NewLoader(OptionProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "utf-8-sig", src.Encoding)
	assert.Equal(t, '\t', src.Delimiter)
	assert.Equal(t, 0, src.HeaderRow)
	assert.Equal(t, "交易日期", src.Header[0])
}

func TestLoaderDropsEmptyColumnsAndNamesBlankHeaders(t *testing.T) {
	content := "date,,close,unused,\n2024-01-02,x,10,,\n2024-01-03,y,11,,\n"
	path := writeFile(t, "blank.csv", content)

	src, err := NewLoader(ImportProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, []string{"date", emptyColumnName, "close", "unused"}, src.Header)

	rows, err := src.ReadChunk(1)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2024-01-02", "x", "10", ""}}, rows)
}

func TestLoaderKeepsNamedColumnFilledAfterSample(t *testing.T) {
	var b strings.Builder
	b.WriteString("date,close,note\n")
	total := sampleRecords + 50
	for i := range total {
		note := ""
		if i >= sampleRecords+10 {
			note = fmt.Sprintf("n%d", i)
		}
		fmt.Fprintf(&b, "2024-01-%02d,%d,%s\n", i%28+1, 100+i, note)
	}
	path := writeFile(t, "late.csv", b.String())

	src, err := NewLoader(ImportProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, []string{"date", "close", "note"}, src.Header)

	var rows [][]string
	for {
		chunk, err := src.ReadChunk(64)
		rows = append(rows, chunk...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	require.Len(t, rows, total)
	assert.Equal(t, "", rows[0][2])
	assert.Equal(t, fmt.Sprintf("n%d", total-1), rows[total-1][2])
}

func TestLoaderReportsDiagnostics(t *testing.T) {
	path := writeFile(t, "junk.csv", "foo\nbar\n")

	_, err := NewLoader(OptionProfile).Open(path)
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotEmpty(t, loadErr.Attempts)
	assert.Equal(t, []string{"foo", "bar"}, loadErr.Sample)

	report := loadErr.Report()
	assert.Contains(t, report, "DIAGNOSTIC REPORT")
	assert.Contains(t, report, "tokenization preview")
}

func TestLoaderLenientProfileAcceptsAnyTable(t *testing.T) {
	path := writeFile(t, "plain.csv", "a,b\n1,2\n")

	src, err := NewLoader(ImportProfile).Open(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{"a", "b"}, src.Header)
}

func TestSniffDelimiters(t *testing.T) {
	assert.Equal(t, []rune{','}, sniffDelimiters("abc"))
	assert.Equal(t, []rune{'\t', ';', ','}, sniffDelimiters("a\tb;c"))
	assert.Equal(t, []rune{',', '|'}, sniffDelimiters("a,b|c"))
}

func TestResolveColumns(t *testing.T) {
	header := []string{"交易日期", "契約", "到期月份(週別)", "履約價", "買賣權", "開盤價", "最高價", "最低價", "收盤價", "成交量", "結算價", "未沖銷契約數", "歷史最高價", "交易時段"}
	cols := ResolveColumns(header)

	assert.Equal(t, 0, cols[FieldDate])
	assert.Equal(t, 1, cols[FieldProduct])
	assert.Equal(t, 2, cols[FieldExpiry])
	assert.Equal(t, 3, cols[FieldStrike])
	assert.Equal(t, 4, cols[FieldCP])
	assert.Equal(t, 5, cols[FieldOpen])
	assert.Equal(t, 6, cols[FieldHigh])
	assert.Equal(t, 8, cols[FieldClose])
	assert.Equal(t, 9, cols[FieldVolume])
	assert.Equal(t, 10, cols[FieldSettlement])
	assert.Equal(t, 11, cols[FieldOI])
	assert.Equal(t, 13, cols[FieldSession])
	assert.False(t, cols.Has(FieldSymbol))
}

func TestReadOptions(t *testing.T) {
	path := writeFile(t, "txo.csv", optionExport+"bad,TXO,202401,17500,買權,1\n")

	rows, invalid, err := ReadOptions(path, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, "TXO", rows[0].Product)
	require.NotNil(t, rows[0].OI)
	assert.EqualValues(t, 100, *rows[0].OI)
	assert.Nil(t, rows[1].OI)
}
