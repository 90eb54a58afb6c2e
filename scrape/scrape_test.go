package scrape

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "twmarket-test", DownloadRetries: 1}
}

const txoPage = `<html><body>
<table><tr><td>header nav</td></tr></table>
<table class="table_c">
<thead>
<tr><th colspan="5">TXO 臺指選擇權</th></tr>
<tr><th>契約</th><th>到期月份(週別)</th><th>履約價</th><th>買賣權</th><th>開盤價</th><th>最高價</th><th>最低價</th><th>最後成交價</th><th>結算價</th><th>漲跌價</th><th>漲跌%</th><th>成交量</th><th>成交量</th><th>未沖銷契約量</th><th>歷史最高價</th><th></th></tr>
</thead>
<tbody>
<tr><td>TXO</td><td>202401</td><td>17,500</td><td>買權</td><td>120</td><td>150</td><td>100</td><td>130</td><td>131</td><td>▲10</td><td>▲8.33%</td><td>1,234</td><td>10</td><td>5,678</td><td>900</td><td>x</td></tr>
<tr><td>TXO</td><td>202401</td><td>17,500</td><td>賣權</td><td>-</td><td>--</td><td>80</td><td>90</td><td>91</td><td>▼5</td><td>▼5.26%</td><td>321</td><td>3</td><td>4,321</td><td>800</td><td>y</td></tr>
<tr><td>小計</td><td></td><td></td><td></td></tr>
</tbody>
</table></body></html>`

func TestParseTXOReport(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	quotes, err := ParseTXOReport([]byte(txoPage), date)
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	call := quotes[0]
	assert.Equal(t, date, call.TradeDate)
	assert.Equal(t, "TXO", call.ContractType)
	assert.Equal(t, "202401", call.ExpiryDate)
	assert.Equal(t, 17500.0, call.StrikePrice)
	assert.Equal(t, "買權", call.OptionType)
	require.NotNil(t, call.HighPrice)
	assert.Equal(t, 150.0, *call.HighPrice)
	require.NotNil(t, call.HistoricalHigh)
	assert.Equal(t, 900.0, *call.HistoricalHigh)
	require.NotNil(t, call.OpenInterest)
	assert.EqualValues(t, 5678, *call.OpenInterest)
	require.NotNil(t, call.ChangePrice)
	assert.Equal(t, 10.0, *call.ChangePrice)

	put := quotes[1]
	assert.Nil(t, put.OpenPrice)
	assert.Nil(t, put.HighPrice)
	require.NotNil(t, put.ChangePrice)
	assert.Equal(t, -5.0, *put.ChangePrice)
	require.NotNil(t, put.ChangePercent)
	assert.Equal(t, -5.26, *put.ChangePercent)
}

func TestParseTXOReportWithoutTable(t *testing.T) {
	_, err := ParseTXOReport([]byte("<table><tr><td>nothing</td></tr></table>"), time.Now())
	assert.True(t, errors.Is(err, ErrNoTable))
}

func TestDedupeAndFitHeaders(t *testing.T) {
	assert.Equal(t, []string{"a", "a_1", "Column_2", "a_2"}, dedupeHeaders([]string{"a", "a", "", "a"}))
	assert.Equal(t, []string{"a", "b"}, fitHeaders([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{"a", "Column_1", "Column_2"}, fitHeaders([]string{"a"}, 3))
}

func TestTXOReportFetchPostsForm(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = map[string]string{
			"queryDate":    r.PostForm.Get("queryDate"),
			"commodity_id": r.PostForm.Get("commodity_id"),
			"queryType":    r.PostForm.Get("queryType"),
			"ua":           r.UserAgent(),
		}
		_, _ = io.WriteString(w, txoPage)
	}))
	defer srv.Close()

	report := NewTXOReport(NewClient(testHTTPConfig(), "taifex", quietLogger()), srv.URL)
	quotes, err := report.Fetch(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, "2024/01/15", form["queryDate"])
	assert.Equal(t, "TXO", form["commodity_id"])
	assert.Equal(t, "2", form["queryType"])
	assert.Equal(t, "twmarket-test", form["ua"])
}

func TestClientDecodesBig5AndReportsStatus(t *testing.T) {
	big5, err := traditionalchinese.Big5.NewEncoder().String("<p>臺指選擇權</p>")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=big5")
		_, _ = io.WriteString(w, big5)
	}))
	defer srv.Close()

	c := NewClient(testHTTPConfig(), "test", quietLogger())
	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>臺指選擇權</p>", string(body))

	_, err = c.Get(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestParseTables(t *testing.T) {
	page := `<table>
<tr><th>日期</th><th>收盤</th></tr>
<tr><td>2024/01/02</td><td>593</td></tr>
<tr><td>2024/01/03</td><td>578</td><td>extra</td></tr>
<tr><td>only</td></tr>
</table>
<table><tr><td>single</td></tr></table>`
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	p, err := ParseTables([]byte(page), "http://x", now)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Metadata.TotalTables)
	assert.Equal(t, "structured_v1", p.Metadata.DataFormat)
	require.Len(t, p.Tables, 1)

	tbl := p.Tables[0]
	assert.Equal(t, 1, tbl.Index)
	assert.Equal(t, []string{"日期", "收盤"}, tbl.Columns)
	assert.Equal(t, 2, tbl.RowCount)
	assert.Equal(t, "593", tbl.Data[0]["收盤"])
	assert.Equal(t, "extra", tbl.Data[1]["Column_3"])

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "日期,收盤\n2024/01/02,593\n"))
}

func TestAnalyzeLinks(t *testing.T) {
	page := `<html><body>
<a href="/file/daily.csv">每日資料</a>
<a href="/about">About us</a>
<a href="https://other.example/x">下載</a>
<form action="/cht/3/dlOptDataDown" method="post"><input type="text" name="queryDate" value="2024/01/02"><select name="commodity_id"></select></form>
<form><input name="q"></form>
<script>function go(){ window.location = '/getData?x=1'; }</script>
<script>console.log('hi')</script>
</body></html>`
	now := time.Now()

	a, err := AnalyzeLinks([]byte(page), "https://www.taifex.com.tw/cht/3/", now)
	require.NoError(t, err)

	require.Len(t, a.Links, 2)
	assert.Equal(t, "https://www.taifex.com.tw/file/daily.csv", a.Links[0].URL)
	assert.Equal(t, "csv", a.Links[0].Keyword)
	assert.Equal(t, "下載", a.Links[1].Keyword)

	require.Len(t, a.Forms, 2)
	assert.True(t, a.Forms[0].LikelyDownload)
	assert.Equal(t, "POST", a.Forms[0].Method)
	assert.Len(t, a.Forms[0].Inputs, 2)
	assert.False(t, a.Forms[1].LikelyDownload)
	assert.Equal(t, "GET", a.Forms[1].Method)
	assert.Equal(t, "https://www.taifex.com.tw/cht/3/", a.Forms[1].FullURL)

	require.Len(t, a.Scripts, 1)
	assert.Equal(t, "getdata", a.Scripts[0].Keyword)

	assert.Len(t, a.TableLinks(), 2)
}

func TestCatalog(t *testing.T) {
	sources, err := Catalog()
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	assert.Equal(t, "taifex", sources[0].Category)

	u, err := ResolveTarget("HF-選擇權日報表")
	require.NoError(t, err)
	assert.Equal(t, TXOReportURL, u)

	u, err = ResolveTarget("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", u)

	_, err = ResolveTarget("nope")
	assert.Error(t, err)
}

type fakeTXOStore struct {
	mu       sync.Mutex
	complete map[time.Time]bool
	replaced map[time.Time]int
}

func (f *fakeTXOStore) TXODayComplete(_ context.Context, d time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete[d], nil
}

func (f *fakeTXOStore) ReplaceTXODay(_ context.Context, d time.Time, q []models.TXODailyQuote) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced[d] = len(q)
	return int64(len(q)), nil
}

type fakeFetcher struct {
	fail    map[time.Time]bool
	release chan struct{}
}

func (f fakeFetcher) Fetch(_ context.Context, d time.Time) ([]models.TXODailyQuote, error) {
	if f.release != nil {
		<-f.release
	}
	if f.fail[d] {
		return nil, ErrNoRows
	}
	return []models.TXODailyQuote{{TradeDate: d}, {TradeDate: d}}, nil
}

func date(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestRangeDownloader(t *testing.T) {
	// 2024-01-12 is a Friday; 13 and 14 are the weekend.
	store := &fakeTXOStore{
		complete: map[time.Time]bool{date(11): true},
		replaced: map[time.Time]int{},
	}
	fetcher := fakeFetcher{fail: map[time.Time]bool{date(15): true}}

	job := NewRangeDownloader(fetcher, store, 2, quietLogger()).Start(context.Background(), date(10), date(15), false)

	statuses := map[time.Time]string{}
	for p := range job.Progress() {
		statuses[p.Date] = p.Status
		assert.Equal(t, 6, p.Total)
	}
	summary, err := job.Wait()
	require.NoError(t, err)

	assert.Equal(t, StatusWeekend, statuses[date(13)])
	assert.Equal(t, StatusSkipped, statuses[date(11)])
	assert.Equal(t, StatusFailed, statuses[date(15)])
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []time.Time{date(15)}, summary.FailedDates)
	assert.Equal(t, 2, store.replaced[date(12)])
	assert.NotContains(t, store.replaced, date(11))
}

func TestRangeDownloaderForceAndStop(t *testing.T) {
	store := &fakeTXOStore{complete: map[time.Time]bool{date(11): true}, replaced: map[time.Time]int{}}
	job := NewRangeDownloader(fakeFetcher{}, store, 1, quietLogger()).Start(context.Background(), date(11), date(11), true)
	for range job.Progress() {
	}
	summary, err := job.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)

	release := make(chan struct{})
	blocking := NewRangeDownloader(fakeFetcher{release: release}, store, 1, quietLogger())
	job = blocking.Start(context.Background(), date(1), date(31), false)
	job.Stop()
	close(release)

	var seen int
	for range job.Progress() {
		seen++
	}
	_, err = job.Wait()
	assert.True(t, errors.Is(err, ErrStopped))
	assert.Less(t, seen, 31)
}

func TestDates(t *testing.T) {
	got := Dates(date(3), date(1))
	assert.Empty(t, got)
	got = Dates(date(1), date(3))
	assert.Equal(t, []time.Time{date(3), date(2), date(1)}, got)
}
