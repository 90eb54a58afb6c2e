package pricehist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/database"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// chartJSON builds a daily chart of n bars starting at start; closes listed
// in nullCloses are null.
func chartJSON(start time.Time, n int, nullCloses map[int]bool) string {
	var ts, opens, closes, vols []string
	for i := 0; i < n; i++ {
		ts = append(ts, fmt.Sprint(start.AddDate(0, 0, i).Unix()))
		opens = append(opens, fmt.Sprint(100+i))
		if nullCloses[i] {
			closes = append(closes, "null")
		} else {
			closes = append(closes, fmt.Sprint(101+i))
		}
		vols = append(vols, "1000")
	}
	join := func(v []string) string { return strings.Join(v, ",") }
	return `{"chart":{"result":[{"timestamp":[` + join(ts) + `],"indicators":{"quote":[{"open":[` + join(opens) +
		`],"high":[` + join(opens) + `],"low":[` + join(opens) + `],"close":[` + join(closes) + `],"volume":[` + join(vols) + `]}]}}],"error":null}}`
}

func testClient(url string, retries int) *Client {
	c := NewClient(config.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "twmarket-test", DownloadRetries: retries}, url, quietLogger())
	c.RetryInterval = time.Millisecond
	return c
}

func TestClientHistory(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		_, _ = io.WriteString(w, chartJSON(start, 3, map[int]bool{1: true}))
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL+"/chart/", 1).History(context.Background(), "2330.TW", "max", "1d")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "/chart/2330.TW", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "range=max")
	assert.Equal(t, start, bars[0].Time)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.True(t, bars[1].Missing)
	assert.EqualValues(t, 1000, bars[2].Volume)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, chartJSON(time.Now(), 1, nil))
	}))
	defer srv.Close()

	bars, err := testClient(srv.URL+"/", 3).History(context.Background(), "ES=F", "7d", "1m")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientNoDataIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL+"/", 3).History(context.Background(), "XXXX", "max", "1d")
	assert.True(t, errors.Is(err, ErrNoData))
	assert.EqualValues(t, 1, calls.Load())
}

func TestNeedsDownload(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	recent := now.AddDate(0, 0, -2)
	old := now.AddDate(0, 0, -30)

	need, reason := NeedsDownload(database.Coverage{}, now)
	assert.True(t, need)
	assert.Equal(t, "no data", reason)

	need, reason = NeedsDownload(database.Coverage{Years: []int{2022, 2024}, Latest: &recent}, now)
	assert.True(t, need)
	assert.Contains(t, reason, "2023")

	need, _ = NeedsDownload(database.Coverage{Years: []int{2023, 2024}, Latest: &old}, now)
	assert.True(t, need)

	need, _ = NeedsDownload(database.Coverage{Years: []int{2023, 2024}, Latest: &recent}, now)
	assert.False(t, need)
}

func daily(n int, missing int) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Time: start.AddDate(0, 0, i*4), Close: 1, Missing: i < missing}
	}
	return bars
}

func TestComplete(t *testing.T) {
	assert.False(t, Complete(daily(9, 0), "1d"))
	assert.True(t, Complete(daily(10, 0), "1d"))
	assert.True(t, Complete(daily(10, 1), "1d"))
	assert.False(t, Complete(daily(10, 2), "1d"))

	short := daily(10, 0)
	for i := range short {
		short[i].Time = short[0].Time.Add(time.Duration(i) * time.Hour)
	}
	assert.False(t, Complete(short, "1d"))
	assert.True(t, Complete(short, "1h"))
}

func TestSymbols(t *testing.T) {
	assert.Equal(t, "2330.TW", YahooSymbol("2330", MarketTW))
	assert.Equal(t, "6488.TWO", YahooSymbol("6488.TWO", MarketTW))
	assert.Equal(t, "AAPL", YahooSymbol("AAPL", MarketUS))

	assert.True(t, ValidSymbol("2330.TW"))
	assert.True(t, ValidSymbol("ES=F"))
	assert.False(t, ValidSymbol("ABC.TW"))
	assert.False(t, ValidSymbol("N/A"))
}

type fakeSource struct {
	bars  map[string][]Bar
	calls atomic.Int32
}

func (f *fakeSource) History(_ context.Context, symbol, _, interval string) ([]Bar, error) {
	f.calls.Add(1)
	bars, ok := f.bars[symbol+"|"+interval]
	if !ok {
		return nil, ErrNoData
	}
	return bars, nil
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(config.DatabaseConfig{
		Driver:        "sqlite",
		Path:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		SlowThreshold: time.Second,
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDownloaderBatch(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{bars: map[string][]Bar{"2330.TW|1d": daily(12, 1)}}
	d := NewDownloader(src, store, quietLogger())
	d.now = func() time.Time { return time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	job := d.Start(ctx, Request{Symbols: []string{"2330", "9999"}, Kind: database.StockBars, Market: MarketTW})
	var events []Progress
	for p := range job.Progress() {
		events = append(events, p)
	}
	summary, err := job.Wait()
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, StatusSuccess, events[0].Status)
	assert.EqualValues(t, 11, events[0].Rows)
	assert.Equal(t, 2, events[1].Total)
	assert.Equal(t, StatusFailed, events[1].Status)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.RunID)

	logs, err := store.DownloadLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, summary.RunID, logs[0].RunID)

	// the stored series ends 2024-02-14, within a week of now
	job = d.Start(ctx, Request{Symbols: []string{"2330"}, Kind: database.StockBars, Market: MarketTW})
	for range job.Progress() {
	}
	summary, err = job.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestDownloaderStop(t *testing.T) {
	d := NewDownloader(&fakeSource{}, newTestStore(t), quietLogger())
	job := d.Start(context.Background(), Request{Symbols: []string{"A", "B", "C"}, Kind: database.DerivativeBars, AllIntervals: true})
	job.Stop()
	for range job.Progress() {
	}
	_, err := job.Wait()
	// the batch may finish before Stop lands; either outcome is a clean end
	if err != nil {
		assert.True(t, errors.Is(err, ErrStopped))
	}
}

func TestReadStockList(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	utf := filepath.Join(dir, "list.csv")
	require.NoError(t, os.WriteFile(utf, []byte("\xef\xbb\xbf證券代號,證券名稱,產業別\n2330,台積電,半導體\n證券代號,證券名稱,產業別\n2317,鴻海,電子\n"), 0o644))

	list, err := ReadStockList(utf, now)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2330", list[0].StockID)
	assert.Equal(t, "台積電", list[0].Name)
	assert.Equal(t, "上市", list[0].Market)
	assert.Equal(t, "半導體", list[0].Industry)
	assert.Equal(t, "manual_csv", list[0].DataSource)

	encoded, err := traditionalchinese.Big5.NewEncoder().String("code,name,market\n2454,聯發科,上市\n")
	require.NoError(t, err)
	big5 := filepath.Join(dir, "big5.csv")
	require.NoError(t, os.WriteFile(big5, []byte(encoded), 0o644))

	list, err = ReadStockList(big5, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "聯發科", list[0].Name)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n1,2\n"), 0o644))
	_, err = ReadStockList(bad, now)
	assert.Error(t, err)
}
