package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func int64p(v int64) *int64 { return &v }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := database.Open(config.DatabaseConfig{
		Driver:        "sqlite",
		Path:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		SlowThreshold: time.Second,
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.InsertOptions(context.Background(), []models.OptionRaw{
		{Product: "TXO", TradeDate: day(15), Expiry: "202401", Strike: 17500, CP: "C", OI: int64p(100), Session: "regular"},
		{Product: "TXO", TradeDate: day(16), Expiry: "202401", Strike: 17500, CP: "C", OI: int64p(1000), Session: "regular"},
		{Product: "TXO", TradeDate: day(16), Expiry: "202401", Strike: 17500, CP: "P", OI: int64p(50), Session: "regular"},
	})
	require.NoError(t, err)

	return SetupRoutes(store, quietLogger())
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, newTestServer(t), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetOptions(t *testing.T) {
	h := newTestServer(t)

	w := get(t, h, "/api/options?product=TXO&from=2024-01-16")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int                `json:"count"`
		Data  []models.OptionRaw `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "C", body.Data[0].CP)

	w = get(t, h, "/api/options?from=16-01-2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "YYYY-MM-DD")
}

func TestGetOIReport(t *testing.T) {
	h := newTestServer(t)

	w := get(t, h, "/api/oi/report")
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		Date      time.Time `json:"date"`
		Contracts int       `json:"contracts"`
		ATM       float64   `json:"atm"`
		Anomalies []struct {
			Delta1 int64  `json:"delta_1"`
			Label  string `json:"label"`
		} `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Date.Equal(day(16)))
	assert.Equal(t, 2, report.Contracts)
	assert.Equal(t, 17500.0, report.ATM)
	require.NotEmpty(t, report.Anomalies)
	assert.EqualValues(t, 900, report.Anomalies[0].Delta1)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/oi/report?atm=mode").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/oi/report?product=TEO").Code)
}

func TestGetDatabaseInfo(t *testing.T) {
	w := get(t, newTestServer(t), "/api/db/info")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tables []models.TableInfo `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	var options int64
	for _, info := range body.Tables {
		if info.Table == "options_raw" {
			options = info.Rows
		}
	}
	assert.EqualValues(t, 3, options)
}

func TestTXOChainRequiresDate(t *testing.T) {
	h := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/txo/chain").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/txo/chain?date=2024-01-16").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/txo/dates").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newTestServer(t), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
