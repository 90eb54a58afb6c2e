package metrics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/viktsys/twmarket/models"
)

func TestRecordImport(t *testing.T) {
	before := testutil.ToFloat64(ImportRows.WithLabelValues("options", "inserted"))

	RecordImport("options", "success", time.Second, 10, 2, 1)

	assert.Equal(t, before+10, testutil.ToFloat64(ImportRows.WithLabelValues("options", "inserted")))
}

func TestRecordHTTPRequestStatus(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("taifex", "error"))

	RecordHTTPRequest("taifex", time.Millisecond, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("taifex", "error")))
}

type fakeReporter struct {
	infos []models.TableInfo
	err   error
}

func (f fakeReporter) Info(context.Context) ([]models.TableInfo, error) {
	return f.infos, f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestTableCollector(t *testing.T) {
	c := NewTableCollector(fakeReporter{infos: []models.TableInfo{
		{Table: "options_raw", Rows: 42, Distinct: 1},
		{Table: "stocks_raw", Rows: 7, Distinct: 3},
	}}, quietLogger())

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestTableCollectorError(t *testing.T) {
	c := NewTableCollector(fakeReporter{err: errors.New("db down")}, quietLogger())

	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
