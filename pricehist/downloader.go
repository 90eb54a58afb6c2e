package pricehist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/viktsys/twmarket/database"
	"github.com/viktsys/twmarket/metrics"
	"github.com/viktsys/twmarket/models"
)

// ErrStopped is returned by Wait when Stop ended a batch early.
var ErrStopped = errors.New("download stopped")

// Source serves price history.
type Source interface {
	History(ctx context.Context, symbol, period, interval string) ([]Bar, error)
}

// Store keeps downloaded bars and the download log.
type Store interface {
	BarCoverage(ctx context.Context, kind database.BarKind, symbol, interval string) (database.Coverage, error)
	InsertStockBars(ctx context.Context, bars []models.StockBar) (int64, error)
	InsertDerivativeBars(ctx context.Context, bars []models.DerivativeBar) (int64, error)
	LogDownload(ctx context.Context, entry *models.DownloadLog) error
}

// Task outcomes.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Request describes one batch.
type Request struct {
	Symbols      []string
	Kind         database.BarKind
	Market       Market
	AllIntervals bool
}

func (r Request) intervals() []Interval {
	if r.AllIntervals {
		return Intervals
	}
	return []Interval{{Interval: "1d", Period: "max", Name: "1日"}}
}

// Progress reports one finished symbol and interval.
type Progress struct {
	Symbol   string
	Interval string
	Status   string
	Message  string
	Rows     int64
	Err      error
	Done     int
	Total    int
}

type Summary struct {
	RunID   string
	Success int
	Failed  int
	Skipped int
}

type Downloader struct {
	source Source
	store  Store
	log    *logrus.Entry
	now    func() time.Time
}

func NewDownloader(source Source, store Store, log *logrus.Logger) *Downloader {
	return &Downloader{
		source: source,
		store:  store,
		log:    log.WithField("component", "pricehist"),
		now:    time.Now,
	}
}

// Job is a running batch.
type Job struct {
	progress chan Progress
	done     chan struct{}
	stopped  atomic.Bool

	mu      sync.Mutex
	summary Summary
	err     error
}

func (j *Job) Progress() <-chan Progress { return j.progress }

// Stop ends the batch before its next task.
func (j *Job) Stop() { j.stopped.Store(true) }

func (j *Job) Wait() (Summary, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary, j.err
}

// Start runs the batch in a worker goroutine, one task at a time.
func (d *Downloader) Start(ctx context.Context, req Request) *Job {
	intervals := req.intervals()
	total := len(req.Symbols) * len(intervals)
	job := &Job{
		progress: make(chan Progress, total),
		done:     make(chan struct{}),
	}
	job.summary.RunID = uuid.NewString()

	go func() {
		defer close(job.done)
		defer close(job.progress)

		done := 0
	symbols:
		for _, symbol := range req.Symbols {
			for _, iv := range intervals {
				if job.stopped.Load() {
					d.finish(job, ErrStopped)
					return
				}
				if ctx.Err() != nil {
					break symbols
				}
				p := d.task(ctx, job.summary.RunID, req, symbol, iv)
				done++
				p.Done, p.Total = done, total
				job.record(p)
				job.progress <- p
			}
		}
		d.finish(job, ctx.Err())
	}()
	return job
}

func (d *Downloader) finish(job *Job, err error) {
	job.mu.Lock()
	job.err = err
	s := job.summary
	job.mu.Unlock()
	d.log.WithFields(logrus.Fields{
		"run_id":  s.RunID,
		"success": s.Success,
		"failed":  s.Failed,
		"skipped": s.Skipped,
	}).Info("batch finished")
}

func (j *Job) record(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch p.Status {
	case StatusSuccess:
		j.summary.Success++
	case StatusSkipped:
		j.summary.Skipped++
	case StatusFailed:
		j.summary.Failed++
	}
}

func (d *Downloader) task(ctx context.Context, runID string, req Request, symbol string, iv Interval) Progress {
	p := Progress{Symbol: symbol, Interval: iv.Interval}
	log := d.log.WithFields(logrus.Fields{"symbol": symbol, "interval": iv.Interval})
	kind := string(req.Kind)

	remote := symbol
	if req.Kind == database.StockBars {
		remote = YahooSymbol(symbol, req.Market)
	}
	if !ValidSymbol(remote) {
		return d.failed(ctx, runID, req, p, fmt.Errorf("invalid symbol %q", remote), log)
	}

	cov, err := d.store.BarCoverage(ctx, req.Kind, symbol, iv.Interval)
	if err != nil {
		return d.failed(ctx, runID, req, p, err, log)
	}
	need, reason := NeedsDownload(cov, d.now())
	if !need {
		p.Status, p.Message = StatusSkipped, reason
		metrics.RecordDownload(kind, StatusSkipped, 0)
		return p
	}
	log.WithField("reason", reason).Debug("downloading")

	bars, err := d.source.History(ctx, remote, iv.Period, iv.Interval)
	if err != nil {
		return d.failed(ctx, runID, req, p, err, log)
	}
	if !Complete(bars, iv.Interval) {
		return d.failed(ctx, runID, req, p, fmt.Errorf("incomplete series (%d bars)", len(bars)), log)
	}

	n, err := d.save(ctx, req.Kind, symbol, iv.Interval, bars)
	if err != nil {
		return d.failed(ctx, runID, req, p, err, log)
	}

	p.Status, p.Rows = StatusSuccess, n
	p.Message = fmt.Sprintf("%d new bars", n)
	if n == 0 {
		p.Message = "no new bars"
	}
	metrics.RecordDownload(kind, StatusSuccess, n)
	d.logTask(ctx, runID, req, symbol, iv.Interval, bars, n, StatusSuccess, "")
	return p
}

func (d *Downloader) failed(ctx context.Context, runID string, req Request, p Progress, err error, log *logrus.Entry) Progress {
	log.WithError(err).Warn("download failed")
	p.Status, p.Err, p.Message = StatusFailed, err, err.Error()
	metrics.RecordDownload(string(req.Kind), StatusFailed, 0)
	d.logTask(ctx, runID, req, p.Symbol, p.Interval, nil, 0, StatusFailed, err.Error())
	return p
}

func (d *Downloader) save(ctx context.Context, kind database.BarKind, symbol, interval string, bars []Bar) (int64, error) {
	if kind == database.DerivativeBars {
		rows := make([]models.DerivativeBar, 0, len(bars))
		for _, b := range bars {
			if b.Missing {
				continue
			}
			rows = append(rows, models.DerivativeBar{
				Symbol: symbol, Date: b.Time, Interval: interval,
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
			})
		}
		return d.store.InsertDerivativeBars(ctx, rows)
	}

	rows := make([]models.StockBar, 0, len(bars))
	for _, b := range bars {
		if b.Missing {
			continue
		}
		rows = append(rows, models.StockBar{
			StockID: symbol, Date: b.Time, Interval: interval,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	return d.store.InsertStockBars(ctx, rows)
}

func (d *Downloader) logTask(ctx context.Context, runID string, req Request, symbol, interval string, bars []Bar, n int64, status, msg string) {
	entry := &models.DownloadLog{
		RunID:             runID,
		TaskType:          string(req.Kind),
		Symbol:            symbol,
		Interval:          interval,
		RecordsDownloaded: int(n),
		Status:            status,
		ErrorMessage:      msg,
	}
	if len(bars) > 0 {
		first, last := bars[0].Time, bars[len(bars)-1].Time
		entry.StartDate, entry.EndDate = &first, &last
	}
	if err := d.store.LogDownload(ctx, entry); err != nil {
		d.log.WithError(err).Warn("could not write download log")
	}
}
