package scrape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/viktsys/twmarket/metrics"
	"github.com/viktsys/twmarket/models"
	"github.com/viktsys/twmarket/normalize"
)

// ErrStopped is returned by Wait when Stop ended a run early.
var ErrStopped = errors.New("download stopped")

// TXOStore persists downloaded report days.
type TXOStore interface {
	TXODayComplete(ctx context.Context, date time.Time) (bool, error)
	ReplaceTXODay(ctx context.Context, date time.Time, quotes []models.TXODailyQuote) (int64, error)
}

// Fetcher returns the quotes of one trading day.
type Fetcher interface {
	Fetch(ctx context.Context, date time.Time) ([]models.TXODailyQuote, error)
}

// Day outcomes reported on the progress channel.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusWeekend = "weekend"
)

// Progress is one finished date.
type Progress struct {
	Date   time.Time
	Status string
	Rows   int64
	Err    error
	Done   int
	Total  int
}

// Summary totals a range download.
type Summary struct {
	Success     int
	Skipped     int
	Failed      int
	FailedDates []time.Time
}

// RangeDownloader fetches every weekday of a date range, newest first.
type RangeDownloader struct {
	fetcher Fetcher
	store   TXOStore
	workers int
	log     *logrus.Entry
}

func NewRangeDownloader(fetcher Fetcher, store TXOStore, workers int, log *logrus.Logger) *RangeDownloader {
	return &RangeDownloader{
		fetcher: fetcher,
		store:   store,
		workers: max(workers, 1),
		log:     log.WithField("component", "txo-download"),
	}
}

// Job is a running range download.
type Job struct {
	progress chan Progress
	done     chan struct{}
	stopped  atomic.Bool

	mu      sync.Mutex
	summary Summary
	err     error
}

// Progress delivers one event per date and is closed when the job ends.
func (j *Job) Progress() <-chan Progress { return j.progress }

// Stop asks the job to finish after the dates already in flight.
func (j *Job) Stop() { j.stopped.Store(true) }

// Wait blocks until the job ends.
func (j *Job) Wait() (Summary, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary, j.err
}

// Dates lists the days from..to, newest first.
func Dates(from, to time.Time) []time.Time {
	from, to = normalize.Day(from), normalize.Day(to)
	var out []time.Time
	for d := to; !d.Before(from); d = d.AddDate(0, 0, -1) {
		out = append(out, d)
	}
	return out
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// Start launches the download. Complete days are skipped unless force.
func (r *RangeDownloader) Start(ctx context.Context, from, to time.Time, force bool) *Job {
	dates := Dates(from, to)
	job := &Job{
		progress: make(chan Progress, len(dates)),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(job.done)
		defer close(job.progress)

		var done atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)

		for _, date := range dates {
			if job.stopped.Load() || gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if job.stopped.Load() {
					return nil
				}
				p := r.day(gctx, date, force)
				p.Done = int(done.Add(1))
				p.Total = len(dates)
				job.record(p)
				job.progress <- p
				return nil
			})
		}

		err := g.Wait()
		if err == nil {
			err = ctx.Err()
		}
		if err == nil && job.stopped.Load() {
			err = ErrStopped
		}

		job.mu.Lock()
		job.err = err
		s := job.summary
		job.mu.Unlock()

		r.log.WithFields(logrus.Fields{
			"success": s.Success,
			"skipped": s.Skipped,
			"failed":  s.Failed,
		}).Info("download finished")
	}()
	return job
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
		j.summary.FailedDates = append(j.summary.FailedDates, p.Date)
	}
}

func (r *RangeDownloader) day(ctx context.Context, date time.Time, force bool) Progress {
	p := Progress{Date: date}
	log := r.log.WithField("date", date.Format("2006-01-02"))

	if isWeekend(date) {
		p.Status = StatusWeekend
		return p
	}

	if !force {
		complete, err := r.store.TXODayComplete(ctx, date)
		if err != nil {
			return r.fail(p, log, err)
		}
		if complete {
			log.Debug("day already complete")
			p.Status = StatusSkipped
			metrics.RecordDownload("txo", StatusSkipped, 0)
			return p
		}
	}

	quotes, err := r.fetcher.Fetch(ctx, date)
	if err != nil {
		return r.fail(p, log, err)
	}
	n, err := r.store.ReplaceTXODay(ctx, date, quotes)
	if err != nil {
		return r.fail(p, log, err)
	}

	p.Status = StatusSuccess
	p.Rows = n
	metrics.RecordDownload("txo", StatusSuccess, n)
	log.WithField("rows", n).Info("day stored")
	return p
}

func (r *RangeDownloader) fail(p Progress, log *logrus.Entry, err error) Progress {
	log.WithError(err).Warn("day failed")
	p.Status = StatusFailed
	p.Err = err
	metrics.RecordDownload("txo", StatusFailed, 0)
	return p
}
