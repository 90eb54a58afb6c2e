package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/metrics"
	"github.com/viktsys/twmarket/models"
)

// Store is where classified rows are written. Each call returns the number
// of rows that were new.
type Store interface {
	InsertOptions(ctx context.Context, rows []models.OptionRaw) (int64, error)
	InsertFutures(ctx context.Context, rows []models.FutureRaw) (int64, error)
	InsertStocks(ctx context.Context, rows []models.StockRaw) (int64, error)
}

// ImportOptions control a single import run.
type ImportOptions struct {
	// Force skips classification and imports every file as this type.
	Force DataType
	// Product overrides the default product code when a file has none.
	Product string
}

// FileResult is the outcome of importing one file.
type FileResult struct {
	Path     string
	Type     DataType
	Rows     int64
	Inserted int64
	Invalid  int64
	Dropped  bool
	Duration time.Duration
	Err      error
}

// Duplicates is the number of valid rows already present in the store.
func (r FileResult) Duplicates() int64 {
	return r.Rows - r.Inserted
}

// Summary totals a multi-file run.
type Summary struct {
	Files    []FileResult
	Rows     int64
	Inserted int64
	Failed   int
	Dropped  int
	Duration time.Duration
}

type Processor struct {
	store      Store
	classifier *Classifier
	loader     *Loader
	cfg        config.IngestConfig
	opts       ImportOptions
	log        *logrus.Entry

	processedRows  int64
	insertedRows   int64
	processedFiles int64
}

func NewProcessor(store Store, classifier *Classifier, cfg config.IngestConfig, opts ImportOptions, log *logrus.Logger) *Processor {
	return &Processor{
		store:      store,
		classifier: classifier,
		loader:     NewLoader(ImportProfile),
		cfg:        cfg,
		opts:       opts,
		log:        log.WithField("component", "ingest"),
	}
}

// ExpandPaths resolves directories to the CSV files they contain.
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to find CSV files: %w", err)
		}
		upper, err := filepath.Glob(filepath.Join(p, "*.CSV"))
		if err != nil {
			return nil, fmt.Errorf("failed to find CSV files: %w", err)
		}
		files = append(files, matches...)
		files = append(files, upper...)
	}
	sort.Strings(files)
	return dedupe(files), nil
}

func dedupe(files []string) []string {
	out := files[:0]
	var last string
	for i, f := range files {
		if i > 0 && f == last {
			continue
		}
		out = append(out, f)
		last = f
	}
	return out
}

// ProcessPaths imports every file concurrently. Per-file failures do not
// stop the run; they are returned joined after all files finish.
func (p *Processor) ProcessPaths(ctx context.Context, paths []string) (Summary, error) {
	startTime := time.Now()

	files, err := ExpandPaths(paths)
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		return Summary{}, fmt.Errorf("no CSV files found in %s", strings.Join(paths, ", "))
	}

	fileWorkers := max(p.cfg.FileWorkers, 1)
	p.log.WithFields(logrus.Fields{
		"files":        len(files),
		"file_workers": fileWorkers,
		"workers":      p.cfg.WorkerCount,
	}).Info("starting import")

	semaphore := make(chan struct{}, fileWorkers)
	results := make([]FileResult, len(files))
	var wg sync.WaitGroup

	for i, file := range files {
		wg.Add(1)
		go func(i int, filename string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[i] = p.ProcessFile(ctx, filename)
		}(i, file)
	}
	wg.Wait()

	summary := Summary{Files: results, Duration: time.Since(startTime)}
	var errs []error
	for _, r := range results {
		summary.Rows += r.Rows
		summary.Inserted += r.Inserted
		if r.Dropped {
			summary.Dropped++
		}
		if r.Err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}

	p.log.WithFields(logrus.Fields{
		"files":    atomic.LoadInt64(&p.processedFiles),
		"rows":     humanize.Comma(atomic.LoadInt64(&p.processedRows)),
		"inserted": humanize.Comma(atomic.LoadInt64(&p.insertedRows)),
		"failed":   summary.Failed,
		"took":     summary.Duration.Round(time.Millisecond),
	}).Info("import completed")

	return summary, errors.Join(errs...)
}

func (p *Processor) chunkSize(path string) int {
	info, err := os.Stat(path)
	if err == nil && info.Size() > int64(p.cfg.LargeFileMB)*1024*1024 {
		return max(p.cfg.LargeChunkSize, 1)
	}
	return max(p.cfg.ChunkSize, 1)
}

// ProcessFile classifies a file on its first chunk and streams the rest of
// it through the insert workers.
func (p *Processor) ProcessFile(ctx context.Context, filename string) (result FileResult) {
	fileStart := time.Now()
	result = FileResult{Path: filename}
	log := p.log.WithField("file", filepath.Base(filename))

	defer func() {
		result.Duration = time.Since(fileStart)
		status := "success"
		switch {
		case result.Err != nil:
			status = "error"
		case result.Dropped:
			status = "dropped"
		}
		metrics.RecordImport(string(result.Type), status, result.Duration, result.Inserted, result.Duplicates(), result.Invalid)
	}()

	if info, err := os.Stat(filename); err == nil {
		log.Infof("processing file (%s)", humanize.Bytes(uint64(info.Size())))
	}

	src, err := p.loader.Open(filename)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			log.Debug(loadErr.Report())
		}
		result.Err = err
		return result
	}
	defer src.Close()

	chunkSize := p.chunkSize(filename)
	first, err := src.ReadChunk(chunkSize)
	if errors.Is(err, io.EOF) {
		log.Warn("file has no data rows")
		result.Dropped = true
		return result
	}
	if err != nil {
		result.Err = fmt.Errorf("read: %w", err)
		return result
	}

	decision, err := p.decide(ctx, filename, src.Layout, first)
	if err != nil {
		result.Err = err
		return result
	}
	result.Type = decision.Type
	if decision.Type == Unknown {
		log.WithField("header", decision.Header).Warn("could not classify file, skipping")
		result.Dropped = true
		return result
	}
	log.WithFields(logrus.Fields{"type": decision.Type, "reason": decision.Reason}).Info("file classified")

	builder := newRowBuilder(decision, filename, p.opts.Product)
	rows, inserted, invalid, err := p.pipeline(ctx, src, builder, decision, chunkSize)
	result.Rows, result.Inserted, result.Invalid = rows, inserted, invalid
	if err != nil {
		result.Err = err
		return result
	}

	atomic.AddInt64(&p.processedFiles, 1)
	log.WithFields(logrus.Fields{
		"rows":     humanize.Comma(rows),
		"inserted": humanize.Comma(inserted),
		"invalid":  invalid,
		"took":     time.Since(fileStart).Round(time.Millisecond),
	}).Info("successfully processed file")
	return result
}

func (p *Processor) decide(ctx context.Context, filename string, layout Layout, first [][]string) (Decision, error) {
	if p.opts.Force != Unknown {
		return Decision{
			Type:   p.opts.Force,
			Header: layout.Header,
			Rows:   first,
			Reason: "forced",
			Symbol: findSymbol(layout.Preamble, layout.Header, nil),
		}, nil
	}
	return p.classifier.Classify(ctx, filepath.Base(filename), Chunk{
		Header:   layout.Header,
		Rows:     first,
		Preamble: layout.Preamble,
	})
}

// pipeline feeds batches to the insert workers: the first chunk as
// classified, then the remaining chunks as read.
func (p *Processor) pipeline(ctx context.Context, src *Source, builder *rowBuilder, d Decision, chunkSize int) (int64, int64, int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerCount := max(p.cfg.WorkerCount, 1)
	batchChan := make(chan rowBatch, max(p.cfg.BufferSize, 1))
	errorChan := make(chan error, workerCount+1)

	var rows, inserted, invalid int64

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, batchChan, errorChan, &inserted, &wg)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(batchChan)

		send := func(chunk [][]string) bool {
			batchSize := max(p.cfg.BatchSize, 1)
			for start := 0; start < len(chunk); start += batchSize {
				end := min(start+batchSize, len(chunk))
				batch := builder.build(d.Type, chunk[start:end])
				atomic.AddInt64(&invalid, int64(batch.dropped))
				atomic.AddInt64(&rows, int64(batch.len()))
				if batch.len() == 0 {
					continue
				}
				select {
				case batchChan <- batch:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		if !send(d.Rows) {
			return
		}
		for {
			chunk, err := src.ReadChunk(chunkSize)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errorChan <- fmt.Errorf("read: %w", err)
				return
			}
			if !send(chunk) {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(errorChan)
	}()

	var firstErr error
	for err := range errorChan {
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	atomic.AddInt64(&p.processedRows, rows)
	atomic.AddInt64(&p.insertedRows, inserted)
	return rows, inserted, invalid, firstErr
}

func (p *Processor) worker(ctx context.Context, batchChan <-chan rowBatch, errorChan chan<- error, inserted *int64, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case batch, ok := <-batchChan:
			if !ok {
				return
			}
			n, err := p.processBatch(ctx, batch)
			if err != nil {
				errorChan <- err
				return
			}
			atomic.AddInt64(inserted, n)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Processor) processBatch(ctx context.Context, batch rowBatch) (int64, error) {
	switch {
	case len(batch.options) > 0:
		return p.store.InsertOptions(ctx, batch.options)
	case len(batch.futures) > 0:
		return p.store.InsertFutures(ctx, batch.futures)
	case len(batch.stocks) > 0:
		return p.store.InsertStocks(ctx, batch.stocks)
	}
	return 0, nil
}
