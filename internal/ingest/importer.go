package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/lineage/internal/lineage"
	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/resilience"
	"github.com/sells-group/lineage/internal/store"
)

// Options tunes an import run.
type Options struct {
	Concurrency int
	BatchSize   int
	// RatePerSec caps inserted rows per second. Zero means unlimited.
	RatePerSec float64
	Retry      resilience.RetryConfig
}

// Result summarizes an import run.
type Result struct {
	Rows     int64         `json:"rows" yaml:"rows"`
	Imported int64         `json:"imported" yaml:"imported"`
	Rejected int64         `json:"rejected" yaml:"rejected"`
	Batches  int64         `json:"batches" yaml:"batches"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

type counters struct {
	rows, imported, rejected, batches atomic.Int64
}

// Importer writes streamed rows as lineage entries. Each batch is one
// transaction; a batch rejected for bad input is replayed row by row so only
// the offending rows land in the dead-letter file.
type Importer struct {
	st      store.Store
	tracker *lineage.Tracker
	sources *lineage.Registry
	opts    Options
	dlq     *resilience.DeadLetterWriter
	limiter *rate.Limiter
	byName  sync.Map // filename -> source id
	log     *zap.Logger
}

// NewImporter creates an importer writing through svc into st. Rejected rows
// go to dlq.
func NewImporter(st store.Store, svc *lineage.Service, dlq *resilience.DeadLetterWriter, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.BatchSize)
	}
	if dlq == nil {
		dlq = resilience.NewDeadLetterWriter(nil)
	}
	return &Importer{
		st:      st,
		tracker: svc.Tracker,
		sources: svc.Registry,
		opts:    opts,
		dlq:     dlq,
		limiter: limiter,
		log:     zap.L().With(zap.String("component", "ingest.importer")),
	}
}

// Run consumes the stream until it ends. Row-level failures are
// dead-lettered and counted; Run only fails on stream, context or
// dead-letter write errors.
func (im *Importer) Run(ctx context.Context, stream StreamFunc) (*Result, error) {
	start := time.Now()
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []Row, im.opts.Concurrency)

	g.Go(func() error {
		defer close(batches)
		rows, errs := stream(gctx)

		batch := make([]Row, 0, im.opts.BatchSize)
		send := func() error {
			if len(batch) == 0 {
				return nil
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = make([]Row, 0, im.opts.BatchSize)
			return nil
		}

		for row := range rows {
			c.rows.Add(1)
			batch = append(batch, row)
			if len(batch) >= im.opts.BatchSize {
				if err := send(); err != nil {
					return err
				}
			}
		}
		if err := <-errs; err != nil {
			return err
		}
		return send()
	})

	for range im.opts.Concurrency {
		g.Go(func() error {
			for batch := range batches {
				if err := im.importBatch(gctx, batch, &c); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	res := &Result{
		Rows:     c.rows.Load(),
		Imported: c.imported.Load(),
		Rejected: c.rejected.Load(),
		Batches:  c.batches.Load(),
		Duration: time.Since(start),
	}
	im.log.Info("import finished",
		zap.Int64("rows", res.Rows),
		zap.Int64("imported", res.Imported),
		zap.Int64("rejected", res.Rejected),
		zap.Int64("batches", res.Batches),
		zap.Duration("duration", res.Duration),
		zap.Error(err),
	)
	return res, err
}

func (im *Importer) importBatch(ctx context.Context, batch []Row, c *counters) error {
	c.batches.Add(1)

	rows := make([]Row, 0, len(batch))
	reqs := make([]model.TrackRequest, 0, len(batch))
	for _, row := range batch {
		req, err := im.request(ctx, row)
		if err != nil {
			if err := im.reject(row, 0, err, c); err != nil {
				return err
			}
			continue
		}
		rows = append(rows, row)
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil
	}

	if err := im.limiter.WaitN(ctx, len(reqs)); err != nil {
		return eris.Wrap(err, "ingest: rate limit")
	}

	attempts, err := im.write(ctx, reqs)
	switch {
	case err == nil:
		c.imported.Add(int64(len(reqs)))
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case resilience.IsTransient(err):
		im.log.Warn("batch failed after retries",
			zap.Int("first_line", rows[0].Line),
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		for _, row := range rows {
			if err := im.reject(row, attempts, err, c); err != nil {
				return err
			}
		}
		return nil
	}

	// Replay one row per transaction so only the bad rows are rejected.
	for i, row := range rows {
		attempts, err := im.write(ctx, reqs[i:i+1])
		if err == nil {
			c.imported.Add(1)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := im.reject(row, attempts, err, c); err != nil {
			return err
		}
	}
	return nil
}

// write inserts reqs in one transaction, retrying transient conflicts.
func (im *Importer) write(ctx context.Context, reqs []model.TrackRequest) (int, error) {
	attempts := 0
	err := resilience.Do(ctx, im.opts.Retry, func(ctx context.Context) error {
		attempts++
		return im.st.WithTx(ctx, func(tx store.Tx) error {
			_, err := im.tracker.On(tx).TrackBatch(ctx, reqs)
			return err
		})
	})
	return attempts, err
}

// request turns a row into a TrackRequest, resolving source filenames.
func (im *Importer) request(ctx context.Context, row Row) (model.TrackRequest, error) {
	if row.Err != nil {
		return model.TrackRequest{}, row.Err
	}
	rec := row.Record
	sourceID := rec.SourceReportID
	if sourceID == 0 {
		if rec.SourceFilename == "" {
			return model.TrackRequest{}, model.NewValidationError("source", "source_report_id or source_filename is required")
		}
		id, err := im.sourceID(ctx, rec.SourceFilename)
		if err != nil {
			return model.TrackRequest{}, err
		}
		sourceID = id
	}
	return model.TrackRequest{
		Record:          model.RecordRef{Table: rec.Table, ID: rec.RecordID},
		SourceReportID:  sourceID,
		PageNumber:      rec.PageNumber,
		ConfidenceScore: rec.ConfidenceScore,
	}, nil
}

func (im *Importer) sourceID(ctx context.Context, filename string) (int64, error) {
	if id, ok := im.byName.Load(filename); ok {
		return id.(int64), nil
	}
	src, err := im.sources.GetByFilename(ctx, filename)
	if err != nil {
		return 0, err
	}
	if src == nil {
		return 0, model.NewValidationError("source_filename", "%q is not registered", filename)
	}
	im.byName.Store(filename, src.ID)
	return src.ID, nil
}

func (im *Importer) reject(row Row, attempts int, cause error, c *counters) error {
	c.rejected.Add(1)
	im.log.Debug("row rejected", zap.Int("line", row.Line), zap.Error(cause))
	return im.dlq.Write(row.Line, row.Raw, attempts, cause)
}
