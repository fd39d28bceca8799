package worker

import (
	"context"
	"io"
	"time"

	"sjsage522/inventorywatch/internal/crawler"
	"sjsage522/inventorywatch/internal/inventory"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"
	"sjsage522/inventorywatch/services/publisher"
	"sjsage522/inventorywatch/services/report"
	"sjsage522/inventorywatch/services/store"
)

// Store persists snapshots and run outputs
type Store interface {
	LatestSnapshot(before string) (*inventory.Snapshot, error)
	WriteRun(out store.RunOutput) ([]string, error)
}

// dated is implemented by record crawlers that stamp records with the run date
type dated interface {
	SetDate(date string)
}

// Worker runs the discover, crawl, diff and persist pipeline
type Worker struct {
	discoverer    crawler.ListingDiscoverer
	records       crawler.RecordCrawler
	store         Store
	publisher     publisher.Publisher
	reportOut     io.Writer
	crawlInterval time.Duration
	now           func() time.Time
	log           *logger.Logger
}

// Option configures a Worker
type Option func(*Worker)

// WithPublisher publishes each run's delta. A nil publisher disables it.
func WithPublisher(p publisher.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithReport renders the run's tables to out
func WithReport(out io.Writer) Option {
	return func(w *Worker) { w.reportOut = out }
}

// WithInterval repeats runs in Start until the context is cancelled
func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.crawlInterval = d }
}

// WithClock overrides the clock that dates each run
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a new worker
func NewWorker(d crawler.ListingDiscoverer, rc crawler.RecordCrawler, st Store, opts ...Option) *Worker {
	w := &Worker{
		discoverer: d,
		records:    rc,
		store:      st,
		now:        time.Now,
		log:        logger.ForWorker(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the pipeline once, or repeatedly when an interval is set.
// onRun is called after every successful run. Only fatal errors and
// cancellation end the loop.
func (w *Worker) Start(ctx context.Context, onRun func(report.Summary)) error {
	for {
		start := time.Now()
		summary, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil || w.crawlInterval <= 0 || errors.IsFatal(err) {
				return err
			}
			w.log.Error().Err(err).Msg("Run failed, waiting for the next one")
		} else {
			w.log.Info().Dur("elapsed", time.Since(start)).Msg("Run finished")
			if onRun != nil {
				onRun(summary)
			}
		}

		if w.crawlInterval <= 0 {
			return nil
		}
		timer := time.NewTimer(w.crawlInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs one full run. Nothing is written when ctx is cancelled
// before the outputs are persisted.
func (w *Worker) RunOnce(ctx context.Context) (report.Summary, error) {
	date := w.now().Format(store.DateLayout)
	summary := report.Summary{Date: date}
	log := w.log.WithField("date", date)

	if d, ok := w.records.(dated); ok {
		d.SetDate(date)
	}

	discovery, err := w.discoverer.Discover(ctx)
	if err != nil {
		return summary, err
	}
	summary.Pages = len(discovery.Pages)
	if len(discovery.Pages) == 0 {
		// an empty snapshot would report the whole lot as removed
		return summary, errors.NewNetwork("discovery", "no listing page could be loaded, outputs not written", nil)
	}
	log.Info().
		Int("pages", len(discovery.Pages)).
		Int("failed_pages", len(discovery.Failed)).
		Int("candidates", len(discovery.VehicleURLs)).
		Msg("Listing discovery finished")

	records := w.records.CrawlAll(ctx, discovery.VehicleURLs)
	if err := ctx.Err(); err != nil {
		log.Warn().Msg("Run cancelled, outputs not written")
		return summary, err
	}

	current := inventory.NewSnapshot(date, records)
	summary.UniqueVINs = current.Len()

	previous, err := w.store.LatestSnapshot(date)
	if err != nil {
		return summary, err
	}
	if previous == nil {
		log.Info().Msg("No previous snapshot, every vehicle counts as added")
	}

	delta := inventory.Diff(previous, current)
	summary.PriceChanges = len(delta.PriceChanges)
	out := store.RunOutput{
		Date:          date,
		Records:       current.Records(),
		Delta:         delta,
		AddedGroups:   inventory.Rollup(delta.Added),
		RemovedGroups: inventory.Rollup(delta.Removed),
	}
	if _, err := w.store.WriteRun(out); err != nil {
		return summary, err
	}

	log.Info().
		Int("added", len(delta.Added)).
		Int("removed", len(delta.Removed)).
		Int("price_changes", len(delta.PriceChanges)).
		Msg("Delta computed")

	w.publish(ctx, date, delta)

	if w.reportOut != nil {
		report.Run(w.reportOut, out.AddedGroups, out.RemovedGroups, delta.PriceChanges)
	}
	return summary, nil
}

// publish sends the delta downstream. Failures are logged only.
func (w *Worker) publish(ctx context.Context, date string, delta inventory.Delta) {
	if w.publisher == nil {
		return
	}
	n, err := publisher.PublishDelta(ctx, w.publisher, date, delta)
	if err != nil {
		w.log.Error().Err(errors.NewPublisher("redis", "delta publish stopped", err)).Int("published", n).Msg("Publish failed")
	} else {
		w.log.Info().Int("events", n).Msg("Delta published")
	}

	// Trim all streams after publishing
	if err := w.publisher.TrimStreams(ctx); err != nil {
		w.log.Error().Err(err).Msg("Stream trimming failed")
	}
}
