package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/observability"
)

// Collector fetches the current alerts from one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.Alert, error)
	IsAvailable(ctx context.Context) bool
}

// Enricher adds derived data to a collected alert. It must not fail; enrichment
// problems are recorded on the alert itself.
type Enricher interface {
	Enrich(ctx context.Context, alert domain.Alert) domain.Alert
}

// AlertStore persists alerts.
type AlertStore interface {
	Save(ctx context.Context, alert domain.Alert) error
}

// Publisher forwards newly seen alerts downstream.
type Publisher interface {
	Publish(ctx context.Context, alerts []domain.Alert) error
}

// SeenCache reports whether an alert id is new within its retention window.
// Unmark releases ids whose publication failed.
type SeenCache interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	Unmark(ctx context.Context, ids ...string) error
}

// Settings control the collection schedule and retries.
type Settings struct {
	Interval   time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// Result summarizes one collection pass.
type Result struct {
	Collected int
	Stored    int
	Published int
	Duplicate int
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithPublisher enables publishing stored alerts.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithSeenCache filters already published alerts before publishing.
func WithSeenCache(s SeenCache) Option {
	return func(pl *Pipeline) { pl.seen = s }
}

// WithClock replaces the pipeline's time source.
func WithClock(c clockwork.Clock) Option {
	return func(pl *Pipeline) { pl.clock = c }
}

// Pipeline orchestrates the collect-enrich-store-publish cycle.
type Pipeline struct {
	collector Collector
	enricher  Enricher
	store     AlertStore
	publisher Publisher
	seen      SeenCache
	settings  Settings
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(c Collector, e Enricher, s AlertStore, settings Settings, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		collector: c,
		enricher:  e,
		store:     s,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a collection pass has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a collection yet")
	}
	return nil
}

// Run collects every Interval until the context is cancelled. A failed pass is
// retried sooner, with a doubling delay capped at Interval.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"source", p.collector.Name(),
		"interval", p.settings.Interval,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if !p.collector.IsAvailable(ctx) && ctx.Err() == nil {
		p.logger.Warn("source unavailable at startup", "source", p.collector.Name())
	}

	failureDelay := p.initialFailureDelay()
	for {
		wait := p.settings.Interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("collection pass failed", "error", err, "retry_in", failureDelay)
			wait = failureDelay
			failureDelay = sharedretry.NextBackoff(failureDelay, p.settings.Interval)
		} else {
			failureDelay = p.initialFailureDelay()
		}

		if !sharedretry.SleepWithContext(ctx, wait) {
			break
		}
	}

	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// RunOnce performs a single pass: collect (with retries), enrich, store each
// alert, then publish the stored alerts not seen before.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	start := p.clock.Now()
	var res Result

	alerts, err := p.collect(ctx)
	if err != nil {
		return res, err
	}
	res.Collected = len(alerts)

	stored := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if p.enricher != nil {
			alert = p.enricher.Enrich(ctx, alert)
		}
		if err := p.store.Save(ctx, alert); err != nil {
			p.metrics.StoreErrors.Inc()
			p.logger.Error("store alert failed", "alert_id", alert.ID, "error", err)
			continue
		}
		stored = append(stored, alert)
	}
	res.Stored = len(stored)
	p.metrics.AlertsStored.Add(float64(len(stored)))

	if len(alerts) > 0 && len(stored) == 0 {
		return res, fmt.Errorf("store: all %d alerts failed", len(alerts))
	}

	if p.publisher != nil {
		fresh, marked := p.unseen(ctx, stored)
		res.Duplicate = len(stored) - len(fresh)
		if len(fresh) > 0 {
			if err := p.publisher.Publish(ctx, fresh); err != nil {
				p.release(marked)
				return res, fmt.Errorf("publish: %w", err)
			}
			res.Published = len(fresh)
			p.metrics.AlertsPublished.Add(float64(len(fresh)))
		}
	}

	p.metrics.CollectionDuration.Observe(p.clock.Since(start).Seconds())
	p.metrics.LastCollectionSuccess.Set(float64(p.clock.Now().Unix()))
	p.ready.Store(true)

	p.logger.Info("collection pass complete",
		"source", p.collector.Name(),
		"collected", res.Collected,
		"stored", res.Stored,
		"published", res.Published,
		"duplicates", res.Duplicate,
	)
	return res, nil
}

// collect calls the collector up to RetryCount+1 times, RetryDelay apart.
func (p *Pipeline) collect(ctx context.Context) ([]domain.Alert, error) {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.settings.RetryDelay)
	b = backoff.WithMaxRetries(b, uint64(max(p.settings.RetryCount, 0)))
	b = backoff.WithContext(b, ctx)

	var alerts []domain.Alert
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		alerts, err = p.collector.Collect(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("collection attempt failed",
				"source", p.collector.Name(),
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	}, b)
	if err != nil {
		return nil, fmt.Errorf("collect %s after %d attempts: %w", p.collector.Name(), attempt, err)
	}
	return alerts, nil
}

// unseen drops alerts the seen cache already knows and returns the ids it
// marked. Cache errors let the alert through unmarked.
func (p *Pipeline) unseen(ctx context.Context, alerts []domain.Alert) (fresh []domain.Alert, marked []string) {
	if p.seen == nil {
		return alerts, nil
	}
	fresh = make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		first, err := p.seen.MarkSeen(ctx, alert.ID)
		if err != nil {
			p.logger.Warn("seen cache unavailable, publishing anyway", "alert_id", alert.ID, "error", err)
			fresh = append(fresh, alert)
			continue
		}
		if !first {
			p.metrics.DedupHits.Inc()
			continue
		}
		fresh = append(fresh, alert)
		marked = append(marked, alert.ID)
	}
	return fresh, marked
}

// releaseTimeout bounds Unmark, which must run even after the pass context
// is cancelled.
const releaseTimeout = 5 * time.Second

// release forgets ids marked for a publish that failed, so the next pass
// retries them.
func (p *Pipeline) release(ids []string) {
	if p.seen == nil || len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := p.seen.Unmark(ctx, ids...); err != nil {
		p.logger.Error("release seen alerts failed", "count", len(ids), "error", err)
	}
}

func (p *Pipeline) initialFailureDelay() time.Duration {
	d := max(p.settings.RetryDelay, time.Second)
	return min(d, p.settings.Interval)
}
