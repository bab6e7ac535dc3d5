// Package monitor runs one supervised watch loop per site: fetch the
// catalog feed, classify and filter products, detect changes against the
// in-memory snapshot, notify and persist, then sleep a randomized interval.
package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/catalog"
	"github.com/shopmon/shopmon/internal/detect"
	"github.com/shopmon/shopmon/internal/publish"
	"github.com/shopmon/shopmon/internal/store"
)

// Fetcher retrieves the full product feed for one site.
type Fetcher interface {
	FetchAll(ctx context.Context, site string) []catalog.Product
}

// Store is the persistence surface the loop writes through.
type Store interface {
	LoadSnapshot(ctx context.Context, site string) (map[int64]catalog.Snapshot, error)
	Upsert(ctx context.Context, row store.Row) error
	PatchTransition(ctx context.Context, id int64, site string, field store.TransitionField, at time.Time) error
}

// Notifier delivers change events and operational alerts.
type Notifier interface {
	ProductEvent(ctx context.Context, event detect.Event) error
	Operational(ctx context.Context, message string) error
}

// Classifier tags products and decides which tags are worth tracking.
type Classifier interface {
	Classify(p catalog.Product) string
	Interesting(tag string) bool
}

// Config controls one site loop.
type Config struct {
	Site         string
	SleepMin     time.Duration
	SleepMax     time.Duration
	MaxFailures  int
	NewNotifyCap int
	EventTopic   string
}

// SiteMonitor owns the snapshot for one site and drives its watch cycle.
// It is not safe for concurrent use; run exactly one goroutine per site.
type SiteMonitor struct {
	cfg        Config
	fetcher    Fetcher
	store      Store
	notifier   Notifier
	classifier Classifier
	detector   *detect.Detector
	publisher  publish.Provider
	logger     *zap.Logger
	now        func() time.Time

	snapshot map[int64]catalog.Snapshot
	// suppress holds back the first cycle's notification flood when the
	// store had no prior rows for this site.
	suppress bool
}

// New assembles a monitor for one site. publisher may be nil.
func New(cfg Config, fetcher Fetcher, st Store, notifier Notifier, classifier Classifier, detector *detect.Detector, publisher publish.Provider, logger *zap.Logger) *SiteMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteMonitor{
		cfg:        cfg,
		fetcher:    fetcher,
		store:      st,
		notifier:   notifier,
		classifier: classifier,
		detector:   detector,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		snapshot:   make(map[int64]catalog.Snapshot),
	}
}

// Run executes watch cycles until the context is canceled or the site
// fail-stops. A fail-stop fires one operational alert and abandons the
// site permanently; other sites are unaffected.
func (m *SiteMonitor) Run(ctx context.Context) {
	seed, err := m.store.LoadSnapshot(ctx, m.cfg.Site)
	if err != nil {
		m.logger.Error("failed to load snapshot, starting cold", zap.Error(err))
		seed = make(map[int64]catalog.Snapshot)
	}
	m.snapshot = seed
	m.suppress = len(seed) == 0
	m.logger.Info("monitor started",
		zap.Int("known_products", len(seed)),
		zap.Bool("cold_start", m.suppress))

	failures := 0
	for {
		err := m.cycle(ctx)
		if ctx.Err() != nil {
			m.logger.Info("monitor stopping", zap.Error(ctx.Err()))
			return
		}
		if err != nil {
			failures++
			TotalCycleFailures.Inc()
			m.logger.Error("watch cycle failed",
				zap.Int("consecutive_failures", failures), zap.Error(err))
			if failures >= m.cfg.MaxFailures {
				TotalMonitorStops.Inc()
				message := fmt.Sprintf("monitoring stopped for %s after %d consecutive failures: %v",
					m.cfg.Site, failures, err)
				if alertErr := m.notifier.Operational(ctx, message); alertErr != nil {
					m.logger.Error("failed to deliver stop alert", zap.Error(alertErr))
				}
				m.logger.Error("monitor fail-stopped", zap.Int("failures", failures))
				return
			}
		} else {
			failures = 0
		}

		if !m.sleep(ctx) {
			m.logger.Info("monitor stopping", zap.Error(ctx.Err()))
			return
		}
	}
}

// cycle runs one fetch-classify-detect-persist pass. A panic inside the
// pass is converted to an error so one bad payload cannot kill the loop.
func (m *SiteMonitor) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("watch cycle panicked: %v", r)
		}
	}()

	TotalCycles.Inc()
	products := m.fetcher.FetchAll(ctx, m.cfg.Site)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(products) == 0 {
		// A drained fetch budget yields whatever was collected, so an
		// empty result is a skipped cycle, not a failure: sleep and retry.
		m.logger.Warn("feed returned no products, skipping cycle")
		return nil
	}

	newNotified := 0
	for _, p := range products {
		category := m.classifier.Classify(p)
		if !m.classifier.Interesting(category) {
			continue
		}

		event := m.detector.Evaluate(m.snapshot, m.cfg.Site, p)
		if event != nil {
			event.Category = category
			m.recordTransition(ctx, event)
			m.deliver(ctx, event, &newNotified)
		}

		if upsertErr := m.store.Upsert(ctx, productRow(m.cfg.Site, category, p)); upsertErr != nil {
			m.logger.Error("failed to persist product",
				zap.Int64("product_id", p.ID), zap.Error(upsertErr))
		}
	}

	m.suppress = false
	return nil
}

func (m *SiteMonitor) recordTransition(ctx context.Context, event *detect.Event) {
	var field store.TransitionField
	switch event.Type {
	case detect.ChangeBecameAvailable:
		field = store.FieldBecameAvailable
	case detect.ChangeBecameUnavailable:
		field = store.FieldBecameUnavailable
	default:
		return
	}
	if err := m.store.PatchTransition(ctx, event.ProductID, m.cfg.Site, field, m.now()); err != nil {
		m.logger.Error("failed to record availability transition",
			zap.Int64("product_id", event.ProductID),
			zap.String("field", string(field)), zap.Error(err))
	}
}

// deliver sends the event to the webhook and the optional event stream.
// New-product notifications are capped per cycle so a feed rollover does
// not flood the channel; suppressed and capped events are still persisted
// and published.
func (m *SiteMonitor) deliver(ctx context.Context, event *detect.Event, newNotified *int) {
	notify := !m.suppress
	if notify && event.Type == detect.ChangeNew {
		if *newNotified >= m.cfg.NewNotifyCap {
			notify = false
			TotalSuppressedNotifications.Inc()
		} else {
			*newNotified++
		}
	}
	if notify {
		if err := m.notifier.ProductEvent(ctx, *event); err != nil {
			m.logger.Error("failed to deliver notification",
				zap.String("type", string(event.Type)),
				zap.Int64("product_id", event.ProductID), zap.Error(err))
		}
	}

	if m.publisher != nil {
		if _, err := m.publisher.Publish(ctx, m.cfg.EventTopic, event); err != nil {
			m.logger.Error("failed to publish event",
				zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

// sleep pauses a random duration inside the configured window. Returns
// false when the context ended first.
func (m *SiteMonitor) sleep(ctx context.Context) bool {
	window := m.cfg.SleepMax - m.cfg.SleepMin
	delay := m.cfg.SleepMin
	if window > 0 {
		delay += rand.N(window)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func productRow(site, category string, p catalog.Product) store.Row {
	return store.Row{
		ID:          p.ID,
		Site:        site,
		Handle:      p.Handle,
		Title:       p.Title,
		Available:   p.Available(),
		Price:       p.PriceString(),
		Vendor:      p.Vendor,
		URL:         p.URL(site),
		Category:    category,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Raw:         p.Raw,
	}
}
