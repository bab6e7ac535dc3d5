package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Archiver receives raw page bodies for optional downstream retention. It
// matches the archive provider interface so the fetcher does not depend on
// a concrete backend.
type Archiver interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// FetcherConfig governs pagination, rate-limit handling and the
// consecutive-error budget for one fetch pass.
type FetcherConfig struct {
	PageSize    int
	MaxProducts int
	// MaxErrors is the consecutive-error budget. Reaching it aborts the
	// fetch; accumulated products are still returned.
	MaxErrors int
	// RateLimitThreshold is the per-fetch 429 count that triggers the long
	// cooldown instead of another backoff retry.
	RateLimitThreshold int
	Cooldown           time.Duration
	Backoff            BackoffPolicy
	// PageDelayMin/Max bound the jitter sleep between successful pages.
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	// ErrorDelayMin/Max bound the randomized sleep after a generic failure.
	ErrorDelayMin time.Duration
	ErrorDelayMax time.Duration
}

// DefaultFetcherConfig returns the production defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PageSize:           250,
		MaxProducts:        5000,
		MaxErrors:          5,
		RateLimitThreshold: 3,
		Cooldown:           30 * time.Minute,
		Backoff:            DefaultBackoffPolicy(),
		PageDelayMin:       1 * time.Second,
		PageDelayMax:       3 * time.Second,
		ErrorDelayMin:      1 * time.Minute,
		ErrorDelayMax:      3 * time.Minute,
	}
}

// Fetcher walks a site's products.json feed page by page. A partial result
// is a normal outcome: rate limiting and the error budget truncate the
// walk without failing it.
type Fetcher struct {
	client  PageClient
	archive Archiver
	cfg     FetcherConfig
	logger  *zap.Logger
}

// NewFetcher constructs a Fetcher. archive may be nil when raw page
// retention is not configured.
func NewFetcher(client PageClient, archive Archiver, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 5
	}
	if cfg.RateLimitThreshold <= 0 {
		cfg.RateLimitThreshold = 3
	}
	return &Fetcher{
		client:  client,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
	}
}

// FetchAll retrieves the site's full catalog, or as much of it as the
// product cap, the error budget and the context allow.
func (f *Fetcher) FetchAll(ctx context.Context, site string) []Product {
	var out []Product
	page := 1
	consecutiveErrors := 0
	rateLimitHits := 0
	rateLimitAttempt := 0

	for {
		if ctx.Err() != nil {
			return out
		}
		pageURL := f.pageURL(site, page)
		TotalRequests.Inc()
		result, err := f.client.Get(ctx, pageURL)

		if result.StatusCode == http.StatusTooManyRequests {
			TotalRateLimitHits.Inc()
			rateLimitHits++
			if rateLimitHits >= f.cfg.RateLimitThreshold {
				TotalCooldowns.Inc()
				cooldown := f.cfg.Cooldown + randomJitter(f.cfg.Cooldown/10)
				f.logger.Warn("sustained rate limiting, entering cooldown",
					zap.String("site", site),
					zap.Int("page", page),
					zap.Duration("cooldown", cooldown),
				)
				pause(ctx, cooldown)
				rateLimitHits = 0
				rateLimitAttempt = 0
			} else {
				delay := f.cfg.Backoff.Delay(rateLimitAttempt)
				rateLimitAttempt++
				f.logger.Warn("rate limited, backing off",
					zap.String("site", site),
					zap.Int("page", page),
					zap.Duration("delay", delay),
				)
				pause(ctx, delay)
			}
			continue
		}

		var products []Product
		var decodeErr error
		if err == nil && result.StatusCode == http.StatusOK {
			products, decodeErr = decodeFeedPage(result.Body)
		}

		if err != nil || result.StatusCode != http.StatusOK || decodeErr != nil {
			TotalRequestErrors.Inc()
			consecutiveErrors++
			f.logger.Error("page fetch failed",
				zap.String("site", site),
				zap.Int("page", page),
				zap.Int("status", result.StatusCode),
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.NamedError("fetch_error", err),
				zap.NamedError("decode_error", decodeErr),
			)
			if consecutiveErrors >= f.cfg.MaxErrors {
				f.logger.Warn("error budget exhausted, returning partial catalog",
					zap.String("site", site),
					zap.Int("products", len(out)),
				)
				return out
			}
			pause(ctx, randomBetween(f.cfg.ErrorDelayMin, f.cfg.ErrorDelayMax))
			continue
		}

		if len(products) == 0 {
			return out
		}

		f.archivePage(ctx, site, page, result.Body)
		out = append(out, products...)
		TotalProductsFetched.Add(float64(len(products)))
		consecutiveErrors = 0
		rateLimitAttempt = 0

		if f.cfg.MaxProducts > 0 && len(out) >= f.cfg.MaxProducts {
			return out[:f.cfg.MaxProducts]
		}
		if len(products) < f.cfg.PageSize {
			return out
		}

		pause(ctx, randomBetween(f.cfg.PageDelayMin, f.cfg.PageDelayMax))
		page++
	}
}

func (f *Fetcher) pageURL(site string, page int) string {
	return siteJoin(site, fmt.Sprintf("products.json?limit=%d&page=%d", f.cfg.PageSize, page))
}

func (f *Fetcher) archivePage(ctx context.Context, site string, page int, body []byte) {
	if f.archive == nil {
		return
	}
	name := archiveObjectName(site, page, time.Now().UTC())
	if err := f.archive.Save(ctx, name, body); err != nil {
		f.logger.Warn("page archive failed",
			zap.String("site", site),
			zap.Int("page", page),
			zap.Error(err),
		)
	}
}

// archiveObjectName builds a stable, date-partitioned object path for one
// fetched page.
func archiveObjectName(site string, page int, fetchedAt time.Time) string {
	host := site
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.Trim(host, "/")
	host = strings.ReplaceAll(host, "/", "_")
	return fmt.Sprintf("feeds/%s/%s/page-%d-%d.json",
		host,
		fetchedAt.Format("2006-01-02"),
		page,
		fetchedAt.UnixNano(),
	)
}
