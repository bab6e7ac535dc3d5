package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of catalog page requests dispatched.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_feed_requests_total",
		Help: "The total number of product feed page requests sent.",
	})
	// TotalRequestErrors tracks requests that failed in transport, returned
	// a non-2xx status other than 429, or produced an undecodable body.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_feed_request_errors_total",
		Help: "The total number of failed product feed requests.",
	})
	// TotalRateLimitHits tracks 429 responses from monitored sites.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_feed_rate_limit_hits_total",
		Help: "The total number of times a site rate limited the fetcher.",
	})
	// TotalCooldowns tracks long site-wide suspensions after sustained 429s.
	TotalCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_feed_cooldowns_total",
		Help: "The total number of rate-limit cooldown sleeps taken.",
	})
	// TotalProductsFetched tracks product records accumulated across fetches.
	TotalProductsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_feed_products_fetched_total",
		Help: "The total number of product records fetched from feeds.",
	})
)
