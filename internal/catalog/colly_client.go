package catalog

import (
	"context"
	"fmt"
	mathrand "math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// PageResult is the outcome of one catalog page request. StatusCode is set
// whenever the server answered, including on non-2xx responses.
type PageResult struct {
	StatusCode int
	Body       []byte
}

// PageClient issues a single catalog page request.
type PageClient interface {
	Get(ctx context.Context, rawURL string) (PageResult, error)
}

// ClientConfig controls the colly-backed page client.
type ClientConfig struct {
	Timeout time.Duration
	Proxies []string
}

// CollyClient implements PageClient using one shared colly backend and a
// cloned collector per request, with rotated fingerprint headers and
// per-attempt random proxy selection.
type CollyClient struct {
	base *colly.Collector
}

// NewCollyClient builds a page client. With an empty proxy pool requests go
// out directly over a pooled transport, so connections to a site are reused
// between pages; configuring a proxy pool disables keep-alives. Transport,
// timeout and proxy selection are fixed here: clones share the backend, so
// per-request mutation of any of them would race across site monitors.
func NewCollyClient(cfg ClientConfig) *CollyClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.WithTransport(newHTTPTransport())
	base.SetRequestTimeout(cfg.Timeout)
	if len(cfg.Proxies) > 0 {
		base.SetProxyFunc(randomProxyFunc(cfg.Proxies))
	}
	return &CollyClient{base: base}
}

// Get fetches one page. The returned error is non-nil for transport
// failures and non-2xx statuses; callers inspect StatusCode to distinguish
// rate limiting from generic failures. Safe for concurrent use.
func (c *CollyClient) Get(ctx context.Context, rawURL string) (PageResult, error) {
	var (
		result   PageResult
		fetchErr error
	)
	collector := c.base.Clone()

	headers := rotatedHeaders()
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = PageResult{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return result, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return result, fmt.Errorf("page fetch failed: %w", fetchErr)
		}
		if err != nil {
			return result, fmt.Errorf("page visit failed: %w", err)
		}
		return result, nil
	}
}

// randomProxyFunc picks uniformly at random from the pool on every attempt.
func randomProxyFunc(proxies []string) colly.ProxyFunc {
	return func(_ *http.Request) (*url.URL, error) {
		raw := proxies[mathrand.IntN(len(proxies))]
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		return u, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
