package catalog

import (
	mathrand "math/rand/v2"
	"net/http"
)

// Fixed pools for request fingerprint rotation. Each request draws one
// value from each pool so consecutive requests never share an identical
// header set.
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}

	acceptLanguages = []string{
		"en-US,en;q=0.9",
		"en-US,en;q=0.8",
		"en-GB,en;q=0.9,en-US;q=0.8",
		"en-CA,en;q=0.9",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.bing.com/",
		"https://duckduckgo.com/",
		"",
	}
)

// rotatedHeaders returns one randomized header set for a single request.
func rotatedHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgents[mathrand.IntN(len(userAgents))])
	h.Set("Accept-Language", acceptLanguages[mathrand.IntN(len(acceptLanguages))])
	h.Set("Accept", "application/json")
	if ref := referers[mathrand.IntN(len(referers))]; ref != "" {
		h.Set("Referer", ref)
	}
	return h
}
