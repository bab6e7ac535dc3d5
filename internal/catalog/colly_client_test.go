package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyClientGetSuccess(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	client := NewCollyClient(ClientConfig{Timeout: 5 * time.Second})
	result, err := client.Get(context.Background(), srv.URL+"/products.json?limit=250&page=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.JSONEq(t, `{"products":[]}`, string(result.Body))

	require.Contains(t, gotUA, "Mozilla/5.0", "rotated user agent must be applied")
	require.NotEmpty(t, gotLang, "rotated accept-language must be applied")
}

func TestCollyClientGetSurfacesRateLimitStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewCollyClient(ClientConfig{Timeout: 5 * time.Second})
	result, err := client.Get(context.Background(), srv.URL+"/products.json")
	require.Error(t, err)
	require.Equal(t, http.StatusTooManyRequests, result.StatusCode,
		"status must be readable even when the request errors")
}

func TestCollyClientGetConcurrent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	// One client serves every site monitor, so Get must be safe to call
	// from many goroutines at once.
	client := NewCollyClient(ClientConfig{Timeout: 5 * time.Second})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				result, err := client.Get(context.Background(), srv.URL+"/products.json")
				if err != nil {
					errs <- err
					return
				}
				if result.StatusCode != http.StatusOK {
					errs <- fmt.Errorf("unexpected status %d", result.StatusCode)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestCollyClientHeaderRotationDrawsFromPools(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		h := rotatedHeaders()
		ua := h.Get("User-Agent")
		require.Contains(t, userAgents, ua)
		seen[ua] = struct{}{}
	}
	require.Greater(t, len(seen), 1, "rotation must not pin a single user agent")
}

func TestRandomProxyFuncPicksFromPool(t *testing.T) {
	t.Parallel()

	fn := randomProxyFunc([]string{"10.0.0.1:8080", "http://10.0.0.2:8080"})
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		u, err := fn(nil)
		require.NoError(t, err)
		require.Equal(t, "http", u.Scheme)
		seen[u.Host] = struct{}{}
	}
	require.Len(t, seen, 2, "both proxies should be selected over repeated draws")
}
