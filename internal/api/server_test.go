package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/store"
)

type fakeRepository struct {
	mu       sync.Mutex
	products map[string]store.StoredProduct
	updates  []store.StoredProduct
}

func newFakeRepository(products ...store.StoredProduct) *fakeRepository {
	repo := &fakeRepository{products: make(map[string]store.StoredProduct)}
	for _, p := range products {
		repo.products[repoKey(p.ID, p.Site)] = p
	}
	return repo
}

func repoKey(id int64, site string) string {
	return fmt.Sprintf("%d|%s", id, site)
}

func (r *fakeRepository) List(_ context.Context, site string, limit, offset int) ([]store.StoredProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.StoredProduct
	for _, p := range r.products {
		if site == "" || p.Site == site {
			out = append(out, p)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) Count(_ context.Context, site string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, p := range r.products {
		if site == "" || p.Site == site {
			total++
		}
	}
	return total, nil
}

func (r *fakeRepository) Search(_ context.Context, q string, limit, _ int) ([]store.StoredProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.StoredProduct
	for _, p := range r.products {
		if bytes.Contains([]byte(p.Title), []byte(q)) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepository) SearchCount(_ context.Context, q string) (int, error) {
	products, err := r.Search(context.Background(), q, 1<<30, 0)
	return len(products), err
}

func (r *fakeRepository) Get(_ context.Context, id int64, site string) (store.StoredProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if site == "" {
		for _, p := range r.products {
			if p.ID == id {
				return p, nil
			}
		}
		return store.StoredProduct{}, store.ErrNotFound
	}
	p, ok := r.products[repoKey(id, site)]
	if !ok {
		return store.StoredProduct{}, store.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepository) Update(_ context.Context, p store.StoredProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[repoKey(p.ID, p.Site)]; !ok {
		return store.ErrNotFound
	}
	r.products[repoKey(p.ID, p.Site)] = p
	r.updates = append(r.updates, p)
	return nil
}

func (r *fakeRepository) Delete(_ context.Context, id int64, site string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[repoKey(id, site)]; !ok {
		return store.ErrNotFound
	}
	delete(r.products, repoKey(id, site))
	return nil
}

func stored(id int64, site, title string) store.StoredProduct {
	return store.StoredProduct{
		Row: store.Row{
			ID:       id,
			Site:     site,
			Title:    title,
			Category: "Bourbon",
			Price:    "49.99",
		},
		DateAdded: time.Unix(1700000000, 0).UTC(),
		LastSeen:  time.Unix(1700000000, 0).UTC(),
	}
}

func newTestServer(t *testing.T, repo ProductRepository) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(repo, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepository())

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestListProductsPaginates(t *testing.T) {
	t.Parallel()

	repo := newFakeRepository(
		stored(1, "https://a.com/", "Product A"),
		stored(2, "https://a.com/", "Product B"),
		stored(3, "https://b.com/", "Product C"),
	)
	srv := newTestServer(t, repo)

	var page productPage
	status := getJSON(t, srv.URL+"/api/products/?site=https://a.com/", &page)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Products, 2)
	require.Equal(t, 1, page.Page)
	require.Equal(t, defaultPerPage, page.PerPage)

	status = getJSON(t, srv.URL+"/api/products/?per_page=1&page=4", &page)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 3, page.Total)
	require.Empty(t, page.Products)
}

func TestSearchRequiresQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepository())
	status := getJSON(t, srv.URL+"/api/products/search", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSearchMatchesTitle(t *testing.T) {
	t.Parallel()

	repo := newFakeRepository(
		stored(1, "https://a.com/", "Eagle Rare 10"),
		stored(2, "https://a.com/", "Blanton's Original"),
	)
	srv := newTestServer(t, repo)

	var page productPage
	status := getJSON(t, srv.URL+"/api/products/search?q=Eagle", &page)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Products, 1)
	require.Equal(t, int64(1), page.Products[0].ID)
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	repo := newFakeRepository(stored(1, "https://a.com/", "Eagle Rare 10"))
	srv := newTestServer(t, repo)

	var p store.StoredProduct
	status := getJSON(t, srv.URL+"/api/products/1?site=https://a.com/", &p)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Eagle Rare 10", p.Title)

	status = getJSON(t, srv.URL+"/api/products/99?site=https://a.com/", nil)
	require.Equal(t, http.StatusNotFound, status)

	status = getJSON(t, srv.URL+"/api/products/not-a-number", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateProductTogglesIgnoreFlag(t *testing.T) {
	t.Parallel()

	repo := newFakeRepository(stored(1, "https://a.com/", "Eagle Rare 10"))
	srv := newTestServer(t, repo)

	body, err := json.Marshal(updateProductRequest{
		Title:               "Eagle Rare 10",
		Price:               "49.99",
		Category:            "Bourbon",
		IgnoreNotifications: true,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/api/products/1?site=https://a.com/", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, repo.updates, 1)
	require.True(t, repo.updates[0].IgnoreNotifications)
}

func TestUpdateProductRequiresSite(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepository())

	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/api/products/1", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteProduct(t *testing.T) {
	t.Parallel()

	repo := newFakeRepository(stored(1, "https://a.com/", "Eagle Rare 10"))
	srv := newTestServer(t, repo)

	req, err := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/products/1?site=https://a.com/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := getJSON(t, srv.URL+"/api/products/1?site=https://a.com/", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepository())
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
