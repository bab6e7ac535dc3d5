package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/catalog"
	"github.com/shopmon/shopmon/internal/detect"
)

type capturedPayload struct {
	Content string `json:"content"`
	Embeds  []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Color       int    `json:"color"`
		Fields      []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"fields"`
		Thumbnail *struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
		Footer *struct {
			Text string `json:"text"`
		} `json:"footer"`
	} `json:"embeds"`
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []capturedPayload
	status   int
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var p capturedPayload
		json.Unmarshal(body, &p)
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		status := r.status
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) last(t *testing.T) capturedPayload {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.payloads)
	return r.payloads[len(r.payloads)-1]
}

func restockEvent() detect.Event {
	return detect.Event{
		ID:       "event-1",
		Type:     detect.ChangeBecameAvailable,
		Site:     "https://example-store.com/",
		Category: "Bourbon",
		Product: catalog.Product{
			ID:     111,
			Handle: "eagle-rare-10",
			Title:  "Eagle Rare 10 Year",
			Variants: []catalog.Variant{
				{ID: 2001, Title: "750ml", Price: "49.99", Available: true},
				{ID: 2002, Title: "1.75L", Price: "89.99", Available: true},
			},
			Images: []catalog.Image{{Src: "https://cdn.example.com/eagle.jpg"}},
		},
		ProductID:  111,
		Title:      "Eagle Rare 10 Year",
		ObservedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestProductEventPostsEmbed(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := New(Config{NotifyURL: srv.URL}, zap.NewNop())
	require.NoError(t, n.ProductEvent(context.Background(), restockEvent()))

	payload := rec.last(t)
	require.Len(t, payload.Embeds, 1)

	e := payload.Embeds[0]
	require.Equal(t, "Eagle Rare 10 Year", e.Title)
	require.Equal(t, "Product restocked", e.Description)
	require.Equal(t, colorGreen, e.Color)
	require.NotNil(t, e.Thumbnail)
	require.Equal(t, "https://cdn.example.com/eagle.jpg", e.Thumbnail.URL)
	require.NotNil(t, e.Footer)
	require.Equal(t, "Bourbon", e.Footer.Text)

	fields := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		fields[f.Name] = f.Value
	}
	require.Equal(t, "Eagle Rare 10 Year", fields["Product Name"])
	require.Equal(t, "https://example-store.com/products/eagle-rare-10", fields["Link"])
	require.Equal(t, "$49.99", fields["Price"])
	require.Equal(t, "Yes", fields["Available"])
	require.Contains(t, fields["ATC Links"], "https://example-store.com/cart/2001:1")
	require.Contains(t, fields["ATC Links"], "https://example-store.com/cart/2002:1")
	require.Contains(t, fields["ATC Links"], "750ml")
}

func TestProductEventPriceDropDescription(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	event := restockEvent()
	event.Type = detect.ChangePriceDrop
	event.Drop = &detect.Drop{Amount: 10, Percent: 20}

	n := New(Config{NotifyURL: srv.URL}, zap.NewNop())
	require.NoError(t, n.ProductEvent(context.Background(), event))

	payload := rec.last(t)
	require.Len(t, payload.Embeds, 1)
	require.Equal(t, "Price dropped $10.00 (20.0% off)", payload.Embeds[0].Description)
	require.Equal(t, colorGreen, payload.Embeds[0].Color)
}

func TestProductEventUnavailableColor(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	event := restockEvent()
	event.Type = detect.ChangeBecameUnavailable

	n := New(Config{NotifyURL: srv.URL}, zap.NewNop())
	require.NoError(t, n.ProductEvent(context.Background(), event))

	require.Equal(t, colorRed, rec.last(t).Embeds[0].Color)
}

func TestProductEventWithoutEndpointIsNoop(t *testing.T) {
	t.Parallel()

	n := New(Config{}, zap.NewNop())
	require.NoError(t, n.ProductEvent(context.Background(), restockEvent()))
}

func TestProductEventSurfacesHTTPError(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{status: http.StatusTooManyRequests}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := New(Config{NotifyURL: srv.URL}, zap.NewNop())
	err := n.ProductEvent(context.Background(), restockEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestOperationalPostsPlainContent(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := New(Config{ErrorURL: srv.URL}, zap.NewNop())
	require.NoError(t, n.Operational(context.Background(), "monitor stopped for https://example-store.com/"))

	payload := rec.last(t)
	require.Equal(t, "monitor stopped for https://example-store.com/", payload.Content)
	require.Empty(t, payload.Embeds)
}
