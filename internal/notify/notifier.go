// Package notify delivers change events to Discord-compatible webhook
// endpoints. Delivery is best effort: failures are logged and dropped so a
// dead webhook can never stall a monitoring loop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/catalog"
	"github.com/shopmon/shopmon/internal/detect"
)

// Embed colors per event kind.
const (
	colorGreen = 0x00ff00
	colorRed   = 0xff0000
	colorBlue  = 0x0000ff
)

const defaultTimeout = 10 * time.Second

// Config holds the two webhook endpoints. Either may be empty, which
// disables that channel.
type Config struct {
	NotifyURL string
	ErrorURL  string
}

// httpDoer is the subset of http.Client the notifier needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier posts rich product embeds to a notification channel and
// plain operational messages to a separate error channel.
type WebhookNotifier struct {
	cfg    Config
	client httpDoer
	logger *zap.Logger
}

// New builds a notifier from the endpoint configuration.
func New(cfg Config, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.Named("notify"),
	}
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color"`
	Fields      []embedField    `json:"fields,omitempty"`
	Thumbnail   *embedThumbnail `json:"thumbnail,omitempty"`
	Footer      *embedFooter    `json:"footer,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// ProductEvent posts one change event to the notification channel as a
// Discord embed. With no notify endpoint configured it logs and returns.
func (n *WebhookNotifier) ProductEvent(ctx context.Context, event detect.Event) error {
	if n.cfg.NotifyURL == "" {
		n.logger.Error("notify webhook not configured, dropping event",
			zap.String("type", string(event.Type)),
			zap.Int64("product_id", event.ProductID))
		return nil
	}

	payload := webhookPayload{Embeds: []embed{n.productEmbed(event)}}
	if err := n.post(ctx, n.cfg.NotifyURL, payload); err != nil {
		TotalDeliveryErrors.WithLabelValues("notify").Inc()
		n.logger.Error("webhook delivery failed",
			zap.String("type", string(event.Type)),
			zap.Int64("product_id", event.ProductID),
			zap.Error(err))
		return err
	}
	TotalDeliveries.WithLabelValues("notify").Inc()
	return nil
}

// Operational posts a plain message to the error channel. Used for
// monitor startup and fail-stop alerts.
func (n *WebhookNotifier) Operational(ctx context.Context, message string) error {
	if n.cfg.ErrorURL == "" {
		n.logger.Error("error webhook not configured, dropping message",
			zap.String("message", message))
		return nil
	}

	payload := webhookPayload{Content: message}
	if err := n.post(ctx, n.cfg.ErrorURL, payload); err != nil {
		TotalDeliveryErrors.WithLabelValues("error").Inc()
		n.logger.Error("operational webhook delivery failed", zap.Error(err))
		return err
	}
	TotalDeliveries.WithLabelValues("error").Inc()
	return nil
}

func (n *WebhookNotifier) productEmbed(event detect.Event) embed {
	p := event.Product

	var description string
	color := colorBlue
	switch event.Type {
	case detect.ChangeNew:
		description = "New product detected"
	case detect.ChangeBecameAvailable:
		description = "Product restocked"
		color = colorGreen
	case detect.ChangeBecameUnavailable:
		description = "Product out of stock"
		color = colorRed
	case detect.ChangePriceDrop:
		if event.Drop != nil {
			description = fmt.Sprintf("Price dropped $%.2f (%.1f%% off)",
				event.Drop.Amount, event.Drop.Percent)
		} else {
			description = "Price dropped"
		}
		color = colorGreen
	}

	availability := "No"
	if p.Available() {
		availability = "Yes"
	}

	fields := []embedField{
		{Name: "Product Name", Value: p.Title, Inline: false},
		{Name: "Link", Value: p.URL(event.Site), Inline: false},
		{Name: "Price", Value: "$" + p.PriceString(), Inline: true},
		{Name: "Available", Value: availability, Inline: true},
	}
	if atc := cartLinks(event.Site, p); atc != "" {
		fields = append(fields, embedField{Name: "ATC Links", Value: atc})
	}

	e := embed{
		Title:       p.Title,
		Description: description,
		URL:         p.URL(event.Site),
		Color:       color,
		Fields:      fields,
		Footer:      &embedFooter{Text: event.Category},
		Timestamp:   event.ObservedAt.UTC().Format(time.RFC3339),
	}
	if img := p.ImageURL(); img != "" {
		e.Thumbnail = &embedThumbnail{URL: img}
	}
	return e
}

// cartLinks renders one add-to-cart link per variant, labelled by variant
// title when the product has more than one.
func cartLinks(site string, p catalog.Product) string {
	var buf bytes.Buffer
	for i, v := range p.Variants {
		if i > 0 {
			buf.WriteString("\n")
		}
		if len(p.Variants) > 1 && v.Title != "" {
			fmt.Fprintf(&buf, "[%s](%s)", v.Title, p.CartURL(site, v))
		} else {
			fmt.Fprintf(&buf, "[ATC](%s)", p.CartURL(site, v))
		}
	}
	return buf.String()
}

func (n *WebhookNotifier) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
