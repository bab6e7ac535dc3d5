// Package detect compares fresh product observations against the last
// known snapshot and yields change events.
package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmon/shopmon/internal/catalog"
)

// ChangeType tags the kind of state transition a product went through.
type ChangeType string

// Change types, in evaluation precedence order.
const (
	ChangeNew               ChangeType = "new"
	ChangeBecameAvailable   ChangeType = "became_available"
	ChangeBecameUnavailable ChangeType = "became_unavailable"
	ChangePriceDrop         ChangeType = "price_drop"
)

// Drop carries the absolute and percentage price decrease for a
// ChangePriceDrop event.
type Drop struct {
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
}

// Event is one detected product state change. Events are transient: they
// are consumed by the notifier, the transition-timestamp patch and the
// optional event stream, then discarded.
type Event struct {
	ID         string          `json:"id"`
	Type       ChangeType      `json:"type"`
	Site       string          `json:"site"`
	Category   string          `json:"category"`
	Product    catalog.Product `json:"-"`
	ProductID  int64           `json:"product_id"`
	Title      string          `json:"title"`
	Drop       *Drop           `json:"drop,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Detector applies the transition rules in strict precedence. It is pure
// with respect to the store: the caller owns the snapshot map.
type Detector struct {
	dropThreshold float64
	now           func() time.Time
}

// New builds a Detector. dropThreshold is the minimum price decrease, as a
// fraction of the prior price, that counts as a price drop.
func New(dropThreshold float64) *Detector {
	return &Detector{
		dropThreshold: dropThreshold,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate applies the transition rules to one product and returns at most
// one event. The snapshot entry for the product is unconditionally
// overwritten with the new observation, whether or not an event fired.
//
// Rule order is significant: a price drop is only ever detected on a
// product whose availability did not change this cycle.
func (d *Detector) Evaluate(snapshot map[int64]catalog.Snapshot, site string, p catalog.Product) *Event {
	prior, seen := snapshot[p.ID]
	obs := catalog.Observe(p)
	snapshot[p.ID] = obs

	switch {
	case !seen:
		return d.event(ChangeNew, site, p, nil)
	case !prior.Available && obs.Available:
		return d.event(ChangeBecameAvailable, site, p, nil)
	case prior.Available && !obs.Available:
		return d.event(ChangeBecameUnavailable, site, p, nil)
	case prior.Available && obs.Available:
		if drop := priceDrop(prior, obs, d.dropThreshold); drop != nil {
			return d.event(ChangePriceDrop, site, p, drop)
		}
	}
	return nil
}

func (d *Detector) event(typ ChangeType, site string, p catalog.Product, drop *Drop) *Event {
	TotalEvents.WithLabelValues(string(typ)).Inc()
	return &Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Site:       site,
		Product:    p,
		ProductID:  p.ID,
		Title:      p.Title,
		Drop:       drop,
		ObservedAt: d.now(),
	}
}

func priceDrop(prior, current catalog.Snapshot, threshold float64) *Drop {
	if !prior.HasPrice || !current.HasPrice || prior.Price <= 0 {
		return nil
	}
	if current.Price >= prior.Price {
		return nil
	}
	amount := prior.Price - current.Price
	fraction := amount / prior.Price
	if fraction < threshold {
		return nil
	}
	return &Drop{
		Amount:  amount,
		Percent: fraction * 100,
	}
}
