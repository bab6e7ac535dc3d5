package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TotalEvents tracks detected change events by type.
var TotalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shopmon_change_events_total",
	Help: "The total number of detected product change events.",
}, []string{"type"})
