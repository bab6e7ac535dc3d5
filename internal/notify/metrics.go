package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalDeliveries counts successful webhook posts by channel.
	TotalDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopmon_webhook_deliveries_total",
		Help: "Successful webhook deliveries by channel.",
	}, []string{"channel"})

	// TotalDeliveryErrors counts failed webhook posts by channel.
	TotalDeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopmon_webhook_delivery_errors_total",
		Help: "Failed webhook deliveries by channel.",
	}, []string{"channel"})
)
