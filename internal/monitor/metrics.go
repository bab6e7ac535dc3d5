package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalCycles counts completed and attempted watch cycles.
	TotalCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_monitor_cycles_total",
		Help: "Watch cycles attempted across all sites.",
	})

	// TotalCycleFailures counts cycles that ended in an error or panic.
	TotalCycleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_monitor_cycle_failures_total",
		Help: "Watch cycles that failed.",
	})

	// TotalMonitorStops counts sites abandoned after repeated failures.
	TotalMonitorStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_monitor_stops_total",
		Help: "Site monitors that fail-stopped permanently.",
	})

	// TotalSuppressedNotifications counts new-product notifications held
	// back by the per-cycle cap.
	TotalSuppressedNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopmon_monitor_suppressed_notifications_total",
		Help: "New-product notifications suppressed by the per-cycle cap.",
	})
)
