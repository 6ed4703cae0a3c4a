package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_active_billing_sessions",
		Help: "Number of rooms currently under metered billing",
	})

	SignalConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_open_connections",
		Help: "Open signaling websocket connections",
	})

	CallRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_requests_total",
		Help: "Call requests by kind and outcome",
	}, []string{"kind", "result"})

	BillingTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_ticks_total",
		Help: "Billing authorization ticks performed",
	})

	BillingTickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_tick_errors_total",
		Help: "Billing ticks that failed at the transport level",
	})

	ForcedTerminations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_forced_terminations_total",
		Help: "Calls terminated because billing was refused",
	})
)
