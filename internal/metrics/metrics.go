package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_sessions",
		Help: "Current live websocket sessions.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_sent_total",
		Help: "Total messages persisted and broadcast.",
	})
	ValidationFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_validation_fail_total",
		Help: "Total sends rejected by validation (empty text).",
	})
	PersistFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_persist_fail_total",
		Help: "Total sends that failed at the persistence store.",
	})
	Duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_duplicates_total",
		Help: "Total duplicate sends short-circuited by client_msg_id dedupe.",
	})

	SendBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_backpressure_total",
		Help: "Total frames dropped because a session outbound queue was full.",
	})
	TypingRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_typing_relayed_total",
		Help: "Total typing state transitions relayed to other sessions.",
	})
	BreakerOpen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_store_breaker_open_total",
		Help: "Total times the persistence circuit breaker opened.",
	})
)

func Register() {
	prometheus.MustRegister(
		OnlineSessions,
		MessagesSent, ValidationFail, PersistFail, Duplicates,
		SendBackpressure, TypingRelayed, BreakerOpen,
	)
}
