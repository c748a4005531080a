// Package metrics wraps a Prometheus registry with the counters/gauges
// the client's Session and Call layers update, grounded on
// the teacher's metrics wiring pattern (pkg/dialog/metrics.go) and
// SPEC_FULL.md §4.K.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge imsphone emits.
type Metrics struct {
	RegisterAttempts   prometheus.Counter
	RegisterChallenges prometheus.Counter
	RegisterSuccesses  prometheus.Counter

	InviteAttempts prometheus.Counter
	InviteSuccesses prometheus.Counter
	InviteFailures prometheus.Counter

	RTPPacketsSent     prometheus.Counter
	RTPPacketsReceived prometheus.Counter
	RTPPacketsDropped  prometheus.Counter

	ActiveCalls          prometheus.Gauge
	// ReactorRegistrations is registered but not set by any package in
	// this module; it stays at 0.
	ReactorRegistrations prometheus.Gauge
}

// New builds a Metrics bound to reg (nil creates a fresh private
// registry so callers can still use the Counters/Gauges without wiring an
// HTTP exposition endpoint).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		RegisterAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "register", Name: "attempts_total",
			Help: "REGISTER requests sent.",
		}),
		RegisterChallenges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "register", Name: "challenges_total",
			Help: "401 Unauthorized challenges received.",
		}),
		RegisterSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "register", Name: "successes_total",
			Help: "Successful registrations.",
		}),
		InviteAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "invite", Name: "attempts_total",
			Help: "INVITE requests sent.",
		}),
		InviteSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "invite", Name: "successes_total",
			Help: "INVITE transactions answered 200 OK.",
		}),
		InviteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "invite", Name: "failures_total",
			Help: "INVITE transactions that failed.",
		}),
		RTPPacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "rtp", Name: "packets_sent_total",
			Help: "RTP packets sent.",
		}),
		RTPPacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "rtp", Name: "packets_received_total",
			Help: "RTP packets received.",
		}),
		RTPPacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imsphone", Subsystem: "rtp", Name: "packets_dropped_total",
			Help: "RTP packets dropped (format mismatch or parse error).",
		}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imsphone", Name: "active_calls",
			Help: "Number of active calls.",
		}),
		ReactorRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imsphone", Name: "reactor_registrations",
			Help: "Number of registrations currently held by the reactor.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.RegisterAttempts, m.RegisterChallenges, m.RegisterSuccesses,
		m.InviteAttempts, m.InviteSuccesses, m.InviteFailures,
		m.RTPPacketsSent, m.RTPPacketsReceived, m.RTPPacketsDropped,
		m.ActiveCalls, m.ReactorRegistrations,
	} {
		_ = reg.Register(c)
	}
	return m
}
