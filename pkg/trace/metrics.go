// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus collectors exposed for one target, mirroring
// a per-target GaugeVec/CounterVec/HistogramVec layout.
type Metrics struct {
	probesSent    *prometheus.CounterVec
	repliesTotal  *prometheus.CounterVec
	timeoutsTotal *prometheus.CounterVec
	unreachTotal  *prometheus.CounterVec
	rttHistogram  *prometheus.HistogramVec
	hopCount      *prometheus.GaugeVec
}

// NewMetrics initializes the collectors. Register them with a
// prometheus.Registerer (or call GetCollectors and register individually)
// before observations start arriving.
func NewMetrics() *Metrics {
	return &Metrics{
		probesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoptrace_probes_sent_total",
				Help: "Total number of Echo Request probes sent to a target.",
			},
			[]string{"target"},
		),
		repliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoptrace_responses_received_total",
				Help: "Total number of ICMP replies (Echo Reply, Time Exceeded, Destination Unreachable) matched to a probe.",
			},
			[]string{"target"},
		),
		timeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoptrace_timeouts_total",
				Help: "Total number of probes that went unanswered within their deadline.",
			},
			[]string{"target"},
		),
		unreachTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoptrace_unreachable_total",
				Help: "Total number of Destination Unreachable messages received for a target.",
			},
			[]string{"target"},
		),
		rttHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hoptrace_rtt_seconds",
				Help:    "Observed round-trip time of matched replies, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		hopCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hoptrace_hop_count",
				Help: "Number of hops traversed by the most recently finished trace.",
			},
			[]string{"target"},
		),
	}
}

// GetCollectors returns every collector, for bulk registration.
func (m *Metrics) GetCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.probesSent,
		m.repliesTotal,
		m.timeoutsTotal,
		m.unreachTotal,
		m.rttHistogram,
		m.hopCount,
	}
}

// metricsObserver adapts Observer events into collector updates. Combine it
// with other Observers via NewMultiObserver to keep metrics reporting
// independent of the domain Observer implementation.
type metricsObserver struct {
	target string
	m      *Metrics
	last   Statistics
}

// NewObserver returns an Observer that only updates metrics for target,
// leaving all other Observer methods as no-ops. Compose it with
// NewMultiObserver to also drive logging/UI observers from the same Session.
func (m *Metrics) NewObserver(target string) Observer {
	return &metricsObserver{target: target, m: m}
}

func (o *metricsObserver) OnStarted(string)   {}
func (o *metricsObserver) OnFailed(error)     {}
func (o *metricsObserver) OnHopTimeout(uint8) {}
func (o *metricsObserver) OnHopCompleted(HopResult) {}

func (o *metricsObserver) OnProbeSent(_ uint8, _ uint16) {
	o.m.probesSent.WithLabelValues(o.target).Inc()
}

func (o *metricsObserver) OnResponse(_ uint8, rtt time.Duration) {
	o.m.repliesTotal.WithLabelValues(o.target).Inc()
	o.m.rttHistogram.WithLabelValues(o.target).Observe(rtt.Seconds())
}

// OnStatistics derives timeout/unreachable counter increments from the
// cumulative Statistics snapshot, since those outcomes are not otherwise
// distinguished on the Observer interface.
func (o *metricsObserver) OnStatistics(stats Statistics) {
	if d := stats.Timeouts - o.last.Timeouts; d > 0 {
		o.m.timeoutsTotal.WithLabelValues(o.target).Add(float64(d))
	}
	if d := stats.Unreachables - o.last.Unreachables; d > 0 {
		o.m.unreachTotal.WithLabelValues(o.target).Add(float64(d))
	}
	o.last = stats
}

func (o *metricsObserver) OnFinished(result SessionResult) {
	o.m.hopCount.WithLabelValues(o.target).Set(float64(result.ActualHops))
}

// pingMetricsObserver adapts PingObserver events into the same collectors
// Observer uses, so a ContinuousPinger and a Session report to the same
// /metrics endpoint.
type pingMetricsObserver struct {
	target string
	m      *Metrics
	last   Statistics
}

// NewPingObserver returns a PingObserver that updates metrics for target.
func (m *Metrics) NewPingObserver(target string) PingObserver {
	return &pingMetricsObserver{target: target, m: m}
}

func (o *pingMetricsObserver) OnReply(_ uint16, rtt time.Duration) {
	o.m.repliesTotal.WithLabelValues(o.target).Inc()
	o.m.rttHistogram.WithLabelValues(o.target).Observe(rtt.Seconds())
}

func (o *pingMetricsObserver) OnTimeout(uint16) {
	o.m.timeoutsTotal.WithLabelValues(o.target).Inc()
}

func (o *pingMetricsObserver) OnUnexpected(string) {
	o.m.unreachTotal.WithLabelValues(o.target).Inc()
}

// OnStatistics derives the probes-sent counter increment from the
// cumulative snapshot, since ContinuousPinger has no OnProbeSent event.
func (o *pingMetricsObserver) OnStatistics(stats Statistics) {
	if d := stats.ProbesSent - o.last.ProbesSent; d > 0 {
		o.m.probesSent.WithLabelValues(o.target).Add(float64(d))
	}
	o.last = stats
}

// Remove deletes every label-valued series for target.
func (m *Metrics) Remove(target string) {
	m.probesSent.DeleteLabelValues(target)
	m.repliesTotal.DeleteLabelValues(target)
	m.timeoutsTotal.DeleteLabelValues(target)
	m.unreachTotal.DeleteLabelValues(target)
	m.rttHistogram.DeleteLabelValues(target)
	m.hopCount.DeleteLabelValues(target)
}
