// Package metrics exposes an ice.Agent's event stream as Prometheus
// counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	ice "github.com/gortc/iceagent"
)

// Collector implements prometheus.Collector by consuming an agent's
// event bus and tallying pair/state transitions.
//
// Grounded on internal/server/server_metrics.go's promMetrics
// (single-purpose counters built with prometheus.NewCounter, exposed
// via Describe/Collect) and internal/allocator.Allocator's
// mutex-guarded copy-on-write Collect pattern, generalized here to a
// fixed set of named metrics instead of a dynamic per-allocation set.
type Collector struct {
	checksSucceeded prometheus.Counter
	checksFailed    prometheus.Counter
	pairsNominated  prometheus.Counter
	consentLost     prometheus.Counter
	stateGauge      *prometheus.GaugeVec
}

// EventSource is the subset of agent.Agent's event API the Collector
// needs; satisfied by *agent.Agent.
type EventSource interface {
	Events(buffer int) <-chan ice.Event
	Unsubscribe(ch <-chan ice.Event)
}

// New returns a Collector and starts consuming events published by src
// until stop is closed.
func New(labels prometheus.Labels, src EventSource, stop <-chan struct{}) *Collector {
	c := &Collector{
		checksSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iceagent_pair_checks_succeeded_total",
			Help:        "Number of connectivity checks that produced a valid pair.",
			ConstLabels: labels,
		}),
		checksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iceagent_pair_checks_failed_total",
			Help:        "Number of connectivity checks that failed or timed out.",
			ConstLabels: labels,
		}),
		pairsNominated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iceagent_pairs_nominated_total",
			Help:        "Number of candidate pairs nominated.",
			ConstLabels: labels,
		}),
		consentLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iceagent_consent_lost_total",
			Help:        "Number of selected pairs that lost consent freshness.",
			ConstLabels: labels,
		}),
		stateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "iceagent_state",
			Help:        "Current agent state, one gauge per ice.AgentState set to 1.",
			ConstLabels: labels,
		}, []string{"state"}),
	}
	ch := src.Events(32)
	go func() {
		for {
			select {
			case <-stop:
				src.Unsubscribe(ch)
				return
			case ev := <-ch:
				c.observe(ev)
			}
		}
	}()
	return c
}

func (c *Collector) observe(ev ice.Event) {
	switch ev.Kind {
	case ice.EventPairStateChanged:
		p := ev.Payload.(ice.PairStateChanged)
		switch p.To {
		case ice.PairSucceeded:
			c.checksSucceeded.Inc()
		case ice.PairFailed:
			c.checksFailed.Inc()
		}
	case ice.EventPairNominated:
		c.pairsNominated.Inc()
	case ice.EventConsentFreshness:
		p := ev.Payload.(ice.PairConsentFreshness)
		if p.Lost {
			c.consentLost.Inc()
		}
	case ice.EventStateChanged:
		p := ev.Payload.(ice.AgentStateChanged)
		c.stateGauge.Reset()
		c.stateGauge.WithLabelValues(p.To.String()).Set(1)
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(d chan<- *prometheus.Desc) {
	c.checksSucceeded.Describe(d)
	c.checksFailed.Describe(d)
	c.pairsNominated.Describe(d)
	c.consentLost.Describe(d)
	c.stateGauge.Describe(d)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(m chan<- prometheus.Metric) {
	c.checksSucceeded.Collect(m)
	c.checksFailed.Collect(m)
	c.pairsNominated.Collect(m)
	c.consentLost.Collect(m)
	c.stateGauge.Collect(m)
}
