// Copyright 2026 Ardent Robotics Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardent-robotics/warden/core/lease"
)

const (
	outcomeOK      = "ok"
	outcomeDenied  = "denied"
	outcomeInvalid = "invalid"
)

func outcomeForStatus(status lease.UseStatus) string {
	if status == lease.UseStatusOK {
		return outcomeOK
	}
	return string(status)
}

var activeLeasesDesc = prometheus.NewDesc(
	"warden_registry_active_leases",
	"Number of resources with an active lease.",
	nil, nil,
)

type metrics struct {
	requests *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "registry",
			Name:      "requests_total",
			Help:      "Lease operations handled, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
}

func (m *metrics) observe(operation, outcome string) {
	m.requests.WithLabelValues(operation, outcome).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	r.metrics.requests.Describe(ch)
	ch <- activeLeasesDesc
}

// Collect is part of the prometheus.Collector interface.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.metrics.requests.Collect(ch)

	r.mu.Lock()
	var active int
	for _, e := range r.entries {
		if e.active != nil {
			active++
		}
	}
	r.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(activeLeasesDesc, prometheus.GaugeValue, float64(active))
}
