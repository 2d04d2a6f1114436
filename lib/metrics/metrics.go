// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes server instrumentation to Prometheus.
//
// A nil *Recorder is valid and records nothing, so components take an
// optional recorder without checking for it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stardust"

// Recorder owns a Prometheus registry and the server's collectors.
type Recorder struct {
	registry *prometheus.Registry

	clients      prometheus.Gauge
	nodes        prometheus.Gauge
	pendingCalls prometheus.Gauge
	tickDuration prometheus.Histogram
	messages     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	disconnects  *prometheus.CounterVec
}

// New returns a recorder with its own registry, which also carries the
// standard process and Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Connected clients in any state before Closed.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Live nodes, including the interface node.",
		}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_calls",
			Help:      "Server-to-client calls awaiting a response.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one dispatch tick.",
			// 50µs .. ~100ms; a 90 Hz frame is 11ms.
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages dispatched, by kind.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error responses sent, by error code.",
		}, []string{"code"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Clients torn down, by reason.",
		}, []string{"reason"}),
	}
	r.registry.MustRegister(
		r.clients, r.nodes, r.pendingCalls, r.tickDuration,
		r.messages, r.errors, r.disconnects,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Tick records one completed tick and the gauges sampled at its end.
func (r *Recorder) Tick(duration time.Duration, clients, nodes, pending int) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(duration.Seconds())
	r.clients.Set(float64(clients))
	r.nodes.Set(float64(nodes))
	r.pendingCalls.Set(float64(pending))
}

// Message counts one dispatched inbound message.
func (r *Recorder) Message(kind string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(kind).Inc()
}

// Error counts one error response.
func (r *Recorder) Error(code string) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(code).Inc()
}

// Disconnect counts one client teardown.
func (r *Recorder) Disconnect(reason string) {
	if r == nil {
		return
	}
	r.disconnects.WithLabelValues(reason).Inc()
}
