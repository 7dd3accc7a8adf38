// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridgemetrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/sqlbridge/lib/sqlitebridge"
)

// Metric names exported by PrometheusCollector.
const (
	WorkersActiveName = "sqlbridge_workers_active"
	CommandsTotalName = "sqlbridge_commands_total"
	CommandWaitName   = "sqlbridge_command_wait_seconds"
	CommandRunName    = "sqlbridge_command_run_seconds"
)

// PrometheusCollector implements sqlitebridge.Collector on top of
// Prometheus metrics. One collector can be shared by any number of
// clients and pools.
type PrometheusCollector struct {
	workers  prometheus.Gauge
	commands *prometheus.CounterVec
	wait     *prometheus.HistogramVec
	run      *prometheus.HistogramVec
}

var _ sqlitebridge.Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the sqlbridge metrics with reg, or
// with prometheus.DefaultRegisterer when reg is nil. Registering twice
// against the same registerer returns a collector backed by the
// metrics from the first call.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	workers, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: WorkersActiveName,
		Help: "Number of connection workers currently serving commands.",
	}))
	if err != nil {
		return nil, err
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: CommandsTotalName,
		Help: "Commands executed by connection workers, by kind and result.",
	}, []string{"kind", "result"}))
	if err != nil {
		return nil, err
	}

	wait, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    CommandWaitName,
		Help:    "Time commands spent queued before a worker picked them up.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	run, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    CommandRunName,
		Help:    "Time workers spent executing commands.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		workers:  workers,
		commands: commands,
		wait:     wait,
		run:      run,
	}, nil
}

// register registers collector with reg. If an identical collector is
// already registered, the existing one is returned instead.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, err
}

// WorkerStarted increments the active worker gauge.
func (p *PrometheusCollector) WorkerStarted() {
	if p == nil {
		return
	}
	p.workers.Inc()
}

// WorkerStopped decrements the active worker gauge.
func (p *PrometheusCollector) WorkerStopped() {
	if p == nil {
		return
	}
	p.workers.Dec()
}

// ObserveCommand counts the command and records its queue and run
// times.
func (p *PrometheusCollector) ObserveCommand(kind string, wait, run time.Duration, err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.commands.WithLabelValues(kind, result).Inc()
	p.wait.WithLabelValues(kind).Observe(wait.Seconds())
	p.run.WithLabelValues(kind).Observe(run.Seconds())
}
