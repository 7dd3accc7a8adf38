// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridgemetrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlbridge/lib/bridgemetrics"
	"github.com/bureau-foundation/sqlbridge/lib/sqlitebridge"
	bridgetest "github.com/bureau-foundation/sqlbridge/lib/testutil"
)

func TestCollectorCountsCommands(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector, err := bridgemetrics.NewPrometheusCollector(registry)
	if err != nil {
		t.Fatalf("NewPrometheusCollector: %v", err)
	}

	collector.WorkerStarted()
	collector.ObserveCommand("invoke", time.Millisecond, 2*time.Millisecond, nil)
	collector.ObserveCommand("invoke", 0, time.Millisecond, errors.New("boom"))
	collector.ObserveCommand("shutdown", 0, 0, nil)

	if got := testutil.ToFloat64(registryGauge(t, registry)); got != 1 {
		t.Errorf("workers_active = %v, want 1", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != bridgemetrics.CommandsTotalName {
			continue
		}
		for _, metric := range family.GetMetric() {
			key := ""
			for _, label := range metric.GetLabel() {
				key += label.GetName() + "=" + label.GetValue() + ","
			}
			counts[key] = metric.GetCounter().GetValue()
		}
	}
	want := map[string]float64{
		"kind=invoke,result=ok,":    1,
		"kind=invoke,result=error,": 1,
		"kind=shutdown,result=ok,":  1,
	}
	for key, value := range want {
		if counts[key] != value {
			t.Errorf("commands_total{%s} = %v, want %v", key, counts[key], value)
		}
	}

	if n := testutil.CollectAndCount(registry, bridgemetrics.CommandRunName); n != 2 {
		t.Errorf("run histogram series = %d, want 2", n)
	}

	collector.WorkerStopped()
	if got := testutil.ToFloat64(registryGauge(t, registry)); got != 0 {
		t.Errorf("workers_active after stop = %v, want 0", got)
	}
}

// registryGauge returns the workers_active gauge by registering a
// second collector, which reuses the existing metrics.
func registryGauge(t *testing.T, registry *prometheus.Registry) prometheus.Collector {
	t.Helper()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: bridgemetrics.WorkersActiveName,
		Help: "Number of connection workers currently serving commands.",
	})
	err := registry.Register(gauge)
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		t.Fatalf("expected workers gauge to be registered already, got %v", err)
	}
	return already.ExistingCollector
}

func TestCollectorReregistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := bridgemetrics.NewPrometheusCollector(registry)
	if err != nil {
		t.Fatalf("first NewPrometheusCollector: %v", err)
	}
	second, err := bridgemetrics.NewPrometheusCollector(registry)
	if err != nil {
		t.Fatalf("second NewPrometheusCollector: %v", err)
	}

	first.WorkerStarted()
	second.WorkerStarted()
	if got := testutil.ToFloat64(registryGauge(t, registry)); got != 2 {
		t.Errorf("workers_active = %v, want 2 (shared gauge)", got)
	}
}

func TestCollectorConflictingRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	// Same name, different type: registration must fail.
	conflict := prometheus.NewCounter(prometheus.CounterOpts{
		Name: bridgemetrics.WorkersActiveName,
		Help: "Number of connection workers currently serving commands.",
	})
	if err := registry.Register(conflict); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := bridgemetrics.NewPrometheusCollector(registry); err == nil {
		t.Fatal("expected error for conflicting metric type")
	}
}

func TestCollectorWithClient(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector, err := bridgemetrics.NewPrometheusCollector(registry)
	if err != nil {
		t.Fatalf("NewPrometheusCollector: %v", err)
	}

	client, err := sqlitebridge.Open(context.Background(), sqlitebridge.ClientConfig{Metrics: collector})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 3 {
		if err := client.ConnBlocking(func(*sqlite.Conn) error { return nil }); err != nil {
			t.Fatalf("ConnBlocking: %v", err)
		}
	}
	if err := client.CloseBlocking(); err != nil {
		t.Fatalf("CloseBlocking: %v", err)
	}
	bridgetest.RequireClosed(t, client.Done(), 5*time.Second, "worker did not exit")

	if got := testutil.ToFloat64(registryGauge(t, registry)); got != 0 {
		t.Errorf("workers_active = %v, want 0 after close", got)
	}
	if n := testutil.CollectAndCount(registry, bridgemetrics.CommandsTotalName); n != 2 {
		t.Errorf("commands_total series = %d, want 2 (invoke ok, shutdown ok)", n)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *bridgemetrics.PrometheusCollector
	collector.WorkerStarted()
	collector.WorkerStopped()
	collector.ObserveCommand("invoke", 0, 0, nil)
}
