// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgemetrics exports sqlitebridge worker telemetry as
// Prometheus metrics.
//
//	collector, err := bridgemetrics.NewPrometheusCollector(registry)
//	client, err := sqlitebridge.Open(ctx, sqlitebridge.ClientConfig{
//	    Path:    path,
//	    Metrics: collector,
//	})
package bridgemetrics
