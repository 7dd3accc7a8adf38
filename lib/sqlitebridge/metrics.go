// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import "time"

// Collector receives telemetry from workers.
//
// Hooks run inline on the worker goroutine, between commands, so
// implementations must be cheap and must not call back into the
// Client that reported them.
type Collector interface {
	// WorkerStarted is called once a connection is open and the
	// worker begins serving commands.
	WorkerStarted()

	// WorkerStopped is called when the worker exits, whether through
	// a successful close or because every handle was released.
	WorkerStopped()

	// ObserveCommand reports one executed command. kind is "invoke"
	// or "shutdown"; wait is the time spent queued and run the time
	// spent executing.
	ObserveCommand(kind string, wait, run time.Duration, err error)
}

type noopCollector struct{}

// Noop returns a collector that discards all telemetry.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) WorkerStarted()                                             {}
func (noopCollector) WorkerStopped()                                             {}
func (noopCollector) ObserveCommand(string, time.Duration, time.Duration, error) {}
