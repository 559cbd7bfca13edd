// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "noema",
		Subsystem: "worker",
		Name:      "active_sessions",
		Help:      "Live sessions in the runtime table.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noema",
		Subsystem: "worker",
		Name:      "requests_total",
		Help:      "Protocol requests by type and outcome.",
	}, []string{"type", "status"})

	evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "noema",
		Subsystem: "worker",
		Name:      "evaluate_duration_seconds",
		Help:      "End-to-end evaluate request latency.",
		Buckets:   prometheus.DefBuckets,
	})

	reapedSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "noema",
		Subsystem: "worker",
		Name:      "reaped_sessions_total",
		Help:      "Sessions collected by the idle reaper.",
	})
)
