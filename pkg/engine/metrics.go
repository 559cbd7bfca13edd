// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "noema"
	engineSubsystem  = "engine"
)

// Engine metrics, registered once on the default registry. Labels keep
// cardinality bounded: operator names come from the registry, backend
// names from the descriptor set.
var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "evaluations_total",
		Help:      "Expression evaluations by outcome.",
	}, []string{"status"})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "invocations_total",
		Help:      "Operator invocations by operator and backend.",
	}, []string{"operator", "backend", "status"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "cache_hits_total",
		Help:      "Content-addressed cache hits by operator.",
	}, []string{"operator"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "retries_total",
		Help:      "Transient inference retries by operator and backend.",
	}, []string{"operator", "backend"})

	invokeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "invoke_duration_seconds",
		Help:      "Wall time of operator invocations including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operator", "backend"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engineSubsystem,
		Name:      "tokens_total",
		Help:      "Tokens consumed by direction and backend.",
	}, []string{"direction", "backend"})
)
