// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/united-manufacturing-hub/component-manager/pkg/logger"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	namespace = "component_manager"

	actionRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_registered_total",
			Help:      "Total number of actions that started a new execution",
		},
		[]string{"action"},
	)

	actionCoalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_coalesced_total",
			Help:      "Total number of registrations that joined an in-flight action",
		},
		[]string{"action"},
	)

	actionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_execution_duration_seconds",
			Help:      "Duration of action execution in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action", "status"},
	)

	actionsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions_in_flight",
			Help:      "Current number of executing actions across all instances",
		},
		[]string{"action"},
	)

	stopOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_outcome_total",
			Help:      "Total number of stop handshakes by outcome",
		},
		[]string{"outcome"},
	)

	resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of declaration resolution in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	instancesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_purged_total",
			Help:      "Total number of component instances destroyed",
		},
	)
)

func RecordActionRegistered(action string) {
	actionRegisteredTotal.WithLabelValues(action).Inc()
}

func RecordActionCoalesced(action string) {
	actionCoalescedTotal.WithLabelValues(action).Inc()
}

// RecordActionStarted increments the in-flight gauge. Pair with RecordActionFinished.
func RecordActionStarted(action string) {
	actionsInFlight.WithLabelValues(action).Inc()
}

func RecordActionFinished(action string, err error, duration time.Duration) {
	actionsInFlight.WithLabelValues(action).Dec()
	actionExecutionDuration.WithLabelValues(action, status(err)).Observe(duration.Seconds())
}

func RecordStopOutcome(outcome string) {
	stopOutcomeTotal.WithLabelValues(outcome).Inc()
}

func RecordResolve(err error, duration time.Duration) {
	resolveDuration.WithLabelValues(status(err)).Observe(duration.Seconds())
}

func RecordInstancePurged() {
	instancesPurgedTotal.Inc()
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}

	return StatusSuccess
}

// Collectors exposes the collectors for assertions in tests.
var Collectors = struct {
	ActionRegistered *prometheus.CounterVec
	ActionCoalesced  *prometheus.CounterVec
	StopOutcome      *prometheus.CounterVec
	InstancesPurged  prometheus.Counter
}{
	ActionRegistered: actionRegisteredTotal,
	ActionCoalesced:  actionCoalescedTotal,
	StopOutcome:      stopOutcomeTotal,
	InstancesPurged:  instancesPurgedTotal,
}

// SetupMetricsEndpoint starts an HTTP server exposing /metrics on addr.
// The caller owns shutdown of the returned server.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}
