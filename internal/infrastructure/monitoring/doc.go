/*
Package monitoring provides Prometheus metrics for the request engine.

# Overview

Metrics tracks outbound round trips, accumulated response sizes, validation
failures, challenge dispositions, tasks in flight and live session
listeners. All recording methods accept a nil receiver, so components built
without metrics need no guards.

# Usage

	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())

	// Record every round trip made by a transport
	transport := monitoring.RoundTripper(http.DefaultTransport, metrics)

	// Engine level counters
	metrics.IncTasksInFlight()
	metrics.RecordChallenge("basic", "use-credential")
*/
package monitoring
