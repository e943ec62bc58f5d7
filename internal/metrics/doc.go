// Package metrics provides observability hooks for the run lifecycle.
//
// The engine reports through a Recorder injected with its registry:
//
//	reg := prometheus.NewRegistry()
//	eng := engine.New(engine.WithMetrics(reg, metrics.NewPrometheusRecorder(reg)))
//
// NoopRecorder serves callers that do not collect metrics. The built-in
// prometheus service exposes the run registry over HTTP with HTTPHandler.
package metrics
