// Package metrics provides the observability hooks for fragment compilation.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	compiler := compiler.New(compiler.Options{Recorder: metrics.NoopRecorder{}})
//
// The CLI swaps in a PrometheusRecorder when --metrics-file is given and
// dumps the registry with WriteTextfile once the run completes.
package metrics
