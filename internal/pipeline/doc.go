// Package pipeline builds and executes the review stage graph.
//
// The graph is explicit data: [Build] declares the quality and security
// stages as independent roots and the decision stage as their only
// dependent, and [Graph.Validate] checks that shape independently of
// execution. An [Executor] runs the graph level by level, executing the two
// roots concurrently and handing both outputs to the decision stage. Runs
// are atomic: any stage failure aborts the run with a [StageError] and no
// partial result.
//
// Executors are single-flight; a concurrent call to [Executor.Run] returns
// [ErrRunInProgress]. Progress is reported to an [Observer], and optional
// Prometheus [Metrics] and OpenTelemetry spans are recorded per run and per
// stage.
package pipeline
