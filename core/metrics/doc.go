// Package metrics defines the sinks that observe the dispatch engine.
// Sinks like PromSink and InfluxSink record assignments, queue movements,
// completions and SLA violations. Several sinks can be combined with
// NewMultiSink, and StartEventCollector feeds them from the event bus.
package metrics
