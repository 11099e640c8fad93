// Package metrics defines the sinks that observe OCPP call outcomes and
// finished operations. Sinks are created from configuration through a factory
// registry; infra/metrics registers the Prometheus, InfluxDB and nop
// implementations. Several configured sinks are combined into a MultiSink.
package metrics
