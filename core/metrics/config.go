package metrics

import "github.com/kilianp07/ocppfleet/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Address of the Prometheus /metrics listener. Empty disables it.
	PromAddress string `json:"prom_address"`
}
