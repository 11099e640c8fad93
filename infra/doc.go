// Package infra contains technical adapters such as the MQTT gateway, the
// simulated fleet, metrics exporters and the completion webhook. These
// packages should depend only on the interfaces defined in the core packages.
package infra
