package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	"github.com/kilianp07/ocppfleet/core/metrics"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/oplog"
	"github.com/kilianp07/ocppfleet/infra/mqtt"
	"github.com/kilianp07/ocppfleet/infra/webhook"
)

const (
	// GatewayMQTT sends calls through the MQTT broker.
	GatewayMQTT = "mqtt"
	// GatewaySimulated answers calls in process, for demos and dry runs.
	GatewaySimulated = "simulated"
)

type Config struct {
	// Gateway selects the transport: "mqtt" (default) or "simulated".
	Gateway  string          `json:"gateway"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Dispatch dispatch.Config `json:"dispatch"`
	Metrics  metrics.Config  `json:"metrics"`
	Oplog    oplog.Config    `json:"oplog"`
	API      APIConfig       `json:"api"`
	Webhook  webhook.Config  `json:"webhook"`
	Sentry   SentryConfig    `json:"sentry"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.Gateway == "" {
		c.Gateway = GatewayMQTT
	}
	c.Dispatch.SetDefaults()
	c.Oplog.SetDefaults()
	c.API.SetDefaults()
	c.Webhook.SetDefaults()
}

// Validate checks every section against rules.
func (c Config) Validate(rules *ocpp.Rules) error {
	switch c.Gateway {
	case GatewayMQTT:
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	case GatewaySimulated:
	default:
		return fmt.Errorf("unknown gateway %q", c.Gateway)
	}
	if err := c.Dispatch.Validate(rules); err != nil {
		return err
	}
	if err := c.Oplog.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	if err := c.Webhook.Validate(); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return c.API.Validate()
}

// Load reads a yaml or json file, applies K_ prefixed environment overrides
// (K_DISPATCH__WORKERS=10 sets dispatch.workers), then defaults and
// validation against the default rule catalog.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(ocpp.DefaultRules()); err != nil {
		return nil, err
	}
	return &cfg, nil
}
