package dispatch

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/ocppfleet/core/ocpp"
)

const (
	defaultWorkers        = 5
	defaultTimeoutSeconds = 30
	defaultGraceSeconds   = 30
	defaultRetentionSecs  = 3600
	defaultReapSchedule   = "@every 1m"
)

// Config defines dispatch-related settings.
type Config struct {
	// Workers is the number of concurrent calls across all operations.
	Workers int `json:"workers"`
	// DefaultTimeoutSeconds bounds every call without a per-action override.
	DefaultTimeoutSeconds int `json:"default_timeout_seconds"`
	// ActionTimeoutsSeconds overrides the timeout per OCPP action.
	ActionTimeoutsSeconds map[string]int `json:"action_timeouts_seconds"`
	// ShutdownGraceSeconds is how long shutdown waits before abandoning calls.
	ShutdownGraceSeconds int `json:"shutdown_grace_seconds"`
	// RetentionSeconds keeps completed operations queryable for this long.
	RetentionSeconds int `json:"retention_seconds"`
	// ReapSchedule is the cron spec of the retention sweep.
	ReapSchedule string `json:"reap_schedule"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.DefaultTimeoutSeconds <= 0 {
		c.DefaultTimeoutSeconds = defaultTimeoutSeconds
	}
	if c.ShutdownGraceSeconds <= 0 {
		c.ShutdownGraceSeconds = defaultGraceSeconds
	}
	if c.RetentionSeconds <= 0 {
		c.RetentionSeconds = defaultRetentionSecs
	}
	if c.ReapSchedule == "" {
		c.ReapSchedule = defaultReapSchedule
	}
}

// Validate checks per-action overrides against the rule catalog and parses
// the reap schedule.
func (c Config) Validate(rules *ocpp.Rules) error {
	if c.ReapSchedule != "" {
		if _, err := cron.ParseStandard(c.ReapSchedule); err != nil {
			return fmt.Errorf("dispatch: reap_schedule %q: %w", c.ReapSchedule, err)
		}
	}
	for a, s := range c.ActionTimeoutsSeconds {
		if s <= 0 {
			return fmt.Errorf("dispatch: timeout for %s must be positive", a)
		}
		if rules != nil && !rules.Supports(ocpp.Action(a)) {
			return fmt.Errorf("dispatch: timeout override for %w %s", ErrUnsupportedAction, a)
		}
	}
	return nil
}

// ExecutorConfig returns the executor settings.
func (c Config) ExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Workers:       c.Workers,
		ShutdownGrace: time.Duration(c.ShutdownGraceSeconds) * time.Second,
	}
}

// TimeoutPolicy returns the per-action timeout policy.
func (c Config) TimeoutPolicy() TimeoutPolicy {
	p := TimeoutPolicy{
		Default:   time.Duration(c.DefaultTimeoutSeconds) * time.Second,
		PerAction: make(map[ocpp.Action]time.Duration, len(c.ActionTimeoutsSeconds)),
	}
	for a, s := range c.ActionTimeoutsSeconds {
		p.PerAction[ocpp.Action(a)] = time.Duration(s) * time.Second
	}
	return p
}

// Retention returns how long completed tasks stay in the registry.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// TimeoutPolicy maps actions to call timeouts.
type TimeoutPolicy struct {
	Default   time.Duration
	PerAction map[ocpp.Action]time.Duration
}

// For returns the timeout of action a.
func (p TimeoutPolicy) For(a ocpp.Action) time.Duration {
	if d, ok := p.PerAction[a]; ok && d > 0 {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return defaultTimeoutSeconds * time.Second
}
