package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker        string
	Count         int
	Prefix        string
	ReplyLatency  time.Duration
	DropRate      float64
	FaultRate     float64
	Seed          int64
	RequestTopic  string
	ResponseTopic string
	Verbose       bool
}

// Validate checks the simulator parameters.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if c.DropRate < 0 || c.FaultRate < 0 || c.DropRate+c.FaultRate > 1 {
		return fmt.Errorf("drop-rate and fault-rate must be in [0,1] and sum to at most 1")
	}
	if c.ReplyLatency < 0 {
		return fmt.Errorf("reply-latency must not be negative")
	}
	return nil
}
