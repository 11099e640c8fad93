package config

import "fmt"

// APIDisabled as the API address turns the listener off.
const APIDisabled = "-"

// APIConfig defines the operator HTTP listener.
type APIConfig struct {
	// Address is the listen address. "-" disables the API.
	Address string `json:"address"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

// Enabled reports whether the API listener should start.
func (c APIConfig) Enabled() bool { return c.Address != APIDisabled }

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("api address is required")
	}
	return nil
}
