// Package webhook posts a summary of every completed operation to an HTTP
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/ocppfleet/auth"
	"github.com/kilianp07/ocppfleet/core/events"
	coremon "github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/infra/logger"
	"github.com/kilianp07/ocppfleet/internal/eventbus"
)

// Config defines the completion webhook.
type Config struct {
	// URL receives a POST per completed operation. Empty disables the webhook.
	URL            string    `json:"url"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Auth           auth.Conf `json:"auth"`
}

// Enabled reports whether a URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return c.Auth.Validate()
}

// Payload is the JSON body posted for a completed operation.
type Payload struct {
	TaskID     string         `json:"task_id"`
	Action     string         `json:"action"`
	Counts     map[string]int `json:"counts"`
	DurationMS int64          `json:"duration_ms"`
}

// Notifier forwards OperationCompleted events to the webhook.
type Notifier struct {
	url    string
	client *http.Client
	creds  *auth.ClientCred
	log    logger.Logger
}

// NewNotifier creates a Notifier from cfg.
func NewNotifier(cfg Config) *Notifier {
	cfg.SetDefaults()
	n := &Notifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    logger.New("webhook"),
	}
	if cfg.Auth.Enabled() {
		n.creds = auth.NewClientCred(cfg.Auth)
	}
	return n
}

// Start subscribes to bus and posts every completed operation until ctx is
// canceled or the bus is closed. The returned channel is closed on exit.
func (n *Notifier) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, isDone := ev.(events.OperationCompleted)
				if !isDone {
					continue
				}
				if err := n.Notify(ctx, e); err != nil {
					n.log.Warnf("notify %s: %v", e.TaskID, err)
					coremon.CaptureException(err, map[string]string{"module": "webhook", "task_id": string(e.TaskID)})
				}
			}
		}
	}()
	return done
}

// Notify posts the summary of e.
func (n *Notifier) Notify(ctx context.Context, e events.OperationCompleted) error {
	p := Payload{
		TaskID:     string(e.TaskID),
		Action:     e.Action,
		Counts:     make(map[string]int, len(e.Counts)),
		DurationMS: e.Duration.Milliseconds(),
	}
	for k, v := range e.Counts {
		p.Counts[k.String()] = v
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.creds != nil {
		if err := n.creds.SetAuthHeader(req); err != nil {
			return fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, b)
	}
	return nil
}
