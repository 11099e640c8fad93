// Package mqtt describes the topic layout used to carry OCPP-J frames over an
// MQTT broker. Each charge point bridge subscribes to its request topic and
// publishes replies on its response topic.
package mqtt

import (
	"fmt"
	"strings"
)

const (
	DefaultRequestTopic  = "ocpp/%s/request"
	DefaultResponseTopic = "ocpp/%s/response"
)

// Topics maps charge point identifiers to topics. Both patterns contain a
// single %s placeholder for the charge point identifier.
type Topics struct {
	Request  string
	Response string
}

// DefaultTopics returns the default topic layout.
func DefaultTopics() Topics {
	return Topics{Request: DefaultRequestTopic, Response: DefaultResponseTopic}
}

// WithDefaults fills empty patterns.
func (t Topics) WithDefaults() Topics {
	if t.Request == "" {
		t.Request = DefaultRequestTopic
	}
	if t.Response == "" {
		t.Response = DefaultResponseTopic
	}
	return t
}

// Validate checks that each pattern has exactly one placeholder occupying a
// whole topic level.
func (t Topics) Validate() error {
	for name, p := range map[string]string{"request": t.Request, "response": t.Response} {
		if strings.Count(p, "%s") != 1 {
			return fmt.Errorf("%s topic %q must contain one %%s", name, p)
		}
		for _, level := range strings.Split(p, "/") {
			if strings.Contains(level, "%s") && level != "%s" {
				return fmt.Errorf("%s topic %q: %%s must be a whole level", name, p)
			}
		}
	}
	return nil
}

// RequestTopic returns the topic a charge point receives calls on.
func (t Topics) RequestTopic(chargeBoxID string) string {
	return fmt.Sprintf(t.Request, chargeBoxID)
}

// ResponseTopic returns the topic a charge point replies on.
func (t Topics) ResponseTopic(chargeBoxID string) string {
	return fmt.Sprintf(t.Response, chargeBoxID)
}

// ResponseFilter returns the subscription filter matching every response topic.
func (t Topics) ResponseFilter() string {
	return fmt.Sprintf(t.Response, "+")
}

// ChargeBoxID extracts the charge point identifier from a response topic.
func (t Topics) ChargeBoxID(topic string) (string, bool) {
	return extractID(t.Response, topic)
}

// RequestChargeBoxID extracts the charge point identifier from a request topic.
func (t Topics) RequestChargeBoxID(topic string) (string, bool) {
	return extractID(t.Request, topic)
}

func extractID(pattern, topic string) (string, bool) {
	want := strings.Split(pattern, "/")
	levels := strings.Split(topic, "/")
	if len(want) != len(levels) {
		return "", false
	}
	id := ""
	for i, p := range want {
		if p == "%s" {
			id = levels[i]
			continue
		}
		if p != levels[i] {
			return "", false
		}
	}
	return id, id != ""
}
