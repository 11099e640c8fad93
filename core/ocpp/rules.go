package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrUnknownAction is returned for actions without a registered rule.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnexpectedResponse is returned when a response does not match the
	// shape or value set expected for its action.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Rule decodes and translates the confirmation of one action.
type Rule struct {
	Action    Action
	decode    func(json.RawMessage) (any, error)
	translate func(any) (string, error)
}

// Decode unmarshals a raw confirmation payload into the action's response type.
func (r Rule) Decode(raw json.RawMessage) (any, error) { return r.decode(raw) }

// Translate maps a decoded confirmation to the result value of the operation.
func (r Rule) Translate(resp any) (string, error) { return r.translate(resp) }

// Rules is the registry of translation rules keyed by action.
type Rules struct {
	mu    sync.RWMutex
	rules map[Action]Rule
}

// NewRules returns an empty registry.
func NewRules() *Rules {
	return &Rules{rules: make(map[Action]Rule)}
}

// RegisterRule adds the rule for action a. fn receives the decoded response
// of type T and returns the normalized result value.
func RegisterRule[T any](r *Rules, a Action, fn func(T) (string, error)) error {
	if fn == nil {
		return fmt.Errorf("rule nil for %s", a)
	}
	rule := Rule{
		Action: a,
		decode: func(raw json.RawMessage) (any, error) {
			var v T
			if len(raw) == 0 {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("%w: decode %s: %v", ErrUnexpectedResponse, a, err)
			}
			return v, nil
		},
		translate: func(resp any) (string, error) {
			switch v := resp.(type) {
			case T:
				return fn(v)
			case *T:
				if v == nil {
					return "", fmt.Errorf("%w: nil %s confirmation", ErrUnexpectedResponse, a)
				}
				return fn(*v)
			default:
				return "", fmt.Errorf("%w: %T for %s", ErrUnexpectedResponse, resp, a)
			}
		},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[a]; ok {
		return fmt.Errorf("rule already registered for %s", a)
	}
	r.rules[a] = rule
	return nil
}

// Rule returns the rule registered for a.
func (r *Rules) Rule(a Action) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[a]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownAction, a)
	}
	return rule, nil
}

// Supports reports whether a rule exists for a.
func (r *Rules) Supports(a Action) bool {
	_, err := r.Rule(a)
	return err == nil
}

// Decode decodes a raw confirmation for action a.
func (r *Rules) Decode(a Action, raw json.RawMessage) (any, error) {
	rule, err := r.Rule(a)
	if err != nil {
		return nil, err
	}
	return rule.Decode(raw)
}

// Translate translates a decoded confirmation for action a.
func (r *Rules) Translate(a Action, resp any) (string, error) {
	rule, err := r.Rule(a)
	if err != nil {
		return "", err
	}
	return rule.Translate(resp)
}

// Actions returns the registered actions sorted by name.
func (r *Rules) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, len(r.rules))
	for a := range r.rules {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// statusIn accepts a StatusResponse whose status is one of allowed.
func statusIn(allowed ...string) func(StatusResponse) (string, error) {
	return func(r StatusResponse) (string, error) {
		if !slices.Contains(allowed, r.Status) {
			return "", fmt.Errorf("%w: status %q not in %v", ErrUnexpectedResponse, r.Status, allowed)
		}
		return r.Status, nil
	}
}

// DefaultRules returns a registry holding the OCPP 1.5/1.6 command catalog.
func DefaultRules() *Rules {
	r := NewRules()
	status := map[Action][]string{
		ActionChangeAvailability:     {"Accepted", "Rejected", "Scheduled"},
		ActionChangeConfiguration:    {"Accepted", "Rejected", "RebootRequired", "NotSupported"},
		ActionClearCache:             {"Accepted", "Rejected"},
		ActionRemoteStartTransaction: {"Accepted", "Rejected"},
		ActionRemoteStopTransaction:  {"Accepted", "Rejected"},
		ActionReset:                  {"Accepted", "Rejected"},
		ActionUnlockConnector:        {"Unlocked", "UnlockFailed", "NotSupported"},
		ActionReserveNow:             {"Accepted", "Faulted", "Occupied", "Rejected", "Unavailable"},
		ActionCancelReservation:      {"Accepted", "Rejected"},
		ActionSendLocalList:          {"Accepted", "Failed", "NotSupported", "VersionMismatch"},
		ActionTriggerMessage:         {"Accepted", "Rejected", "NotImplemented"},
		ActionClearChargingProfile:   {"Accepted", "Unknown"},
		ActionSetChargingProfile:     {"Accepted", "Rejected", "NotSupported"},
	}
	for a, allowed := range status {
		mustRegister(RegisterRule(r, a, statusIn(allowed...)))
	}
	mustRegister(RegisterRule(r, ActionGetDiagnostics, func(resp GetDiagnosticsResponse) (string, error) {
		if resp.FileName == "" {
			return "No diagnostics file", nil
		}
		return resp.FileName, nil
	}))
	mustRegister(RegisterRule(r, ActionUpdateFirmware, func(UpdateFirmwareResponse) (string, error) {
		return "OK", nil
	}))
	mustRegister(RegisterRule(r, ActionDataTransfer, func(resp DataTransferResponse) (string, error) {
		if _, err := statusIn("Accepted", "Rejected", "UnknownMessageId", "UnknownVendorId")(StatusResponse{Status: resp.Status}); err != nil {
			return "", err
		}
		if resp.Data == "" {
			return resp.Status, nil
		}
		return resp.Status + " / data: " + resp.Data, nil
	}))
	mustRegister(RegisterRule(r, ActionGetConfiguration, translateConfiguration))
	mustRegister(RegisterRule(r, ActionGetLocalListVersion, func(resp GetLocalListVersionResponse) (string, error) {
		if resp.ListVersion == nil {
			return "", fmt.Errorf("%w: missing listVersion", ErrUnexpectedResponse)
		}
		return strconv.Itoa(*resp.ListVersion), nil
	}))
	mustRegister(RegisterRule(r, ActionGetCompositeSchedule, func(resp GetCompositeScheduleResponse) (string, error) {
		return statusIn("Accepted", "Rejected")(StatusResponse{Status: resp.Status})
	}))
	return r
}

func translateConfiguration(resp GetConfigurationResponse) (string, error) {
	parts := make([]string, 0, len(resp.ConfigurationKey)+1)
	for _, kv := range resp.ConfigurationKey {
		v := ""
		if kv.Value != nil {
			v = *kv.Value
		}
		parts = append(parts, kv.Key+"="+v)
	}
	if len(resp.UnknownKey) > 0 {
		parts = append(parts, "unknown: "+strings.Join(resp.UnknownKey, ","))
	}
	return strings.Join(parts, "; "), nil
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
