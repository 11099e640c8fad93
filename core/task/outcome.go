package task

import (
	"fmt"
	"time"
)

// OutcomeKind classifies the result of one charge point call.
type OutcomeKind uint8

const (
	Pending OutcomeKind = iota
	Success
	Fault
	TransportError
	TimedOut
)

var outcomeNames = map[OutcomeKind]string{
	Pending:        "pending",
	Success:        "success",
	Fault:          "fault",
	TransportError: "transport_error",
	TimedOut:       "timed_out",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
}

// Terminal reports whether the kind ends the lifecycle of a target.
func (k OutcomeKind) Terminal() bool {
	return k >= Success && k <= TimedOut
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	if _, ok := outcomeNames[k]; !ok {
		return nil, fmt.Errorf("unknown outcome kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind previously encoded with MarshalText.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for kind, name := range outcomeNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", string(b))
}

// Outcome is the normalized result recorded for one target.
//
// Value carries the translated response for Success. Code and Message carry
// the protocol fault for Fault; Message carries the reason for TransportError.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Value   string      `json:"value,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	At      time.Time   `json:"at,omitempty"`
}

// Succeeded returns a Success outcome holding the translated response value.
func Succeeded(value string) Outcome { return Outcome{Kind: Success, Value: value} }

// Faulted returns a Fault outcome for a protocol level rejection.
func Faulted(code, message string) Outcome {
	return Outcome{Kind: Fault, Code: code, Message: message}
}

// TransportFailed returns a TransportError outcome.
func TransportFailed(reason string) Outcome {
	return Outcome{Kind: TransportError, Message: reason}
}

// Expired returns a TimedOut outcome.
func Expired() Outcome { return Outcome{Kind: TimedOut} }

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("Success(%s)", o.Value)
	case Fault:
		return fmt.Sprintf("Fault(%s, %s)", o.Code, o.Message)
	case TransportError:
		return fmt.Sprintf("TransportError(%s)", o.Message)
	case TimedOut:
		return "TimedOut"
	default:
		return "Pending"
	}
}
