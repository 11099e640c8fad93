package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the first element of an OCPP-J frame.
type MessageType int

const (
	MessageCall       MessageType = 2
	MessageCallResult MessageType = 3
	MessageCallError  MessageType = 4
)

// ErrBadFrame is returned for payloads that are not valid OCPP-J frames.
var ErrBadFrame = errors.New("invalid ocpp-j frame")

// Frame is a decoded OCPP-J message.
type Frame struct {
	Type     MessageType
	UniqueID string
	// Action is set for calls.
	Action string
	// Payload is the call or call result payload.
	Payload json.RawMessage
	// ErrorCode, ErrorDescription and ErrorDetails are set for call errors.
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// EncodeCall builds [2,"<id>","<action>",{payload}]. A nil payload encodes as {}.
func EncodeCall(uniqueID, action string, payload json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{MessageCall, uniqueID, action, payload})
}

// EncodeCallResult builds [3,"<id>",{payload}].
func EncodeCallResult(uniqueID string, payload json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{MessageCallResult, uniqueID, payload})
}

// EncodeCallError builds [4,"<id>","<code>","<description>",{details}].
func EncodeCallError(uniqueID, code, description string) ([]byte, error) {
	return json.Marshal([]any{MessageCallError, uniqueID, code, description, struct{}{}})
}

// DecodeFrame parses an OCPP-J frame.
func DecodeFrame(b []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("%w: %d elements", ErrBadFrame, len(parts))
	}
	var f Frame
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return Frame{}, fmt.Errorf("%w: message type: %v", ErrBadFrame, err)
	}
	if err := json.Unmarshal(parts[1], &f.UniqueID); err != nil || f.UniqueID == "" {
		return Frame{}, fmt.Errorf("%w: unique id", ErrBadFrame)
	}
	switch f.Type {
	case MessageCall:
		if len(parts) != 4 {
			return Frame{}, fmt.Errorf("%w: call has %d elements", ErrBadFrame, len(parts))
		}
		if err := json.Unmarshal(parts[2], &f.Action); err != nil {
			return Frame{}, fmt.Errorf("%w: action: %v", ErrBadFrame, err)
		}
		f.Payload = parts[3]
	case MessageCallResult:
		if len(parts) != 3 {
			return Frame{}, fmt.Errorf("%w: call result has %d elements", ErrBadFrame, len(parts))
		}
		f.Payload = parts[2]
	case MessageCallError:
		if len(parts) < 4 {
			return Frame{}, fmt.Errorf("%w: call error has %d elements", ErrBadFrame, len(parts))
		}
		if err := json.Unmarshal(parts[2], &f.ErrorCode); err != nil {
			return Frame{}, fmt.Errorf("%w: error code: %v", ErrBadFrame, err)
		}
		if err := json.Unmarshal(parts[3], &f.ErrorDescription); err != nil {
			return Frame{}, fmt.Errorf("%w: error description: %v", ErrBadFrame, err)
		}
		if len(parts) > 4 {
			f.ErrorDetails = parts[4]
		}
	default:
		return Frame{}, fmt.Errorf("%w: message type %d", ErrBadFrame, f.Type)
	}
	return f, nil
}
