package ocpp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Catalog(t *testing.T) {
	r := DefaultRules()
	actions := r.Actions()
	assert.Len(t, actions, 19)
	for _, a := range []Action{ActionClearCache, ActionReset, ActionRemoteStopTransaction, ActionGetConfiguration} {
		assert.True(t, r.Supports(a), "missing %s", a)
	}
	assert.False(t, r.Supports("Heartbeat"))
}

func TestTranslate_StatusActions(t *testing.T) {
	r := DefaultRules()
	cases := []struct {
		action Action
		status string
		ok     bool
	}{
		{ActionClearCache, "Accepted", true},
		{ActionClearCache, "Rejected", true},
		{ActionClearCache, "Unlocked", false},
		{ActionUnlockConnector, "UnlockFailed", true},
		{ActionChangeConfiguration, "RebootRequired", true},
		{ActionReserveNow, "Occupied", true},
		{ActionReset, "", false},
	}
	for _, c := range cases {
		got, err := r.Translate(c.action, StatusResponse{Status: c.status})
		if c.ok {
			require.NoError(t, err, "%s %s", c.action, c.status)
			assert.Equal(t, c.status, got)
		} else {
			assert.True(t, errors.Is(err, ErrUnexpectedResponse), "%s %s: %v", c.action, c.status, err)
		}
	}
}

func TestTranslate_PointerAndWrongType(t *testing.T) {
	r := DefaultRules()
	got, err := r.Translate(ActionReset, &StatusResponse{Status: "Accepted"})
	require.NoError(t, err)
	assert.Equal(t, "Accepted", got)

	_, err = r.Translate(ActionReset, GetDiagnosticsResponse{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	_, err = r.Translate("Heartbeat", StatusResponse{})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDecodeThenTranslate(t *testing.T) {
	r := DefaultRules()
	cases := []struct {
		action Action
		raw    string
		want   string
	}{
		{ActionClearCache, `{"status":"Accepted"}`, "Accepted"},
		{ActionGetDiagnostics, `{"fileName":"diag-2024.zip"}`, "diag-2024.zip"},
		{ActionGetDiagnostics, `{}`, "No diagnostics file"},
		{ActionUpdateFirmware, ``, "OK"},
		{ActionGetLocalListVersion, `{"listVersion":7}`, "7"},
		{ActionDataTransfer, `{"status":"Accepted","data":"42"}`, "Accepted / data: 42"},
		{ActionGetConfiguration, `{"configurationKey":[{"key":"HeartbeatInterval","readonly":false,"value":"300"}],"unknownKey":["Foo"]}`, "HeartbeatInterval=300; unknown: Foo"},
		{ActionGetCompositeSchedule, `{"status":"Rejected"}`, "Rejected"},
	}
	for _, c := range cases {
		decoded, err := r.Decode(c.action, json.RawMessage(c.raw))
		require.NoError(t, err, c.action)
		got, err := r.Translate(c.action, decoded)
		require.NoError(t, err, c.action)
		assert.Equal(t, c.want, got, c.action)
	}
}

func TestDecode_Malformed(t *testing.T) {
	r := DefaultRules()
	_, err := r.Decode(ActionGetLocalListVersion, json.RawMessage(`{"listVersion":"x"}`))
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	decoded, err := r.Decode(ActionGetLocalListVersion, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = r.Translate(ActionGetLocalListVersion, decoded)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestRegisterRule_Duplicate(t *testing.T) {
	r := NewRules()
	fn := func(StatusResponse) (string, error) { return "ok", nil }
	require.NoError(t, RegisterRule(r, ActionReset, fn))
	assert.Error(t, RegisterRule(r, ActionReset, fn))
	assert.Error(t, RegisterRule[StatusResponse](r, ActionClearCache, nil))
}
