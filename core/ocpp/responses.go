package ocpp

import "encoding/json"

// StatusResponse covers every confirmation whose only field is a status enum.
type StatusResponse struct {
	Status string `json:"status"`
}

type GetDiagnosticsResponse struct {
	FileName string `json:"fileName,omitempty"`
}

// UpdateFirmwareResponse is empty on the wire.
type UpdateFirmwareResponse struct{}

type DataTransferResponse struct {
	Status string `json:"status"`
	Data   string `json:"data,omitempty"`
}

type KeyValue struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

type GetLocalListVersionResponse struct {
	ListVersion *int `json:"listVersion"`
}

type GetCompositeScheduleResponse struct {
	Status           string          `json:"status"`
	ConnectorID      *int            `json:"connectorId,omitempty"`
	ScheduleStart    string          `json:"scheduleStart,omitempty"`
	ChargingSchedule json.RawMessage `json:"chargingSchedule,omitempty"`
}
