package ocpp

// Action names a central system initiated OCPP command.
type Action string

const (
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionGetDiagnostics         Action = "GetDiagnostics"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionUnlockConnector        Action = "UnlockConnector"
	ActionUpdateFirmware         Action = "UpdateFirmware"
	ActionReserveNow             Action = "ReserveNow"
	ActionCancelReservation      Action = "CancelReservation"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionGetLocalListVersion    Action = "GetLocalListVersion"
	ActionSendLocalList          Action = "SendLocalList"
	ActionTriggerMessage         Action = "TriggerMessage"
	ActionClearChargingProfile   Action = "ClearChargingProfile"
	ActionSetChargingProfile     Action = "SetChargingProfile"
	ActionGetCompositeSchedule   Action = "GetCompositeSchedule"
)

func (a Action) String() string { return string(a) }

// FaultCode is the error code of an OCPP-J CALLERROR.
type FaultCode string

const (
	FaultNotImplemented               FaultCode = "NotImplemented"
	FaultNotSupported                 FaultCode = "NotSupported"
	FaultInternalError                FaultCode = "InternalError"
	FaultProtocolError                FaultCode = "ProtocolError"
	FaultSecurityError                FaultCode = "SecurityError"
	FaultFormationViolation           FaultCode = "FormationViolation"
	FaultPropertyConstraintViolation  FaultCode = "PropertyConstraintViolation"
	FaultOccurenceConstraintViolation FaultCode = "OccurenceConstraintViolation"
	FaultTypeConstraintViolation      FaultCode = "TypeConstraintViolation"
	FaultGenericError                 FaultCode = "GenericError"
)
