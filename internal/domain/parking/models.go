package parking

import (
	"time"
)

type VehicleInfo struct {
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
}

const (
	DirectionEntry = "entry"
	DirectionExit  = "exit"
)

// EventPayload is the body posted by an ALPR camera. ExternalID is the
// camera's own event identifier and drives duplicate suppression: the same
// external id submitted twice must not be processed twice.
type EventPayload struct {
	ExternalID  string                 `json:"external_id,omitempty"`
	CameraID    string                 `json:"camera_id"`
	CameraModel string                 `json:"camera_model,omitempty"`
	Plate       string                 `json:"plate"`
	Confidence  float64                `json:"confidence"`
	Direction   string                 `json:"direction"`
	Lane        int                    `json:"lane"`
	EventTime   time.Time              `json:"event_time"`
	Vehicle     VehicleInfo            `json:"vehicle"`
	SnapshotURL string                 `json:"snapshot_url,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

type CameraEvent struct {
	ID      int64
	PlateID int64
	OrgID   int64
	EventPayload
	NormalizedPlate string
}

// Customer is owned by the customer-management subsystem; this service only
// reads it for classification.
type Customer struct {
	ID                int64
	OrgID             int64
	Name              string
	Email             string
	AccountRegistered bool
}

type Car struct {
	ID         int64
	OrgID      int64
	CustomerID int64
	PlateKey   string
	RawPlate   string
}

type RegisteredVehicle struct {
	Car      Car
	Customer Customer
}

// Action names the outcome of processing one camera event.
type Action string

const (
	ActionCustomerDetected      Action = "customer_detected"
	ActionRegistrationEmailSent Action = "registration_email_sent"
	ActionGuestCreated          Action = "guest_created"
	ActionSessionCreated        Action = "parking_session_created"
	ActionSessionUpdated        Action = "parking_session_updated"
	ActionExitProcessed         Action = "exit_processed"
)

type ProcessResult struct {
	EventID   int64    `json:"event_id"`
	PlateID   int64    `json:"plate_id"`
	Plate     string   `json:"plate"`
	Action    Action   `json:"action,omitempty"`
	SessionID *int64   `json:"session_id,omitempty"`
	GuestID   *int64   `json:"guest_id,omitempty"`
	Details   []string `json:"details,omitempty"`
}

type ConfirmResult struct {
	Plate      string    `json:"plate"`
	SessionID  int64     `json:"session_id"`
	ValidUntil time.Time `json:"valid_until"`
}

// ConfirmErrorCode is the machine-readable business outcome of a failed
// guest self-confirmation.
type ConfirmErrorCode string

const (
	CodeRecaptchaFailed           ConfirmErrorCode = "RECAPTCHA_FAILED"
	CodeInvalidLicensePlate       ConfirmErrorCode = "INVALID_LICENSE_PLATE"
	CodeRegisteredVehicle         ConfirmErrorCode = "REGISTERED_VEHICLE"
	CodeAlreadyConfirmed          ConfirmErrorCode = "ALREADY_CONFIRMED"
	CodeNoEntryDetected           ConfirmErrorCode = "NO_ENTRY_DETECTED"
	CodeConfirmationWindowExpired ConfirmErrorCode = "CONFIRMATION_WINDOW_EXPIRED"
)

// ConfirmError carries a deterministic business outcome back to the public
// guest boundary. It is never retried by the engine.
type ConfirmError struct {
	Code    ConfirmErrorCode       `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ConfirmError) Error() string {
	return string(e.Code) + ": " + e.Message
}
