package speech

import "mealvoice/internal/capture"

// Client message types sent by the browser page.
const (
	msgHello       = "hello"
	msgListen      = "listen"
	msgStop        = "stop"
	msgProbeResult = "probe_result"
	msgEvent       = "event"
)

// Server ops pushed to the browser page.
const (
	opProbe               = "probe"
	opRelease             = "release"
	opStart               = "start"
	opStop                = "stop"
	opStatus              = "status"
	opTranscript          = "transcript"
	opOutcome             = "outcome"
	opIngredientsChanged  = "ingredients_changed"
	opDeliveryTimeChanged = "delivery_time_changed"
)

// DOMException names reported by getUserMedia.
const (
	probeNotAllowed  = "NotAllowedError"
	probeNotFound    = "NotFoundError"
	probeNotReadable = "NotReadableError"
)

type clientMessage struct {
	Type          string         `json:"type"`
	Supported     bool           `json:"supported,omitempty"`
	SecureContext bool           `json:"secure_context,omitempty"`
	Locale        string         `json:"locale,omitempty"`
	Error         string         `json:"error,omitempty"`
	Event         *capture.Event `json:"event,omitempty"`
}

type serverMessage struct {
	Op           string                `json:"op"`
	Config       *capture.EngineConfig `json:"config,omitempty"`
	SessionID    string                `json:"session_id,omitempty"`
	State        string                `json:"state,omitempty"`
	Message      string                `json:"message,omitempty"`
	Error        string                `json:"error,omitempty"`
	Text         string                `json:"text,omitempty"`
	IsFinal      bool                  `json:"is_final,omitempty"`
	DeliveryTime string                `json:"delivery_time,omitempty"`
}
