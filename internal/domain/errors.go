package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecognitionUnsupported = errors.New("speech recognition not supported")
	ErrInsecureContext        = errors.New("voice recognition requires HTTPS or localhost")
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrDeviceUnavailable      = errors.New("no microphone found")
	ErrDeviceBusy             = errors.New("microphone is already in use by another application")
	ErrNoSpeechDetected       = errors.New("no speech detected")
	ErrBackendRejection       = errors.New("backend rejected the request")
	ErrStaleSchedule          = errors.New("selected time is in the past")
	ErrUnknownIntent          = errors.New("command could not be processed")
	ErrInvalidTimezone        = errors.New("invalid timezone")
	ErrInvalidSchedule        = errors.New("invalid schedule")
)

// BackendError is a non-2xx answer from an external store or the NLU service.
type BackendError struct {
	Op     string
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *BackendError) Unwrap() error {
	return ErrBackendRejection
}
