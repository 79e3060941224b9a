//go:build !portaudio
// +build !portaudio

package speech

import (
	"context"
	"fmt"
	"log/slog"

	"mealvoice/internal/domain"
)

// LocalMicrophone stub when portaudio is not available
type LocalMicrophone struct {
	logger *slog.Logger
}

func NewLocalMicrophone(sampleRate int, logger *slog.Logger) *LocalMicrophone {
	return &LocalMicrophone{logger: logger}
}

func (m *LocalMicrophone) Acquire(_ context.Context) (func(), error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", domain.ErrDeviceUnavailable)
}
