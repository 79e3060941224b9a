//go:build portaudio
// +build portaudio

package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"mealvoice/internal/domain"
)

// LocalMicrophone probes the default input device of this host.
type LocalMicrophone struct {
	sampleRate int
	logger     *slog.Logger
}

func NewLocalMicrophone(sampleRate int, logger *slog.Logger) *LocalMicrophone {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &LocalMicrophone{sampleRate: sampleRate, logger: logger}
}

func (m *LocalMicrophone) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	buffer := make([]int16, 1024)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		if errors.Is(err, portaudio.DeviceUnavailable) {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceBusy, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	m.logger.Debug("microphone probe opened", "sampleRate", m.sampleRate)
	return func() {
		stream.Close()
		portaudio.Terminate()
	}, nil
}
