package application

import (
	"context"
	"fmt"
)

// NLU answers free-form commands the local parser could not map.
type NLU interface {
	Process(ctx context.Context, command, locale string) (string, error)
}

// NoopNLU is used when no NLU provider is configured.
type NoopNLU struct{}

func (n *NoopNLU) Process(_ context.Context, _, _ string) (string, error) {
	return "", fmt.Errorf("nlu not configured: set nlu.provider to enable free-form commands")
}
