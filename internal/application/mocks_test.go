package application_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"mealvoice/internal/application"
	"mealvoice/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockIngredientStore struct {
	added   []domain.Ingredient
	deleted []string
	err     error
}

func (m *mockIngredientStore) AddIngredient(_ context.Context, ing domain.Ingredient) error {
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, ing)
	return nil
}

func (m *mockIngredientStore) DeleteIngredient(_ context.Context, name string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, name)
	return nil
}

type mockSettingsStore struct {
	updates []domain.DeliverySettings
	err     error
}

func (m *mockSettingsStore) UpdateDelivery(_ context.Context, s domain.DeliverySettings) error {
	m.updates = append(m.updates, s)
	return m.err
}

type mockNLU struct {
	reply   string
	err     error
	calls   []string
	locales []string
}

func (m *mockNLU) Process(_ context.Context, command, locale string) (string, error) {
	m.calls = append(m.calls, command)
	m.locales = append(m.locales, locale)
	return m.reply, m.err
}

type mockTrigger struct {
	runs  []domain.DeliveryRun
	sends []string
	err   error
}

func (m *mockTrigger) RunDelivery(_ context.Context, run domain.DeliveryRun) (*domain.DeliveryRunResult, error) {
	m.runs = append(m.runs, run)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.DeliveryRunResult{OK: true, MealKey: "2024-01-01"}, nil
}

func (m *mockTrigger) SendNow(_ context.Context, selectedTime string) (*domain.SendResult, error) {
	m.sends = append(m.sends, selectedTime)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.SendResult{OK: true, MessageID: "wamid.1"}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newScheduler(trigger application.DeliveryTrigger, now time.Time) *application.DeliveryScheduler {
	return application.NewDeliveryScheduler(trigger, application.SchedulerConfig{Now: fixedClock(now)}, discardLogger())
}
