package application

import (
	"context"

	"mealvoice/internal/domain"
)

type IngredientStore interface {
	AddIngredient(ctx context.Context, ing domain.Ingredient) error
	DeleteIngredient(ctx context.Context, name string) error
}

type DeliverySettingsStore interface {
	UpdateDelivery(ctx context.Context, settings domain.DeliverySettings) error
}

// DeliveryTrigger starts meal-plan generation and the WhatsApp send.
type DeliveryTrigger interface {
	RunDelivery(ctx context.Context, run domain.DeliveryRun) (*domain.DeliveryRunResult, error)
	SendNow(ctx context.Context, selectedTime string) (*domain.SendResult, error)
}
