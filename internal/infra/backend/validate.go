package backend

import (
	"fmt"

	"mealvoice/internal/domain"
	"mealvoice/internal/tzclock"
)

// ValidateDeliverySettings applies the backend's own checks so a bad update
// fails before a round-trip.
func ValidateDeliverySettings(s domain.DeliverySettings) error {
	if s.DeliveryTime == nil && s.DeliveryDate == nil && s.DeliveryEnabled == nil && s.Timezone == nil {
		return fmt.Errorf("%w: no fields to update", domain.ErrInvalidSchedule)
	}
	if s.DeliveryTime != nil {
		// the backend requires two-digit hours
		if len(*s.DeliveryTime) != len(tzclock.TimeLayout) {
			return fmt.Errorf("%w: delivery_time %q must be in HH:MM format", domain.ErrInvalidSchedule, *s.DeliveryTime)
		}
		if _, _, err := tzclock.ParseHHMM(*s.DeliveryTime); err != nil {
			return err
		}
	}
	if s.DeliveryDate != nil {
		if _, err := tzclock.ParseDate(*s.DeliveryDate); err != nil {
			return err
		}
	}
	if s.Timezone != nil {
		if _, err := tzclock.Load(*s.Timezone); err != nil {
			return err
		}
	}
	return nil
}
