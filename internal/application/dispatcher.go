package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mealvoice/internal/domain"
	"mealvoice/internal/metrics"
	"mealvoice/internal/tzclock"
)

const (
	msgActionFailed      = "Sorry, that didn't work. Please try again."
	msgNLUFailed         = "I couldn't process that. Please try again."
	msgNLUDefaultReply   = "I understood your request."
	msgNothingToDispatch = "Say a command, for example \"add 2 kg rice\"."
)

// Outcome is the user-facing result of one command. Failures are reported
// here rather than returned, so the caller can always show something.
type Outcome struct {
	Intent  domain.Intent
	Message string
	Err     error
}

type DispatcherConfig struct {
	// Timezone stored alongside a voice-set delivery time. Empty means the
	// host timezone.
	Timezone string
}

// Dispatcher executes the side effect implied by an Intent. Each command
// issues at most one mutating call to the backend.
type Dispatcher struct {
	changeNotifier

	ingredients IngredientStore
	settings    DeliverySettingsStore
	nlu         NLU
	scheduler   *DeliveryScheduler
	timezone    string
	logger      *slog.Logger
}

func NewDispatcher(
	ingredients IngredientStore,
	settings DeliverySettingsStore,
	nlu NLU,
	scheduler *DeliveryScheduler,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	tz := cfg.Timezone
	if tz == "" {
		tz = tzclock.LocalName()
	}
	return &Dispatcher{
		ingredients: ingredients,
		settings:    settings,
		nlu:         nlu,
		scheduler:   scheduler,
		timezone:    tz,
		logger:      logger,
	}
}

func (d *Dispatcher) Timezone() string {
	return d.timezone
}

// Dispatch executes in. locale is the language the command was given in
// and is forwarded to the NLU for unrecognized text.
func (d *Dispatcher) Dispatch(ctx context.Context, in domain.Intent, locale string) Outcome {
	start := time.Now()
	out := d.dispatch(ctx, in, locale)
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	status := "ok"
	if out.Err != nil {
		status = "error"
		d.logger.Warn("command failed", "intent", in.Kind, "error", out.Err)
	} else {
		d.logger.Info("command executed", "intent", in.Kind, "message", out.Message)
	}
	metrics.CommandsTotal.WithLabelValues(string(in.Kind), status).Inc()
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, in domain.Intent, locale string) Outcome {
	switch in.Kind {
	case domain.IntentAddIngredient:
		ing := domain.Ingredient{Name: in.Name, Quantity: in.Quantity, Unit: in.Unit}
		if err := d.ingredients.AddIngredient(ctx, ing); err != nil {
			return failed(in, fmt.Errorf("adding ingredient: %w", err))
		}
		d.notify(Change{Kind: IngredientsChanged})
		return Outcome{Intent: in, Message: fmt.Sprintf("Added %s to your ingredients.", in.Name)}

	case domain.IntentDeleteIngredient:
		if err := d.ingredients.DeleteIngredient(ctx, in.Name); err != nil {
			return failed(in, fmt.Errorf("deleting ingredient: %w", err))
		}
		d.notify(Change{Kind: IngredientsChanged})
		return Outcome{Intent: in, Message: fmt.Sprintf("Deleted %s from your ingredients.", in.Name)}

	case domain.IntentSetDeliveryTime:
		return d.setDeliveryTime(ctx, in)

	case domain.IntentSetDeliveryEnabled:
		enabled := in.Enabled
		if err := d.settings.UpdateDelivery(ctx, domain.DeliverySettings{DeliveryEnabled: &enabled}); err != nil {
			return failed(in, fmt.Errorf("updating delivery: %w", err))
		}
		if enabled {
			return Outcome{Intent: in, Message: "Delivery enabled."}
		}
		return Outcome{Intent: in, Message: "Delivery disabled."}

	case domain.IntentUnknown:
		return d.delegate(ctx, in, locale)

	default:
		return Outcome{Intent: in, Message: msgNLUFailed, Err: fmt.Errorf("%w: kind %q", domain.ErrUnknownIntent, in.Kind)}
	}
}

func (d *Dispatcher) setDeliveryTime(ctx context.Context, in domain.Intent) Outcome {
	decision, err := d.scheduler.Decide(domain.ScheduleRequest{Time: in.Time, Timezone: d.timezone})
	if err != nil {
		return failed(in, fmt.Errorf("scheduling delivery time: %w", err))
	}
	day := "today"
	if decision.RolledOver {
		day = "tomorrow"
	}

	hhmm := in.Time
	enabled := true
	tz := d.timezone
	settings := domain.DeliverySettings{DeliveryTime: &hhmm, DeliveryEnabled: &enabled, Timezone: &tz}
	if err := d.settings.UpdateDelivery(ctx, settings); err != nil {
		return failed(in, fmt.Errorf("updating delivery: %w", err))
	}

	d.notify(Change{Kind: DeliveryTimeChanged, DeliveryTime: in.Time})
	return Outcome{Intent: in, Message: fmt.Sprintf("Delivery time updated to %s (%s).", in.Time, day)}
}

func (d *Dispatcher) delegate(ctx context.Context, in domain.Intent, locale string) Outcome {
	if in.RawText == "" {
		return Outcome{Intent: in, Message: msgNothingToDispatch, Err: domain.ErrUnknownIntent}
	}
	reply, err := d.nlu.Process(ctx, in.RawText, locale)
	if err != nil {
		return Outcome{Intent: in, Message: msgNLUFailed, Err: fmt.Errorf("%w: %w", domain.ErrUnknownIntent, err)}
	}
	if reply == "" {
		reply = msgNLUDefaultReply
	}
	return Outcome{Intent: in, Message: reply}
}

func failed(in domain.Intent, err error) Outcome {
	msg := msgActionFailed
	var be *domain.BackendError
	if errors.As(err, &be) && be.Detail != "" {
		msg = fmt.Sprintf("Sorry, that didn't work: %s", be.Detail)
	}
	return Outcome{Intent: in, Message: msg, Err: err}
}
