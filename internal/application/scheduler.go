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
	DefaultStalenessWindow = 120 * time.Second
	DefaultImmediacyWindow = 60 * time.Second
)

type SchedulerConfig struct {
	// StalenessWindow is how far in the past a dated selection may be and
	// still be accepted.
	StalenessWindow time.Duration
	// ImmediacyWindow around now in which a selection for today is sent
	// immediately instead of being scheduled.
	ImmediacyWindow time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// DeliveryScheduler turns a wall-clock selection in an IANA timezone into the
// absolute instant a delivery should fire. It owns no timers; firing at the
// instant is the delivery backend's job.
type DeliveryScheduler struct {
	trigger   DeliveryTrigger
	staleness time.Duration
	immediacy time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewDeliveryScheduler(trigger DeliveryTrigger, cfg SchedulerConfig, logger *slog.Logger) *DeliveryScheduler {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	if cfg.ImmediacyWindow <= 0 {
		cfg.ImmediacyWindow = DefaultImmediacyWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DeliveryScheduler{
		trigger:   trigger,
		staleness: cfg.StalenessWindow,
		immediacy: cfg.ImmediacyWindow,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Decide computes when req should be delivered.
//
// A dated request earlier than now minus the staleness window fails with
// domain.ErrStaleSchedule. A request for today whose instant lies in
// (now-immediacy, now+immediacy] is flagged SendNow. A bare time-of-day is
// never stale: once it has passed today it rolls to the same wall-clock time
// tomorrow.
func (s *DeliveryScheduler) Decide(req domain.ScheduleRequest) (domain.ScheduleDecision, error) {
	decision, err := s.decide(req)
	metrics.ScheduleDecisions.WithLabelValues(decisionResult(decision, err)).Inc()
	return decision, err
}

func (s *DeliveryScheduler) decide(req domain.ScheduleRequest) (domain.ScheduleDecision, error) {
	loc, err := tzclock.Load(req.Timezone)
	if err != nil {
		return domain.ScheduleDecision{}, err
	}
	now := s.now().In(loc)

	if !req.HasDate() {
		hour, minute, err := tzclock.ParseHHMM(req.Time)
		if err != nil {
			return domain.ScheduleDecision{}, err
		}
		candidate := tzclock.OnDay(now, hour, minute)
		if s.immediate(candidate, now) {
			return domain.ScheduleDecision{TargetInstant: candidate, SendNow: true}, nil
		}
		if candidate.Before(now) {
			return domain.ScheduleDecision{TargetInstant: tzclock.NextDay(candidate), RolledOver: true}, nil
		}
		return domain.ScheduleDecision{TargetInstant: candidate}, nil
	}

	candidate, err := tzclock.Combine(req.Date, req.Time, loc)
	if err != nil {
		return domain.ScheduleDecision{}, err
	}
	if candidate.Before(now.Add(-s.staleness)) {
		return domain.ScheduleDecision{}, fmt.Errorf("%w: %s %s in %s is before %s",
			domain.ErrStaleSchedule, req.Date, req.Time, loc, now.Format(time.RFC3339))
	}

	sendNow := tzclock.SameDate(now, candidate) && s.immediate(candidate, now)
	return domain.ScheduleDecision{TargetInstant: candidate, SendNow: sendNow}, nil
}

func (s *DeliveryScheduler) immediate(candidate, now time.Time) bool {
	delta := candidate.Sub(now)
	return delta > -s.immediacy && delta <= s.immediacy
}

// Submit decides req and hands the delivery to the backend. Stale requests
// are never submitted.
func (s *DeliveryScheduler) Submit(ctx context.Context, req domain.ScheduleRequest, ingredients []domain.Ingredient) (domain.ScheduleDecision, *domain.DeliveryRunResult, error) {
	decision, err := s.Decide(req)
	if err != nil {
		return decision, nil, err
	}

	if ingredients == nil {
		ingredients = []domain.Ingredient{}
	}
	target := decision.TargetInstant
	run := domain.DeliveryRun{
		DeliveryTime:    tzclock.FormatHHMM(target.Hour(), target.Minute()),
		DeliveryDate:    tzclock.DateOf(target),
		DeliveryEnabled: true,
		Timezone:        target.Location().String(),
		SendNow:         decision.SendNow,
		Ingredients:     ingredients,
	}

	s.logger.Info("submitting delivery",
		"date", run.DeliveryDate,
		"time", run.DeliveryTime,
		"timezone", run.Timezone,
		"send_now", run.SendNow,
		"ingredients", len(ingredients),
	)

	result, err := s.trigger.RunDelivery(ctx, run)
	if err != nil {
		return decision, nil, fmt.Errorf("triggering delivery: %w", err)
	}
	return decision, result, nil
}

// SendNow asks the backend to send the plan for selectedTime immediately.
func (s *DeliveryScheduler) SendNow(ctx context.Context, selectedTime string) (*domain.SendResult, error) {
	hour, minute, err := tzclock.ParseHHMM(selectedTime)
	if err != nil {
		return nil, err
	}
	result, err := s.trigger.SendNow(ctx, tzclock.FormatHHMM(hour, minute))
	if err != nil {
		return nil, fmt.Errorf("sending now: %w", err)
	}
	return result, nil
}

func decisionResult(d domain.ScheduleDecision, err error) string {
	switch {
	case errors.Is(err, domain.ErrStaleSchedule):
		return "stale"
	case err != nil:
		return "invalid"
	case d.SendNow:
		return "send_now"
	case d.RolledOver:
		return "rolled_over"
	default:
		return "scheduled"
	}
}
