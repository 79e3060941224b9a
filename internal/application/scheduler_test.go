package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mealvoice/internal/domain"
)

func TestDeliveryScheduler_Decide(t *testing.T) {
	noon := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		now         time.Time
		req         domain.ScheduleRequest
		wantErr     error
		wantTarget  time.Time
		wantSendNow bool
		wantRolled  bool
	}{
		{
			name:       "one minute ago is within the grace window",
			now:        noon,
			req:        domain.ScheduleRequest{Date: "2024-01-01", Time: "11:59", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 1, 11, 59, 0, 0, time.UTC),
		},
		{
			name:       "exactly two minutes ago is accepted",
			now:        noon,
			req:        domain.ScheduleRequest{Date: "2024-01-01", Time: "11:58", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 1, 11, 58, 0, 0, time.UTC),
		},
		{
			name:    "more than two minutes ago is stale",
			now:     noon,
			req:     domain.ScheduleRequest{Date: "2024-01-01", Time: "11:57", Timezone: "UTC"},
			wantErr: domain.ErrStaleSchedule,
		},
		{
			name:    "yesterday is stale",
			now:     noon,
			req:     domain.ScheduleRequest{Date: "2023-12-31", Time: "23:59", Timezone: "UTC"},
			wantErr: domain.ErrStaleSchedule,
		},
		{
			name:        "now is sent immediately",
			now:         noon,
			req:         domain.ScheduleRequest{Date: "2024-01-01", Time: "12:00", Timezone: "UTC"},
			wantTarget:  noon,
			wantSendNow: true,
		},
		{
			name:        "one minute ahead is sent immediately",
			now:         noon,
			req:         domain.ScheduleRequest{Date: "2024-01-01", Time: "12:01", Timezone: "UTC"},
			wantTarget:  time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC),
			wantSendNow: true,
		},
		{
			name:       "two minutes ahead is scheduled",
			now:        noon,
			req:        domain.ScheduleRequest{Date: "2024-01-01", Time: "12:02", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 1, 12, 2, 0, 0, time.UTC),
		},
		{
			name:       "future date is scheduled",
			now:        noon,
			req:        domain.ScheduleRequest{Date: "2024-01-02", Time: "08:00", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name:        "immediacy is evaluated in the request timezone",
			now:         noon,
			req:         domain.ScheduleRequest{Date: "2024-01-01", Time: "17:30", Timezone: "Asia/Kolkata"},
			wantTarget:  noon,
			wantSendNow: true,
		},
		{
			name:       "just past midnight tomorrow is not today",
			now:        time.Date(2024, 1, 1, 23, 59, 30, 0, time.UTC),
			req:        domain.ScheduleRequest{Date: "2024-01-02", Time: "00:00", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "unknown timezone",
			now:     noon,
			req:     domain.ScheduleRequest{Date: "2024-01-01", Time: "12:00", Timezone: "Mars/Olympus"},
			wantErr: domain.ErrInvalidTimezone,
		},
		{
			name:    "hour out of range",
			now:     noon,
			req:     domain.ScheduleRequest{Date: "2024-01-01", Time: "25:00", Timezone: "UTC"},
			wantErr: domain.ErrInvalidSchedule,
		},
		{
			name:    "malformed date",
			now:     noon,
			req:     domain.ScheduleRequest{Date: "01/02/2024", Time: "08:00", Timezone: "UTC"},
			wantErr: domain.ErrInvalidSchedule,
		},
		{
			name:       "bare time already passed rolls to tomorrow",
			now:        noon,
			req:        domain.ScheduleRequest{Time: "11:00", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC),
			wantRolled: true,
		},
		{
			name:       "bare time later today",
			now:        noon,
			req:        domain.ScheduleRequest{Time: "18:45", Timezone: "UTC"},
			wantTarget: time.Date(2024, 1, 1, 18, 45, 0, 0, time.UTC),
		},
		{
			name:        "bare time now is sent immediately",
			now:         noon,
			req:         domain.ScheduleRequest{Time: "12:00", Timezone: "UTC"},
			wantTarget:  noon,
			wantSendNow: true,
		},
		{
			name: "bare time rollover keeps wall clock across DST",
			// 23:00 EST on the eve of the spring-forward change
			now:        time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC),
			req:        domain.ScheduleRequest{Time: "22:30", Timezone: "America/New_York"},
			wantTarget: time.Date(2024, 3, 11, 2, 30, 0, 0, time.UTC),
			wantRolled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(&mockTrigger{}, tt.now)

			got, err := s.Decide(tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.TargetInstant.Equal(tt.wantTarget) {
				t.Errorf("expected target %s, got %s", tt.wantTarget, got.TargetInstant.UTC())
			}
			if got.SendNow != tt.wantSendNow {
				t.Errorf("expected sendNow=%v, got %v", tt.wantSendNow, got.SendNow)
			}
			if got.RolledOver != tt.wantRolled {
				t.Errorf("expected rolledOver=%v, got %v", tt.wantRolled, got.RolledOver)
			}
		})
	}
}

func TestDeliveryScheduler_Submit(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scheduled delivery", func(t *testing.T) {
		trigger := &mockTrigger{}
		s := newScheduler(trigger, now)
		ingredients := []domain.Ingredient{{Name: "rice", Quantity: 2, Unit: "kg"}}

		decision, result, err := s.Submit(context.Background(),
			domain.ScheduleRequest{Date: "2024-01-02", Time: "8:00", Timezone: "Asia/Kolkata"}, ingredients)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if decision.SendNow {
			t.Error("expected a scheduled delivery")
		}
		if result == nil || !result.OK {
			t.Errorf("unexpected result %+v", result)
		}
		if len(trigger.runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(trigger.runs))
		}
		run := trigger.runs[0]
		want := domain.DeliveryRun{
			DeliveryTime:    "08:00",
			DeliveryDate:    "2024-01-02",
			DeliveryEnabled: true,
			Timezone:        "Asia/Kolkata",
			Ingredients:     ingredients,
		}
		if run.DeliveryTime != want.DeliveryTime || run.DeliveryDate != want.DeliveryDate ||
			run.Timezone != want.Timezone || !run.DeliveryEnabled || run.SendNow || len(run.Ingredients) != 1 {
			t.Errorf("expected %+v, got %+v", want, run)
		}
	})

	t.Run("immediate delivery without ingredients", func(t *testing.T) {
		trigger := &mockTrigger{}
		s := newScheduler(trigger, now)

		_, _, err := s.Submit(context.Background(),
			domain.ScheduleRequest{Date: "2024-01-01", Time: "12:00", Timezone: "UTC"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		run := trigger.runs[0]
		if !run.SendNow {
			t.Error("expected send_now")
		}
		if run.Ingredients == nil {
			t.Error("ingredients must be an empty list, not nil")
		}
	})

	t.Run("stale request is not submitted", func(t *testing.T) {
		trigger := &mockTrigger{}
		s := newScheduler(trigger, now)

		_, _, err := s.Submit(context.Background(),
			domain.ScheduleRequest{Date: "2024-01-01", Time: "09:00", Timezone: "UTC"}, nil)
		if !errors.Is(err, domain.ErrStaleSchedule) {
			t.Fatalf("expected ErrStaleSchedule, got %v", err)
		}
		if len(trigger.runs) != 0 {
			t.Error("stale request reached the backend")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		trigger := &mockTrigger{err: &domain.BackendError{Op: "run delivery", Status: 400, Detail: "no ingredients"}}
		s := newScheduler(trigger, now)

		_, _, err := s.Submit(context.Background(),
			domain.ScheduleRequest{Date: "2024-01-02", Time: "08:00", Timezone: "UTC"}, nil)
		if !errors.Is(err, domain.ErrBackendRejection) {
			t.Fatalf("expected ErrBackendRejection, got %v", err)
		}
	})
}

func TestDeliveryScheduler_SendNow(t *testing.T) {
	trigger := &mockTrigger{}
	s := newScheduler(trigger, time.Now())

	if _, err := s.SendNow(context.Background(), "7:05"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trigger.sends) != 1 || trigger.sends[0] != "07:05" {
		t.Errorf("expected normalized 07:05, got %v", trigger.sends)
	}

	if _, err := s.SendNow(context.Background(), "7pm"); !errors.Is(err, domain.ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
	if len(trigger.sends) != 1 {
		t.Error("invalid time reached the backend")
	}
}
