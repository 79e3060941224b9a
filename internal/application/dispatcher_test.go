package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mealvoice/internal/application"
	"mealvoice/internal/domain"
)

type dispatcherFixture struct {
	ingredients *mockIngredientStore
	settings    *mockSettingsStore
	nlu         *mockNLU
	dispatcher  *application.Dispatcher
	changes     []application.Change
}

func newDispatcherFixture(now time.Time) *dispatcherFixture {
	f := &dispatcherFixture{
		ingredients: &mockIngredientStore{},
		settings:    &mockSettingsStore{},
		nlu:         &mockNLU{reply: "Your plan is ready."},
	}
	f.dispatcher = application.NewDispatcher(
		f.ingredients,
		f.settings,
		f.nlu,
		newScheduler(&mockTrigger{}, now),
		application.DispatcherConfig{Timezone: "UTC"},
		discardLogger(),
	)
	f.dispatcher.Subscribe(application.ChangeObserverFunc(func(c application.Change) {
		f.changes = append(f.changes, c)
	}))
	return f
}

func TestDispatcher_Ingredients(t *testing.T) {
	f := newDispatcherFixture(time.Now())

	out := f.dispatcher.Dispatch(context.Background(), domain.AddIngredient("rice", 2, "kg"), "en-US")
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Message != "Added rice to your ingredients." {
		t.Errorf("unexpected message %q", out.Message)
	}
	if len(f.ingredients.added) != 1 || f.ingredients.added[0] != (domain.Ingredient{Name: "rice", Quantity: 2, Unit: "kg"}) {
		t.Errorf("unexpected store calls %+v", f.ingredients.added)
	}

	out = f.dispatcher.Dispatch(context.Background(), domain.DeleteIngredient("green onions"), "en-US")
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Message != "Deleted green onions from your ingredients." {
		t.Errorf("unexpected message %q", out.Message)
	}
	if len(f.ingredients.deleted) != 1 || f.ingredients.deleted[0] != "green onions" {
		t.Errorf("unexpected store calls %+v", f.ingredients.deleted)
	}

	if len(f.changes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.changes))
	}
	for _, c := range f.changes {
		if c.Kind != application.IngredientsChanged {
			t.Errorf("unexpected change %+v", c)
		}
	}
}

func TestDispatcher_StoreFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "backend detail is surfaced",
			err:     &domain.BackendError{Op: "add ingredient", Status: 409, Detail: "Ingredient already exists"},
			wantMsg: "Sorry, that didn't work: Ingredient already exists",
		},
		{
			name:    "transport error",
			err:     errors.New("connection refused"),
			wantMsg: "Sorry, that didn't work. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(time.Now())
			f.ingredients.err = tt.err

			out := f.dispatcher.Dispatch(context.Background(), domain.AddIngredient("rice", 1, ""), "en-US")
			if !errors.Is(out.Err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, out.Err)
			}
			if out.Message != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, out.Message)
			}
			if len(f.changes) != 0 {
				t.Error("failed mutation must not notify observers")
			}
		})
	}
}

func TestDispatcher_SetDeliveryTime(t *testing.T) {
	noon := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		hhmm    string
		wantMsg string
	}{
		{"later today", "19:30", "Delivery time updated to 19:30 (today)."},
		{"already passed", "07:00", "Delivery time updated to 07:00 (tomorrow)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(noon)

			out := f.dispatcher.Dispatch(context.Background(), domain.SetDeliveryTime(tt.hhmm), "en-US")
			if out.Err != nil {
				t.Fatalf("unexpected error: %v", out.Err)
			}
			if out.Message != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, out.Message)
			}

			if len(f.settings.updates) != 1 {
				t.Fatalf("expected one update, got %d", len(f.settings.updates))
			}
			u := f.settings.updates[0]
			if u.DeliveryTime == nil || *u.DeliveryTime != tt.hhmm {
				t.Errorf("expected delivery_time %s", tt.hhmm)
			}
			if u.DeliveryEnabled == nil || !*u.DeliveryEnabled {
				t.Error("setting a time must enable delivery")
			}
			if u.Timezone == nil || *u.Timezone != "UTC" {
				t.Error("expected timezone UTC")
			}
			if u.DeliveryDate != nil {
				t.Error("voice update must not send a date")
			}

			want := application.Change{Kind: application.DeliveryTimeChanged, DeliveryTime: tt.hhmm}
			if len(f.changes) != 1 || f.changes[0] != want {
				t.Errorf("expected %+v, got %+v", want, f.changes)
			}
		})
	}
}

func TestDispatcher_SetDeliveryEnabled(t *testing.T) {
	f := newDispatcherFixture(time.Now())

	out := f.dispatcher.Dispatch(context.Background(), domain.SetDeliveryEnabled(false), "en-US")
	if out.Err != nil || out.Message != "Delivery disabled." {
		t.Fatalf("unexpected outcome %+v", out)
	}
	u := f.settings.updates[0]
	if u.DeliveryEnabled == nil || *u.DeliveryEnabled {
		t.Error("expected delivery_enabled=false")
	}
	if u.DeliveryTime != nil || u.Timezone != nil {
		t.Error("only delivery_enabled should be sent")
	}
	if len(f.changes) != 0 {
		t.Error("enable toggle does not notify observers")
	}
}

func TestDispatcher_Unknown(t *testing.T) {
	t.Run("delegates to nlu", func(t *testing.T) {
		f := newDispatcherFixture(time.Now())

		out := f.dispatcher.Dispatch(context.Background(), domain.Unknown("Plan something spicy"), "hi-IN")
		if out.Err != nil {
			t.Fatalf("unexpected error: %v", out.Err)
		}
		if out.Message != "Your plan is ready." {
			t.Errorf("unexpected message %q", out.Message)
		}
		if len(f.nlu.calls) != 1 || f.nlu.calls[0] != "Plan something spicy" || f.nlu.locales[0] != "hi-IN" {
			t.Errorf("unexpected nlu calls %v %v", f.nlu.calls, f.nlu.locales)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		f := newDispatcherFixture(time.Now())
		f.nlu.reply = ""

		out := f.dispatcher.Dispatch(context.Background(), domain.Unknown("hello"), "en-US")
		if out.Message != "I understood your request." {
			t.Errorf("unexpected message %q", out.Message)
		}
	})

	t.Run("nlu failure", func(t *testing.T) {
		f := newDispatcherFixture(time.Now())
		f.nlu.err = errors.New("timeout")

		out := f.dispatcher.Dispatch(context.Background(), domain.Unknown("hello"), "en-US")
		if !errors.Is(out.Err, domain.ErrUnknownIntent) {
			t.Errorf("expected ErrUnknownIntent, got %v", out.Err)
		}
		if out.Message != "I couldn't process that. Please try again." {
			t.Errorf("unexpected message %q", out.Message)
		}
	})

	t.Run("no nlu configured", func(t *testing.T) {
		d := application.NewDispatcher(&mockIngredientStore{}, &mockSettingsStore{}, &application.NoopNLU{},
			newScheduler(&mockTrigger{}, time.Now()), application.DispatcherConfig{Timezone: "UTC"}, discardLogger())

		out := d.Dispatch(context.Background(), domain.Unknown("hello"), "en-US")
		if !errors.Is(out.Err, domain.ErrUnknownIntent) {
			t.Errorf("expected ErrUnknownIntent, got %v", out.Err)
		}
	})
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	f := newDispatcherFixture(time.Now())

	var count int
	unsubscribe := f.dispatcher.Subscribe(application.ChangeObserverFunc(func(application.Change) { count++ }))

	f.dispatcher.Dispatch(context.Background(), domain.AddIngredient("salt", 1, ""), "en-US")
	unsubscribe()
	unsubscribe()
	f.dispatcher.Dispatch(context.Background(), domain.AddIngredient("pepper", 1, ""), "en-US")

	if count != 1 {
		t.Errorf("expected 1 notification before unsubscribe, got %d", count)
	}
	if len(f.changes) != 2 {
		t.Errorf("other subscribers keep receiving, got %d", len(f.changes))
	}
}

func TestExecuteText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		locale   string
		wantKind domain.IntentKind
		wantNLU  bool
	}{
		{"english add", "Add 2 kg rice", "en-US", domain.IntentAddIngredient, false},
		{"english unmatched", "what should I cook", "en-GB", domain.IntentUnknown, true},
		{"non-english goes to nlu", "add 2 kg rice", "es-AR", domain.IntentUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(time.Now())

			out := application.ExecuteText(context.Background(), f.dispatcher, "  "+tt.text+" ", tt.locale)
			if out.Intent.Kind != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, out.Intent.Kind)
			}
			if got := len(f.nlu.calls) == 1; got != tt.wantNLU {
				t.Errorf("expected nlu call=%v, got %v", tt.wantNLU, got)
			}
		})
	}
}
