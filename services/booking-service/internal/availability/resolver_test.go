package availability

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

// fakeStores backs the resolver with in-memory data for deterministic tests.
type fakeStores struct {
	templates  map[string]model.BookingTemplate
	rules      []model.WeeklyRule
	exceptions []model.DateException
	rulesErr   error
}

func (f *fakeStores) GetTemplate(_ context.Context, templateID string) (model.BookingTemplate, error) {
	tpl, ok := f.templates[templateID]
	if !ok {
		return model.BookingTemplate{}, ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeStores) ListAvailableRules(_ context.Context, templateID string, weekday time.Weekday) ([]model.WeeklyRule, error) {
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	var out []model.WeeklyRule
	for _, r := range f.rules {
		if r.TemplateID == templateID && r.DayOfWeek == int(weekday) && r.IsAvailable {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStores) GetDateException(_ context.Context, templateID string, date time.Time) (model.DateException, bool, error) {
	var found model.DateException
	var ok bool
	for _, e := range f.exceptions {
		if e.TemplateID != templateID {
			continue
		}
		ey, em, ed := e.Date.Date()
		dy, dm, dd := date.Date()
		if ey != dy || em != dm || ed != dd {
			continue
		}
		// Blackout rows win when both polarities exist.
		if !ok || !e.IsAvailable {
			found = e
			ok = true
		}
	}
	return found, ok, nil
}

func newResolverWith(f *fakeStores) *Resolver {
	return NewResolver(f, f, f)
}

func halfHourTemplate() model.BookingTemplate {
	return model.BookingTemplate{
		ID:               "tpl-1",
		BusinessID:       "biz-1",
		Name:             "Consultation",
		DurationMinutes:  30,
		DefaultStartHour: 9,
		DefaultEndHour:   17,
	}
}

// monday is an arbitrary fixed Monday.
var monday = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func TestResolve_DefaultWindowFallback(t *testing.T) {
	f := &fakeStores{templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()}}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots tiling 09:00-17:00, got %d", len(slots))
	}
	if slots[0].StartMinute != 540 {
		t.Fatalf("expected first slot at 09:00, got %s", Clock(slots[0].StartMinute))
	}
	last := slots[len(slots)-1]
	if last.EndMinute != 17*60 {
		t.Fatalf("expected last slot to end at 17:00, got %s", Clock(last.EndMinute))
	}
}

func TestResolve_BlackoutExceptionWinsOverRules(t *testing.T) {
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rules: []model.WeeklyRule{
			{ID: "r1", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 540, EndMinute: 720, IsAvailable: true},
		},
		exceptions: []model.DateException{
			{ID: "e1", TemplateID: "tpl-1", Date: monday, IsAvailable: false, Reason: "public holiday"},
		},
	}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a blackout date, got %d", len(slots))
	}
}

func TestResolve_AvailableExceptionIsInert(t *testing.T) {
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		exceptions: []model.DateException{
			{ID: "e1", TemplateID: "tpl-1", Date: monday, IsAvailable: true},
		},
	}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("available exception must behave like no exception, got %d slots", len(slots))
	}
}

func TestResolve_ExplicitRuleWindow(t *testing.T) {
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rules: []model.WeeklyRule{
			{ID: "r1", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 540, EndMinute: 720, IsAvailable: true},
		},
	}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []Slot{
		{540, 570}, {570, 600}, {600, 630}, {630, 660}, {660, 690}, {690, 720},
	}
	if !reflect.DeepEqual(slots, want) {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

func TestResolve_MultipleWindowsKeepStoreOrder(t *testing.T) {
	// The evening shift was created first; slot order follows store order,
	// not clock order.
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rules: []model.WeeklyRule{
			{ID: "r-evening", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 18 * 60, EndMinute: 19 * 60, IsAvailable: true},
			{ID: "r-morning", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 9 * 60, EndMinute: 10 * 60, IsAvailable: true},
		},
	}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots across both windows, got %d", len(slots))
	}
	if slots[0].StartMinute != 18*60 {
		t.Fatalf("expected evening window first, got %s", Clock(slots[0].StartMinute))
	}
	if slots[2].StartMinute != 9*60 {
		t.Fatalf("expected morning window second, got %s", Clock(slots[2].StartMinute))
	}
}

func TestResolve_IgnoresUnavailableAndOtherWeekdayRules(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rules: []model.WeeklyRule{
			{ID: "r1", TemplateID: "tpl-1", DayOfWeek: int(tuesday.Weekday()), StartMinute: 540, EndMinute: 600, IsAvailable: true},
			{ID: "r2", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 540, EndMinute: 600, IsAvailable: false},
		},
	}
	r := newResolverWith(f)

	// Neither rule applies on Monday, so the default window governs.
	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected default-window slots, got %d", len(slots))
	}
}

func TestResolve_FortyFiveMinuteSlotsDoNotOverflowDefaultWindow(t *testing.T) {
	tpl := halfHourTemplate()
	tpl.DurationMinutes = 45
	tpl.DefaultStartHour = 9
	tpl.DefaultEndHour = 11
	f := &fakeStores{templates: map[string]model.BookingTemplate{"tpl-1": tpl}}
	r := newResolverWith(f)

	slots, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []Slot{{540, 585}, {585, 630}}
	if !reflect.DeepEqual(slots, want) {
		t.Fatalf("expected 09:00-09:45 and 09:45-10:30 only, got %+v", slots)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rules: []model.WeeklyRule{
			{ID: "r1", TemplateID: "tpl-1", DayOfWeek: int(monday.Weekday()), StartMinute: 540, EndMinute: 720, IsAvailable: true},
		},
	}
	r := newResolverWith(f)

	first, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), "tpl-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve is not deterministic: %+v vs %+v", first, second)
	}
}

func TestResolve_TemplateNotFound(t *testing.T) {
	f := &fakeStores{templates: map[string]model.BookingTemplate{}}
	r := newResolverWith(f)

	_, err := r.Resolve(context.Background(), "missing", monday)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestResolve_StoreErrorsPropagate(t *testing.T) {
	storeErr := errors.New("connection reset")
	f := &fakeStores{
		templates: map[string]model.BookingTemplate{"tpl-1": halfHourTemplate()},
		rulesErr:  storeErr,
	}
	r := newResolverWith(f)

	_, err := r.Resolve(context.Background(), "tpl-1", monday)
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate unchanged, got %v", err)
	}
}
