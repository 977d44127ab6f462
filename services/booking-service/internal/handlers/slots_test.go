package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

type fakeBackend struct {
	templates  map[string]model.BookingTemplate
	rules      []model.WeeklyRule
	exceptions []model.DateException
	bookings   []model.Booking
}

func (f *fakeBackend) GetTemplate(ctx context.Context, templateID string) (model.BookingTemplate, error) {
	tpl, ok := f.templates[templateID]
	if !ok {
		return model.BookingTemplate{}, availability.ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeBackend) ListAvailableRules(ctx context.Context, templateID string, weekday time.Weekday) ([]model.WeeklyRule, error) {
	var out []model.WeeklyRule
	for _, rule := range f.rules {
		if rule.TemplateID == templateID && rule.DayOfWeek == int(weekday) && rule.IsAvailable {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetDateException(ctx context.Context, templateID string, date time.Time) (model.DateException, bool, error) {
	for _, exc := range f.exceptions {
		if exc.TemplateID == templateID && exc.Date.Equal(date) && !exc.IsAvailable {
			return exc, true, nil
		}
	}
	for _, exc := range f.exceptions {
		if exc.TemplateID == templateID && exc.Date.Equal(date) {
			return exc, true, nil
		}
	}
	return model.DateException{}, false, nil
}

func (f *fakeBackend) ListBookedIntervals(ctx context.Context, templateID string, start, end time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.bookings {
		if b.TemplateID == templateID && b.StartTime.Before(end) && b.EndTime.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func newSlotsHandler(f *fakeBackend) *BookingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(f, f, f)
	return NewBookingHandler(nil, nil, f, resolver, nil, nil, logger)
}

func serveSlots(t *testing.T, h *BookingHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	return rec
}

func TestSlots_DefaultWindow(t *testing.T) {
	f := &fakeBackend{templates: map[string]model.BookingTemplate{
		"tpl-1": {ID: "tpl-1", DurationMinutes: 60, DefaultStartHour: 9, DefaultEndHour: 12},
	}}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=tpl-1&date=2024-06-10")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	want := []slotItem{
		{StartTime: "09:00:00", EndTime: "10:00:00", IsAvailable: true},
		{StartTime: "10:00:00", EndTime: "11:00:00", IsAvailable: true},
		{StartTime: "11:00:00", EndTime: "12:00:00", IsAvailable: true},
	}
	if len(items) != len(want) {
		t.Fatalf("got %d slots, want %d: %v", len(items), len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("slot %d = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestSlots_BlackoutDateReturnsEmptyArray(t *testing.T) {
	f := &fakeBackend{
		templates: map[string]model.BookingTemplate{
			"tpl-1": {ID: "tpl-1", DurationMinutes: 30, DefaultStartHour: 9, DefaultEndHour: 17},
		},
		exceptions: []model.DateException{
			{TemplateID: "tpl-1", Date: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), IsAvailable: false},
		},
	}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=tpl-1&date=2024-06-10")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want empty json array", body)
	}
}

func TestSlots_UnknownTemplate(t *testing.T) {
	f := &fakeBackend{templates: map[string]model.BookingTemplate{}}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=nope&date=2024-06-10")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSlots_BadDate(t *testing.T) {
	f := &fakeBackend{templates: map[string]model.BookingTemplate{
		"tpl-1": {ID: "tpl-1", DurationMinutes: 30, DefaultStartHour: 9, DefaultEndHour: 17},
	}}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=tpl-1&date=June+10")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlots_MissingParams(t *testing.T) {
	f := &fakeBackend{}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=tpl-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlots_ExcludeBookedDropsOverlaps(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	f := &fakeBackend{
		templates: map[string]model.BookingTemplate{
			"tpl-1": {ID: "tpl-1", DurationMinutes: 60, DefaultStartHour: 9, DefaultEndHour: 12},
		},
		bookings: []model.Booking{
			{TemplateID: "tpl-1", Status: "booked",
				StartTime: day.Add(10 * time.Hour), EndTime: day.Add(11 * time.Hour)},
		},
	}
	rec := serveSlots(t, newSlotsHandler(f), "/api/v1/public/slots?template_id=tpl-1&date=2024-06-10&exclude_booked=true")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d slots, want 2: %v", len(items), items)
	}
	if items[0].StartTime != "09:00:00" || items[1].StartTime != "11:00:00" {
		t.Fatalf("unexpected slots after exclusion: %v", items)
	}
}

func TestSlots_MethodNotAllowed(t *testing.T) {
	f := &fakeBackend{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/slots?template_id=tpl-1&date=2024-06-10", nil)
	rec := httptest.NewRecorder()
	newSlotsHandler(f).Slots(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
