package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
)

type slotItem struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// Slots serves GET /api/v1/public/slots?template_id=&date=YYYY-MM-DD.
// By default it returns the template's full grid for the date; with
// exclude_booked=true, slots overlapping a booked appointment are dropped.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	templateID := strings.TrimSpace(r.URL.Query().Get("template_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if templateID == "" || dateStr == "" {
		http.Error(w, "template_id and date required", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	excludeBooked := strings.EqualFold(r.URL.Query().Get("exclude_booked"), "true")
	ctx := r.Context()

	// The raw grid for a date is stable between mutations, so only that
	// variant is cached.
	if !excludeBooked {
		if payload, ok := h.slotCache.Get(ctx, templateID, dateStr); ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
			return
		}
	}

	slots, err := h.resolver.Resolve(ctx, templateID, day)
	if err != nil {
		if errors.Is(err, availability.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		h.logger.Error("resolve slots failed", "template_id", templateID, "date", dateStr, "err", err)
		http.Error(w, "failed to resolve availability", http.StatusInternalServerError)
		return
	}

	if excludeBooked {
		bookings, err := h.booked.ListBookedIntervals(ctx, templateID, day, day.AddDate(0, 0, 1))
		if err != nil {
			h.logger.Error("list booked intervals failed", "template_id", templateID, "err", err)
			http.Error(w, "failed to load bookings", http.StatusInternalServerError)
			return
		}
		busy := make([]availability.Interval, 0, len(bookings))
		for _, b := range bookings {
			busy = append(busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
		slots = availability.ExcludeBusy(day, slots, busy)
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:   availability.Clock(s.StartMinute),
			EndTime:     availability.Clock(s.EndMinute),
			IsAvailable: true,
		})
	}

	payload, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}

	if !excludeBooked {
		h.slotCache.Set(ctx, templateID, dateStr, payload)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}
