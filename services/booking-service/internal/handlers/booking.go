package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/cache"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/outbox"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/storage"
)

// BookedIntervalLister is the slice of the booking repository the slots
// endpoint needs; narrowed so tests can fake it.
type BookedIntervalLister interface {
	ListBookedIntervals(ctx context.Context, templateID string, start, end time.Time) ([]model.Booking, error)
}

type BookingHandler struct {
	repo       *storage.BookingRepository
	templates  *storage.TemplateRepository
	booked     BookedIntervalLister
	resolver   *availability.Resolver
	outboxRepo *outbox.Repository
	slotCache  *cache.SlotCache
	logger     *slog.Logger
}

func NewBookingHandler(
	repo *storage.BookingRepository,
	templates *storage.TemplateRepository,
	booked BookedIntervalLister,
	resolver *availability.Resolver,
	outboxRepo *outbox.Repository,
	slotCache *cache.SlotCache,
	logger *slog.Logger,
) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		templates:  templates,
		booked:     booked,
		resolver:   resolver,
		outboxRepo: outboxRepo,
		slotCache:  slotCache,
		logger:     logger,
	}
}

type createBookingRequest struct {
	BusinessID    string `json:"business_id"`
	TemplateID    string `json:"template_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
}

type cancelBookingRequest struct {
	BusinessID string `json:"business_id"`
	BookingID  string `json:"booking_id"`
	Reason     string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

type listBookingItem struct {
	BookingID   string `json:"booking_id"`
	TemplateID  string `json:"template_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)

	if req.BusinessID == "" || req.TemplateID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if _, err := h.templates.GetForBusiness(ctx, req.BusinessID, req.TemplateID); err != nil {
		if errors.Is(err, availability.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load template", http.StatusInternalServerError)
		return
	}

	b := &model.Booking{
		TemplateID:    req.TemplateID,
		BusinessID:    req.BusinessID,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		StartTime:     startTime,
		EndTime:       endTime,
		Status:        "booked",
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, b.BusinessID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{BookingID: rec.BookingID})
			return
		}
	}

	// The requested interval must land exactly on the template's slot grid
	// for that date.
	ok, err := h.requestedIntervalOnGrid(ctx, b)
	if err != nil {
		http.Error(w, "failed to resolve availability", http.StatusInternalServerError)
		return
	}
	if !ok {
		if idempotencyKey != "" {
			if h.finalizeIdempotencyError(ctx, tx, b.BusinessID, idempotencyKey, http.StatusUnprocessableEntity, "requested time is not an available slot") {
				_ = tx.Commit(ctx)
			}
		}
		http.Error(w, "requested time is not an available slot", http.StatusUnprocessableEntity)
		return
	}

	id, err := h.repo.Create(ctx, tx, b)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"booking_id":     id,
		"template_id":    b.TemplateID,
		"business_id":    b.BusinessID,
		"customer_email": b.CustomerEmail,
		"customer_phone": b.CustomerPhone,
		"start_time":     b.StartTime.UTC().Format(time.RFC3339),
		"end_time":       b.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "booking.appointment.booked.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{BookingID: id})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, b.BusinessID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// requestedIntervalOnGrid resolves the template's slots for the booking's
// date and checks the requested interval is one of them. Dates are anchored
// to UTC; a booking may not span midnight.
func (h *BookingHandler) requestedIntervalOnGrid(ctx context.Context, b *model.Booking) (bool, error) {
	startUTC := b.StartTime.UTC()
	endUTC := b.EndTime.UTC()

	day := time.Date(startUTC.Year(), startUTC.Month(), startUTC.Day(), 0, 0, 0, 0, time.UTC)
	if endUTC.After(day.AddDate(0, 0, 1)) {
		return false, nil
	}

	slots, err := h.resolver.Resolve(ctx, b.TemplateID, day)
	if err != nil {
		return false, err
	}

	startMinute := int(startUTC.Sub(day) / time.Minute)
	endMinute := int(endUTC.Sub(day) / time.Minute)
	if startUTC.Second() != 0 || endUTC.Second() != 0 {
		return false, nil
	}
	return availability.ContainsSlot(slots, startMinute, endMinute), nil
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BusinessID == "" || req.BookingID == "" {
		http.Error(w, "business_id and booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := h.repo.GetForUpdate(ctx, tx, req.BusinessID, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if b.Status == "cancelled" && b.CancelledAt != nil {
		h.writeCancelResponse(w, b.ID, b.CancelledAt.UTC())
		return
	}
	if b.Status != "booked" {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, req.BusinessID, b.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	cancelPayload, err := json.Marshal(map[string]any{
		"booking_id":   b.ID,
		"template_id":  b.TemplateID,
		"business_id":  b.BusinessID,
		"start_time":   b.StartTime.UTC().Format(time.RFC3339),
		"end_time":     b.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
		"reason":       req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.appointment.cancelled.v1",
		Payload:       cancelPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.writeCancelResponse(w, b.ID, cancelledAt.UTC())
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.repo.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]listBookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := listBookingItem{
			BookingID:  b.ID,
			TemplateID: b.TemplateID,
			StartTime:  b.StartTime.UTC().Format(time.RFC3339),
			EndTime:    b.EndTime.UTC().Format(time.RFC3339),
			Status:     b.Status,
			CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, bookingID string, cancelledAt time.Time) {
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID:   bookingID,
		Status:      "cancelled",
		CancelledAt: cancelledAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, businessID, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, businessID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
