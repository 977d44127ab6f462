package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wakti-app/wakti-server/libs/db"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(template_id, business_id, customer_name, customer_email, customer_phone, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, b.TemplateID, b.BusinessID, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.StartTime, b.EndTime, b.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, bookingID string) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, template_id, business_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM bookings
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, bookingID, businessID).Scan(
		&b.ID,
		&b.TemplateID,
		&b.BusinessID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, businessID, bookingID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND business_id = $2
		RETURNING cancelled_at
	`, bookingID, businessID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// ListBookedIntervals returns the confirmed bookings of a template that
// overlap [start, end). Cancelled bookings never block slots.
func (r *BookingRepository) ListBookedIntervals(ctx context.Context, templateID string, start, end time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, template_id, business_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM bookings
		WHERE template_id = $1
			AND status = 'booked'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, templateID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *BookingRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, template_id, business_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM bookings
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		var cancelledAt *time.Time
		if err := rows.Scan(
			&b.ID,
			&b.TemplateID,
			&b.BusinessID,
			&b.CustomerName,
			&b.CustomerEmail,
			&b.CustomerPhone,
			&b.StartTime,
			&b.EndTime,
			&b.Status,
			&cancelledAt,
			&b.CancelReason,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.CancelledAt = cancelledAt
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

// IsConflict reports a Postgres exclusion-constraint violation, raised when
// two confirmed bookings of the same template overlap.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
