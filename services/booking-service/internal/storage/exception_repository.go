package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wakti-app/wakti-server/libs/db"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

type ExceptionRepository struct {
	pool *db.Pool
}

func NewExceptionRepository(pool *db.Pool) *ExceptionRepository {
	return &ExceptionRepository{pool: pool}
}

func (r *ExceptionRepository) Create(ctx context.Context, exc *model.DateException) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO date_exceptions (id, template_id, exception_date, is_available, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, exc.TemplateID, exc.Date, exc.IsAvailable, exc.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetDateException implements availability.ExceptionStore. When a date has
// rows of both polarities the blackout row is returned, so a single stray
// is_available=true row can never reopen a blacked-out date.
func (r *ExceptionRepository) GetDateException(ctx context.Context, templateID string, date time.Time) (model.DateException, bool, error) {
	var exc model.DateException
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, template_id::text, exception_date, is_available, COALESCE(reason, ''), created_at
		FROM date_exceptions
		WHERE template_id = $1 AND exception_date = $2
		ORDER BY is_available ASC
		LIMIT 1
	`, templateID, date).Scan(
		&exc.ID,
		&exc.TemplateID,
		&exc.Date,
		&exc.IsAvailable,
		&exc.Reason,
		&exc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DateException{}, false, nil
	}
	if err != nil {
		return model.DateException{}, false, err
	}
	return exc, true, nil
}

func (r *ExceptionRepository) ListByTemplate(ctx context.Context, templateID string, from, to time.Time) ([]model.DateException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, template_id::text, exception_date, is_available, COALESCE(reason, ''), created_at
		FROM date_exceptions
		WHERE template_id = $1
			AND exception_date >= $2
			AND exception_date <= $3
		ORDER BY exception_date ASC
	`, templateID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateException
	for rows.Next() {
		var exc model.DateException
		if err := rows.Scan(
			&exc.ID,
			&exc.TemplateID,
			&exc.Date,
			&exc.IsAvailable,
			&exc.Reason,
			&exc.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, exc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ExceptionRepository) Delete(ctx context.Context, templateID, exceptionID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM date_exceptions
		WHERE id = $1 AND template_id = $2
	`, exceptionID, templateID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
