package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wakti-app/wakti-server/libs/db"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

type TemplateRepository struct {
	pool *db.Pool
}

func NewTemplateRepository(pool *db.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *model.BookingTemplate) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_templates
			(id, business_id, name, description, duration_minutes, default_start_hour, default_end_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, tpl.BusinessID, tpl.Name, tpl.Description, tpl.DurationMinutes, tpl.DefaultStartHour, tpl.DefaultEndHour)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetTemplate implements availability.TemplateStore. A missing row maps to
// availability.ErrTemplateNotFound so the resolver owns the failure taxonomy.
func (r *TemplateRepository) GetTemplate(ctx context.Context, templateID string) (model.BookingTemplate, error) {
	var tpl model.BookingTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, description, duration_minutes,
			default_start_hour, default_end_hour, created_at, updated_at
		FROM booking_templates
		WHERE id = $1
	`, templateID).Scan(
		&tpl.ID,
		&tpl.BusinessID,
		&tpl.Name,
		&tpl.Description,
		&tpl.DurationMinutes,
		&tpl.DefaultStartHour,
		&tpl.DefaultEndHour,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BookingTemplate{}, availability.ErrTemplateNotFound
	}
	if err != nil {
		return model.BookingTemplate{}, err
	}
	return tpl, nil
}

func (r *TemplateRepository) GetForBusiness(ctx context.Context, businessID, templateID string) (model.BookingTemplate, error) {
	tpl, err := r.GetTemplate(ctx, templateID)
	if err != nil {
		return model.BookingTemplate{}, err
	}
	if tpl.BusinessID != businessID {
		return model.BookingTemplate{}, availability.ErrTemplateNotFound
	}
	return tpl, nil
}

func (r *TemplateRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.BookingTemplate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, description, duration_minutes,
			default_start_hour, default_end_hour, created_at, updated_at
		FROM booking_templates
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookingTemplate
	for rows.Next() {
		var tpl model.BookingTemplate
		if err := rows.Scan(
			&tpl.ID,
			&tpl.BusinessID,
			&tpl.Name,
			&tpl.Description,
			&tpl.DurationMinutes,
			&tpl.DefaultStartHour,
			&tpl.DefaultEndHour,
			&tpl.CreatedAt,
			&tpl.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *TemplateRepository) Update(ctx context.Context, tpl *model.BookingTemplate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE booking_templates
		SET name = $3,
			description = $4,
			duration_minutes = $5,
			default_start_hour = $6,
			default_end_hour = $7,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, tpl.ID, tpl.BusinessID, tpl.Name, tpl.Description, tpl.DurationMinutes, tpl.DefaultStartHour, tpl.DefaultEndHour)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return availability.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, businessID, templateID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM booking_templates
		WHERE id = $1 AND business_id = $2
	`, templateID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return availability.ErrTemplateNotFound
	}
	return nil
}
