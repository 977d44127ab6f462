package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wakti-app/wakti-server/libs/db"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

type RuleRepository struct {
	pool *db.Pool
}

func NewRuleRepository(pool *db.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.WeeklyRule) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO weekly_availability_rules
			(id, template_id, day_of_week, start_minute, end_minute, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, rule.TemplateID, rule.DayOfWeek, rule.StartMinute, rule.EndMinute, rule.IsAvailable)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListAvailableRules implements availability.RuleStore. Rows come back in
// insertion order (created_at, then id as a tiebreaker) so slot output for a
// weekday with several windows is stable across calls.
func (r *RuleRepository) ListAvailableRules(ctx context.Context, templateID string, weekday time.Weekday) ([]model.WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, template_id::text, day_of_week, start_minute, end_minute, is_available, created_at
		FROM weekly_availability_rules
		WHERE template_id = $1 AND day_of_week = $2 AND is_available = TRUE
		ORDER BY created_at ASC, id ASC
	`, templateID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *RuleRepository) ListByTemplate(ctx context.Context, templateID string) ([]model.WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, template_id::text, day_of_week, start_minute, end_minute, is_available, created_at
		FROM weekly_availability_rules
		WHERE template_id = $1
		ORDER BY day_of_week ASC, created_at ASC
	`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *RuleRepository) Delete(ctx context.Context, templateID, ruleID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM weekly_availability_rules
		WHERE id = $1 AND template_id = $2
	`, ruleID, templateID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]model.WeeklyRule, error) {
	var out []model.WeeklyRule
	for rows.Next() {
		var rule model.WeeklyRule
		if err := rows.Scan(
			&rule.ID,
			&rule.TemplateID,
			&rule.DayOfWeek,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.IsAvailable,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
