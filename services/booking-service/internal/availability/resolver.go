package availability

import (
	"context"
	"errors"
	"time"

	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
)

// ErrTemplateNotFound is returned by Resolve when the template id does not
// exist. Store implementations map their own not-found condition to it.
var ErrTemplateNotFound = errors.New("booking template not found")

// TemplateStore loads a booking template by id.
type TemplateStore interface {
	GetTemplate(ctx context.Context, templateID string) (model.BookingTemplate, error)
}

// RuleStore lists the available weekly rules for a template on one weekday.
// The returned order is significant: the resolver concatenates window slots
// in exactly this order.
type RuleStore interface {
	ListAvailableRules(ctx context.Context, templateID string, weekday time.Weekday) ([]model.WeeklyRule, error)
}

// ExceptionStore looks up a date exception for a template. When rows of both
// polarities exist for the same date, implementations must return the
// blackout row.
type ExceptionStore interface {
	GetDateException(ctx context.Context, templateID string, date time.Time) (model.DateException, bool, error)
}

// Resolver computes the available slots of a booking template on a calendar
// date. It is a pure function of the template, its weekly rules and its date
// exceptions: stateless, deterministic and safe for concurrent use. It never
// consults existing bookings; that exclusion is a separate composing layer.
type Resolver struct {
	templates  TemplateStore
	rules      RuleStore
	exceptions ExceptionStore
}

func NewResolver(templates TemplateStore, rules RuleStore, exceptions ExceptionStore) *Resolver {
	return &Resolver{
		templates:  templates,
		rules:      rules,
		exceptions: exceptions,
	}
}

// Resolve returns the ordered slots for date. date carries no time component;
// only its calendar day and weekday are used. Past dates are accepted; "is
// this bookable now" policy belongs to the caller.
//
// A date exception with IsAvailable=false blacks out the whole date
// regardless of weekly rules. Exceptions with IsAvailable=true are treated
// the same as no exception.
func (r *Resolver) Resolve(ctx context.Context, templateID string, date time.Time) ([]Slot, error) {
	tpl, err := r.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	exc, ok, err := r.exceptions.GetDateException(ctx, templateID, date)
	if err != nil {
		return nil, err
	}
	if ok && !exc.IsAvailable {
		return []Slot{}, nil
	}

	rules, err := r.rules.ListAvailableRules(ctx, templateID, date.Weekday())
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(rules))
	for _, rule := range rules {
		windows = append(windows, Window{StartMinute: rule.StartMinute, EndMinute: rule.EndMinute})
	}
	if len(windows) == 0 {
		windows = append(windows, Window{
			StartMinute: tpl.DefaultStartHour * 60,
			EndMinute:   tpl.DefaultEndHour * 60,
		})
	}

	var slots []Slot
	for _, w := range windows {
		slots = append(slots, TileWindow(w, tpl.DurationMinutes)...)
	}
	return slots, nil
}
