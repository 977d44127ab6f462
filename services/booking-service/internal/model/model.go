package model

import "time"

// BookingTemplate defines how a business offers bookable time: the slot
// length and the fallback daily window used when no weekly rule exists.
type BookingTemplate struct {
	ID               string
	BusinessID       string
	Name             string
	Description      string
	DurationMinutes  int
	DefaultStartHour int
	DefaultEndHour   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WeeklyRule is one contiguous availability window on a given weekday.
// A template may carry several non-overlapping windows per weekday
// (e.g. a morning and an evening shift). Times are minutes from midnight.
type WeeklyRule struct {
	ID          string
	TemplateID  string
	DayOfWeek   int // 0 = Sunday, matching time.Weekday
	StartMinute int
	EndMinute   int
	IsAvailable bool
	CreatedAt   time.Time
}

// DateException marks a single calendar date as a blackout for a template.
// A row with IsAvailable=false wins over any weekly rule for that date.
type DateException struct {
	ID          string
	TemplateID  string
	Date        time.Time
	IsAvailable bool
	Reason      string
	CreatedAt   time.Time
}

type Booking struct {
	ID            string
	TemplateID    string
	BusinessID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}
