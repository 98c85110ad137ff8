package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityOnline   Modality = "online"
)

var validModalities = map[Modality]bool{
	ModalityInPerson: true,
	ModalityOnline:   true,
}

func (m Modality) Valid() bool { return validModalities[m] }

// TimeOfDay is a wall-clock time as seconds since local midnight. EndOfDay
// (24:00) is only meaningful as the end of a range.
type TimeOfDay int

const (
	secondsPerDay           = 24 * 60 * 60
	EndOfDay      TimeOfDay = secondsPerDay
)

// ClockTime builds a TimeOfDay from hours and minutes.
func ClockTime(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60)
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" with hours 00-24; 24 is only
// valid as exactly 24:00.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("time of day %q: expected HH:MM or HH:MM:SS", s)
	}
	limits := []int{24, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("time of day %q: expected two digits per field", s)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("time of day %q: field %q out of range", s, p)
		}
		vals[i] = v
	}
	if vals[0] == 24 && (vals[1] != 0 || vals[2] != 0) {
		return 0, fmt.Errorf("time of day %q: past end of day", s)
	}
	return TimeOfDay(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// TimeOfDayOf returns the wall-clock time of t in t's location, truncated to
// the second.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= EndOfDay }

func (t TimeOfDay) String() string {
	h, m, s := int(t)/3600, int(t)%3600/60, int(t)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// WeeklySlot is a recurring availability window for one (day, modality) pair.
type WeeklySlot struct {
	ID             uuid.UUID    `json:"id"`
	PracticeID     uuid.UUID    `json:"practice_id"`
	PractitionerID uuid.UUID    `json:"practitioner_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	Modality       Modality     `json:"modality"`
	StartTime      TimeOfDay    `json:"start_time"`
	EndTime        TimeOfDay    `json:"end_time"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Covers reports whether an active slot spans [start, end].
func (s *WeeklySlot) Covers(start, end TimeOfDay) bool {
	return s.Active && s.StartTime <= start && s.EndTime >= end
}

func validDay(d time.Weekday) bool { return d >= time.Sunday && d <= time.Saturday }

func validateRange(start, end TimeOfDay) error {
	if !start.Valid() || start >= EndOfDay {
		return &ValidationError{Field: "start_time", Message: "start_time must be between 00:00 and 23:59:59"}
	}
	if !end.Valid() {
		return &ValidationError{Field: "end_time", Message: "end_time must be between 00:00 and 24:00"}
	}
	if end <= start {
		return &ValidationError{Field: "end_time", Message: "end_time must be after start_time"}
	}
	return nil
}

func (s *WeeklySlot) Validate() error {
	if !validDay(s.DayOfWeek) {
		return &ValidationError{Field: "day_of_week", Message: fmt.Sprintf("day_of_week must be 0-6, got %d", s.DayOfWeek)}
	}
	if !s.Modality.Valid() {
		return &ValidationError{Field: "modality", Message: fmt.Sprintf("invalid modality %q", s.Modality)}
	}
	return validateRange(s.StartTime, s.EndTime)
}

// SlotPatch holds the fields of a slot update; nil fields are left unchanged.
type SlotPatch struct {
	DayOfWeek *time.Weekday `json:"day_of_week,omitempty"`
	Modality  *Modality     `json:"modality,omitempty"`
	StartTime *TimeOfDay    `json:"start_time,omitempty"`
	EndTime   *TimeOfDay    `json:"end_time,omitempty"`
	Active    *bool         `json:"active,omitempty"`
}

func (p SlotPatch) apply(s *WeeklySlot) {
	if p.DayOfWeek != nil {
		s.DayOfWeek = *p.DayOfWeek
	}
	if p.Modality != nil {
		s.Modality = *p.Modality
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		s.EndTime = *p.EndTime
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
}

// ExceptionStatus is the effect an exception has on bookings in its window.
type ExceptionStatus string

const (
	StatusOff          ExceptionStatus = "off"
	StatusOnlineOnly   ExceptionStatus = "online_only"
	StatusInPersonOnly ExceptionStatus = "in_person_only"
)

var validExceptionStatuses = map[ExceptionStatus]bool{
	StatusOff:          true,
	StatusOnlineOnly:   true,
	StatusInPersonOnly: true,
}

func (s ExceptionStatus) Valid() bool { return validExceptionStatuses[s] }

// Blocks reports whether the status rules out appointments of modality m.
func (s ExceptionStatus) Blocks(m Modality) bool {
	switch s {
	case StatusOff:
		return true
	case StatusOnlineOnly:
		return m != ModalityOnline
	case StatusInPersonOnly:
		return m != ModalityInPerson
	}
	return false
}

// DefaultReason is reported when a blocking exception has no description.
func (s ExceptionStatus) DefaultReason() string {
	switch s {
	case StatusOff:
		return "Practitioner is unavailable during this period"
	case StatusOnlineOnly:
		return "Only online appointments available during this period"
	case StatusInPersonOnly:
		return "Only in-person appointments available during this period"
	}
	return ""
}

const ReasonOutsideHours = "Outside of regular working hours"

// Exception overrides the weekly schedule between two instants.
type Exception struct {
	ID             uuid.UUID       `json:"id"`
	PracticeID     uuid.UUID       `json:"practice_id"`
	PractitionerID uuid.UUID       `json:"practitioner_id"`
	Status         ExceptionStatus `json:"status"`
	StartsAt       time.Time       `json:"start"`
	EndsAt         time.Time       `json:"end"`
	Description    *string         `json:"description,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Contains reports whether [start, end] lies inside the exception, bounds
// inclusive.
func (e *Exception) Contains(start, end time.Time) bool {
	return !e.StartsAt.After(start) && !e.EndsAt.Before(end)
}

// Overlaps reports whether the exception shares any time with [start, end).
func (e *Exception) Overlaps(start, end time.Time) bool {
	return e.StartsAt.Before(end) && e.EndsAt.After(start)
}

// Reason is the description when set, otherwise the status default.
func (e *Exception) Reason() string {
	if e.Description != nil && strings.TrimSpace(*e.Description) != "" {
		return *e.Description
	}
	return e.Status.DefaultReason()
}

func (e *Exception) Validate() error {
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q: must be off, online_only or in_person_only", e.Status)}
	}
	if e.StartsAt.IsZero() {
		return &ValidationError{Field: "start", Message: "start is required"}
	}
	if e.EndsAt.IsZero() {
		return &ValidationError{Field: "end", Message: "end is required"}
	}
	if !e.EndsAt.After(e.StartsAt) {
		return &ValidationError{Field: "end", Message: "end must be after start"}
	}
	return nil
}

// ExceptionPatch holds the fields of an exception update. An empty
// Description clears it.
type ExceptionPatch struct {
	Status      *ExceptionStatus `json:"status,omitempty"`
	StartsAt    *time.Time       `json:"start,omitempty"`
	EndsAt      *time.Time       `json:"end,omitempty"`
	Description *string          `json:"description,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

func (p ExceptionPatch) apply(e *Exception) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.StartsAt != nil {
		e.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		e.EndsAt = *p.EndsAt
	}
	if p.Description != nil {
		if *p.Description == "" {
			e.Description = nil
		} else {
			d := *p.Description
			e.Description = &d
		}
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
}

// CheckResult is the outcome of an availability check. Conflicts lists active
// exceptions that overlap a window rejected by the weekly schedule; it never
// affects Available or Reason.
type CheckResult struct {
	Available bool         `json:"available"`
	Reason    string       `json:"reason,omitempty"`
	Conflicts []*Exception `json:"conflicts,omitempty"`
}
