package practitioner

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Practitioner is the read-only view of a practitioner this service needs:
// which practice they belong to and the practice's time zone.
type Practitioner struct {
	ID          uuid.UUID `json:"id"`
	PracticeID  uuid.UUID `json:"practice_id"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	Timezone    *string   `json:"timezone,omitempty"`
}

// Location returns the practice's time zone, or fallback when the practice has
// none. A zone that cannot be loaded also yields fallback, together with the
// load error so callers can report it.
func (p *Practitioner) Location(fallback *time.Location) (*time.Location, error) {
	if p.Timezone == nil || *p.Timezone == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(*p.Timezone)
	if err != nil {
		return fallback, fmt.Errorf("load practice time zone %q: %w", *p.Timezone, err)
	}
	return loc, nil
}
