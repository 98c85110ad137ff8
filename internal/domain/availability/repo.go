package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ScheduleRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*WeeklySlot, error)
	// Find returns the slot keyed by (practitioner, day, modality) or a NotFoundError.
	Find(ctx context.Context, practitionerID uuid.UUID, day time.Weekday, modality Modality) (*WeeklySlot, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*WeeklySlot, error)
	// Upsert inserts s or replaces the slot with the same key, filling in ID and timestamps.
	Upsert(ctx context.Context, s *WeeklySlot) error
	Update(ctx context.Context, s *WeeklySlot) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPractitioner(ctx context.Context, practitionerID uuid.UUID) (int64, error)
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	Get(ctx context.Context, id uuid.UUID) (*Exception, error)
	Update(ctx context.Context, e *Exception) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPractitioner returns one page of exceptions and the total match count.
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, activeOnly bool, limit, offset int) ([]*Exception, int, error)
	// ListContaining returns active exceptions whose window includes [start, end], bounds inclusive.
	ListContaining(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error)
	// ListOverlapping returns active exceptions sharing any time with [start, end).
	ListOverlapping(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error)
}

// TxRunner runs fn atomically. Repository calls made with the ctx passed to
// fn join the transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
