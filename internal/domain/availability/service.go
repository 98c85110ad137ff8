package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/praxis/praxis/internal/domain/practitioner"
)

// Service scopes every operation to the caller's practice. Records of another
// practice are reported as not found.
type Service struct {
	directory  practitioner.Directory
	resolver   *Resolver
	schedule   *ScheduleEditor
	exceptions *ExceptionEditor
	fallback   *time.Location
}

func NewService(dir practitioner.Directory, sched ScheduleRepository, exc ExceptionRepository, tx TxRunner, fallback *time.Location) *Service {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Service{
		directory:  dir,
		resolver:   NewResolver(dir, sched, exc, fallback),
		schedule:   NewScheduleEditor(sched, tx),
		exceptions: NewExceptionEditor(exc),
		fallback:   fallback,
	}
}

type CheckRequest struct {
	PractitionerID uuid.UUID
	Modality       Modality
	Start          time.Time
	End            time.Time
}

type BulkSetRequest struct {
	PractitionerID uuid.UUID
	Days           []time.Weekday
	Modality       Modality
	StartTime      TimeOfDay
	EndTime        TimeOfDay
}

type CreateExceptionRequest struct {
	PractitionerID uuid.UUID
	Status         ExceptionStatus
	Start          time.Time
	End            time.Time
	Description    *string
}

func (s *Service) scopedPractitioner(ctx context.Context, practiceID, practitionerID uuid.UUID) (*practitioner.Practitioner, error) {
	p, err := lookupPractitioner(ctx, s.directory, practitionerID)
	if err != nil {
		return nil, err
	}
	if p.PracticeID != practiceID {
		return nil, &NotFoundError{Resource: "practitioner", ID: practitionerID.String()}
	}
	return p, nil
}

// -- Availability --

// CheckAvailability validates the window and resolves it. Windows must end
// after they start and stay within one local calendar day; an end at the
// following midnight is allowed.
func (s *Service) CheckAvailability(ctx context.Context, practiceID uuid.UUID, req CheckRequest) (*CheckResult, error) {
	if !req.Modality.Valid() {
		return nil, &ValidationError{Field: "modality", Message: "modality must be in_person or online"}
	}
	if req.Start.IsZero() {
		return nil, &ValidationError{Field: "start", Message: "start is required"}
	}
	if !req.End.After(req.Start) {
		return nil, &ValidationError{Field: "end", Message: "end must be after start"}
	}

	p, err := s.scopedPractitioner(ctx, practiceID, req.PractitionerID)
	if err != nil {
		return nil, err
	}

	// CheckFor logs an unloadable zone; both use the same fallback.
	loc, _ := p.Location(s.fallback)
	ls, le := req.Start.In(loc), req.End.In(loc)
	if !sameDay(ls, le) {
		if _, _, endTOD := LocalWindow(loc, req.Start, req.End); endTOD != EndOfDay {
			return nil, &ValidationError{Field: "end", Message: "appointments must start and end on the same local day"}
		}
	}

	return s.resolver.CheckFor(ctx, p, req.Modality, req.Start, req.End)
}

// -- Weekly schedule --

func (s *Service) ListSlots(ctx context.Context, practiceID, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, practitionerID); err != nil {
		return nil, err
	}
	return s.schedule.List(ctx, practitionerID)
}

func (s *Service) BulkSet(ctx context.Context, practiceID uuid.UUID, req BulkSetRequest) ([]*WeeklySlot, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, req.PractitionerID); err != nil {
		return nil, err
	}
	return s.schedule.BulkSet(ctx, practiceID, req.PractitionerID, req.Days, req.Modality, req.StartTime, req.EndTime)
}

func (s *Service) ResetToDefaults(ctx context.Context, practiceID, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, practitionerID); err != nil {
		return nil, err
	}
	return s.schedule.ResetToDefaults(ctx, practiceID, practitionerID)
}

func (s *Service) GetSlot(ctx context.Context, practiceID, id uuid.UUID) (*WeeklySlot, error) {
	slot, err := s.schedule.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.PracticeID != practiceID {
		return nil, &NotFoundError{Resource: "slot", ID: id.String()}
	}
	return slot, nil
}

func (s *Service) UpdateSlot(ctx context.Context, practiceID, id uuid.UUID, patch SlotPatch) (*WeeklySlot, error) {
	if _, err := s.GetSlot(ctx, practiceID, id); err != nil {
		return nil, err
	}
	return s.schedule.UpdateSlot(ctx, id, patch)
}

func (s *Service) DeleteSlot(ctx context.Context, practiceID, id uuid.UUID) error {
	if _, err := s.GetSlot(ctx, practiceID, id); err != nil {
		return err
	}
	return s.schedule.DeleteSlot(ctx, id)
}

// -- Exceptions --

func (s *Service) ListExceptions(ctx context.Context, practiceID, practitionerID uuid.UUID, activeOnly bool, limit, offset int) ([]*Exception, int, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, practitionerID); err != nil {
		return nil, 0, err
	}
	return s.exceptions.ListByPractitioner(ctx, practitionerID, activeOnly, limit, offset)
}

func (s *Service) ListOverlappingExceptions(ctx context.Context, practiceID, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, practitionerID); err != nil {
		return nil, err
	}
	return s.exceptions.ListOverlapping(ctx, practitionerID, start, end)
}

func (s *Service) GetException(ctx context.Context, practiceID, id uuid.UUID) (*Exception, error) {
	exc, err := s.exceptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exc.PracticeID != practiceID {
		return nil, &NotFoundError{Resource: "exception", ID: id.String()}
	}
	return exc, nil
}

func (s *Service) CreateException(ctx context.Context, practiceID uuid.UUID, req CreateExceptionRequest) (*Exception, error) {
	if _, err := s.scopedPractitioner(ctx, practiceID, req.PractitionerID); err != nil {
		return nil, err
	}
	return s.exceptions.Create(ctx, practiceID, req.PractitionerID, req.Status, req.Start, req.End, req.Description)
}

func (s *Service) UpdateException(ctx context.Context, practiceID, id uuid.UUID, patch ExceptionPatch) (*Exception, error) {
	if _, err := s.GetException(ctx, practiceID, id); err != nil {
		return nil, err
	}
	return s.exceptions.Update(ctx, id, patch)
}

func (s *Service) DeleteException(ctx context.Context, practiceID, id uuid.UUID) error {
	if _, err := s.GetException(ctx, practiceID, id); err != nil {
		return err
	}
	return s.exceptions.Delete(ctx, id)
}
