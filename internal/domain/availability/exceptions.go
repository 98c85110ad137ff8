package availability

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExceptionEditor is the only writer of availability exceptions. Overlapping
// exceptions are allowed; the resolver decides precedence.
type ExceptionEditor struct {
	repo ExceptionRepository
}

func NewExceptionEditor(repo ExceptionRepository) *ExceptionEditor {
	return &ExceptionEditor{repo: repo}
}

func normalizeDescription(d *string) *string {
	if d == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (e *ExceptionEditor) Create(ctx context.Context, practiceID, practitionerID uuid.UUID, status ExceptionStatus, start, end time.Time, description *string) (*Exception, error) {
	exc := &Exception{
		PracticeID:     practiceID,
		PractitionerID: practitionerID,
		Status:         status,
		StartsAt:       start,
		EndsAt:         end,
		Description:    normalizeDescription(description),
		Active:         true,
	}
	if err := exc.Validate(); err != nil {
		return nil, err
	}
	if err := e.repo.Create(ctx, exc); err != nil {
		return nil, storageErr("create exception", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("exception_id", exc.ID.String()).
		Str("practitioner_id", practitionerID.String()).
		Str("status", string(status)).
		Msg("availability exception created")
	return exc, nil
}

func (e *ExceptionEditor) Get(ctx context.Context, id uuid.UUID) (*Exception, error) {
	exc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get exception", err)
	}
	return exc, nil
}

// Update merges patch into the stored exception and re-validates the result.
func (e *ExceptionEditor) Update(ctx context.Context, id uuid.UUID, patch ExceptionPatch) (*Exception, error) {
	exc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get exception", err)
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	patch.apply(exc)
	if err := exc.Validate(); err != nil {
		return nil, err
	}
	if err := e.repo.Update(ctx, exc); err != nil {
		return nil, storageErr("update exception", err)
	}
	return exc, nil
}

func (e *ExceptionEditor) Delete(ctx context.Context, id uuid.UUID) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return storageErr("delete exception", err)
	}
	return nil
}

func (e *ExceptionEditor) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, activeOnly bool, limit, offset int) ([]*Exception, int, error) {
	items, total, err := e.repo.ListByPractitioner(ctx, practitionerID, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list exceptions", err)
	}
	return items, total, nil
}

// ListOverlapping returns active exceptions sharing any time with [start, end).
func (e *ExceptionEditor) ListOverlapping(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	if start.IsZero() {
		return nil, &ValidationError{Field: "start", Message: "start is required"}
	}
	if !end.After(start) {
		return nil, &ValidationError{Field: "end", Message: "end must be after start"}
	}
	items, err := e.repo.ListOverlapping(ctx, practitionerID, start, end)
	if err != nil {
		return nil, storageErr("list overlapping exceptions", err)
	}
	return items, nil
}
