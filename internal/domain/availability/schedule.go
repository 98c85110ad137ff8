package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default weekly schedule applied by ResetToDefaults.
var (
	DefaultDays       = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	DefaultModalities = []Modality{ModalityInPerson, ModalityOnline}
	DefaultStart      = ClockTime(9, 0)
	DefaultEnd        = ClockTime(17, 0)
)

// ScheduleEditor is the only writer of weekly slots.
type ScheduleEditor struct {
	repo ScheduleRepository
	tx   TxRunner
}

func NewScheduleEditor(repo ScheduleRepository, tx TxRunner) *ScheduleEditor {
	return &ScheduleEditor{repo: repo, tx: tx}
}

func (e *ScheduleEditor) List(ctx context.Context, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	slots, err := e.repo.ListByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, storageErr("list slots", err)
	}
	sortSlots(slots)
	return slots, nil
}

func (e *ScheduleEditor) Get(ctx context.Context, id uuid.UUID) (*WeeklySlot, error) {
	s, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	return s, nil
}

func sortSlots(slots []*WeeklySlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return slots[i].Modality < slots[j].Modality
	})
}

// BulkSet applies one time range to every day in days for a modality. All
// slots are written in one transaction; on any failure none are.
func (e *ScheduleEditor) BulkSet(ctx context.Context, practiceID, practitionerID uuid.UUID, days []time.Weekday, modality Modality, start, end TimeOfDay) ([]*WeeklySlot, error) {
	if len(days) == 0 {
		return nil, &ValidationError{Field: "days", Message: "at least one day is required"}
	}
	seen := make(map[time.Weekday]bool, len(days))
	unique := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if !validDay(d) {
			return nil, &ValidationError{Field: "days", Message: fmt.Sprintf("day_of_week must be 0-6, got %d", d)}
		}
		if !seen[d] {
			seen[d] = true
			unique = append(unique, d)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	if !modality.Valid() {
		return nil, &ValidationError{Field: "modality", Message: fmt.Sprintf("invalid modality %q", modality)}
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	slots := make([]*WeeklySlot, 0, len(unique))
	for _, d := range unique {
		slots = append(slots, &WeeklySlot{
			PracticeID:     practiceID,
			PractitionerID: practitionerID,
			DayOfWeek:      d,
			Modality:       modality,
			StartTime:      start,
			EndTime:        end,
			Active:         true,
		})
	}

	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, s := range slots {
			if err := e.repo.Upsert(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("bulk set slots", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("practitioner_id", practitionerID.String()).
		Str("modality", string(modality)).
		Stringer("start", start).
		Stringer("end", end).
		Int("slots", len(slots)).
		Msg("weekly schedule bulk set")
	return slots, nil
}

// ResetToDefaults replaces the practitioner's whole schedule with Mon-Fri
// 09:00-17:00 for both modalities.
func (e *ScheduleEditor) ResetToDefaults(ctx context.Context, practiceID, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	var slots []*WeeklySlot
	var removed int64
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		slots = slots[:0]
		n, err := e.repo.DeleteByPractitioner(ctx, practitionerID)
		if err != nil {
			return err
		}
		removed = n
		for _, d := range DefaultDays {
			for _, m := range DefaultModalities {
				s := &WeeklySlot{
					PracticeID:     practiceID,
					PractitionerID: practitionerID,
					DayOfWeek:      d,
					Modality:       m,
					StartTime:      DefaultStart,
					EndTime:        DefaultEnd,
					Active:         true,
				}
				if err := e.repo.Upsert(ctx, s); err != nil {
					return err
				}
				slots = append(slots, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("reset slots", err)
	}

	sortSlots(slots)
	zerolog.Ctx(ctx).Info().
		Str("practitioner_id", practitionerID.String()).
		Int64("removed", removed).
		Int("slots", len(slots)).
		Msg("weekly schedule reset to defaults")
	return slots, nil
}

func (e *ScheduleEditor) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return storageErr("delete slot", err)
	}
	return nil
}

// UpdateSlot merges patch into the stored slot and re-validates the result.
// Moving a slot onto a key that is already taken is a ConflictError.
func (e *ScheduleEditor) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*WeeklySlot, error) {
	s, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	patch.apply(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := e.repo.Update(ctx, s); err != nil {
		return nil, storageErr("update slot", err)
	}
	return s, nil
}
