package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/domain/practitioner"
)

// Resolver decides whether a practitioner can take an appointment of a given
// modality in a given window. It only reads.
type Resolver struct {
	directory  practitioner.Directory
	schedule   ScheduleRepository
	exceptions ExceptionRepository
	fallback   *time.Location
}

// NewResolver builds a Resolver. fallback is the zone used for practices
// without a time zone of their own; nil means UTC.
func NewResolver(dir practitioner.Directory, sched ScheduleRepository, exc ExceptionRepository, fallback *time.Location) *Resolver {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Resolver{directory: dir, schedule: sched, exceptions: exc, fallback: fallback}
}

func lookupPractitioner(ctx context.Context, dir practitioner.Directory, id uuid.UUID) (*practitioner.Practitioner, error) {
	p, err := dir.Get(ctx, id)
	if errors.Is(err, practitioner.ErrNotFound) {
		return nil, &NotFoundError{Resource: "practitioner", ID: id.String()}
	}
	if err != nil {
		return nil, storageErr("get practitioner", err)
	}
	return p, nil
}

// Check looks the practitioner up and evaluates the window.
func (r *Resolver) Check(ctx context.Context, practitionerID uuid.UUID, modality Modality, start, end time.Time) (*CheckResult, error) {
	if !modality.Valid() {
		return nil, &ValidationError{Field: "modality", Message: fmt.Sprintf("invalid modality %q", modality)}
	}
	p, err := lookupPractitioner(ctx, r.directory, practitionerID)
	if err != nil {
		return nil, err
	}
	return r.CheckFor(ctx, p, modality, start, end)
}

// LocalWindow converts a window into the practice's wall clock: the weekday of
// start and the times of day of start and end. An end falling exactly on the
// following midnight is reported as EndOfDay.
func LocalWindow(loc *time.Location, start, end time.Time) (time.Weekday, TimeOfDay, TimeOfDay) {
	ls, le := start.In(loc), end.In(loc)
	endTOD := TimeOfDayOf(le)
	if endTOD == 0 && sameDay(le, ls.AddDate(0, 0, 1)) {
		endTOD = EndOfDay
	}
	return ls.Weekday(), TimeOfDayOf(ls), endTOD
}

// practiceLocation is p's time zone, or fallback with a warning when the
// stored zone does not load.
func practiceLocation(ctx context.Context, p *practitioner.Practitioner, fallback *time.Location) *time.Location {
	loc, err := p.Location(fallback)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("practitioner_id", p.ID.String()).
			Str("fallback", fallback.String()).
			Msg("practice time zone unavailable, using fallback")
	}
	return loc
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// byPrecedence orders containing exceptions: off first, then the most
// recently created.
func byPrecedence(excs []*Exception) {
	sort.SliceStable(excs, func(i, j int) bool {
		oi, oj := excs[i].Status == StatusOff, excs[j].Status == StatusOff
		if oi != oj {
			return oi
		}
		return excs[i].CreatedAt.After(excs[j].CreatedAt)
	})
}

// CheckFor evaluates the window for an already resolved practitioner:
// blocking exceptions that fully contain the window first, then the weekly slot
// for the local weekday and modality.
func (r *Resolver) CheckFor(ctx context.Context, p *practitioner.Practitioner, modality Modality, start, end time.Time) (*CheckResult, error) {
	if !modality.Valid() {
		return nil, &ValidationError{Field: "modality", Message: fmt.Sprintf("invalid modality %q", modality)}
	}
	log := zerolog.Ctx(ctx).With().
		Str("practitioner_id", p.ID.String()).
		Str("modality", string(modality)).
		Time("start", start).
		Time("end", end).
		Logger()

	if !end.After(start) {
		log.Debug().Str("reason", ReasonOutsideHours).Msg("empty window")
		return &CheckResult{Available: false, Reason: ReasonOutsideHours}, nil
	}

	containing, err := r.exceptions.ListContaining(ctx, p.ID, start, end)
	if err != nil {
		return nil, storageErr("list containing exceptions", err)
	}
	byPrecedence(containing)
	for _, exc := range containing {
		if exc.Status.Blocks(modality) {
			log.Debug().
				Str("exception_id", exc.ID.String()).
				Str("status", string(exc.Status)).
				Msg("blocked by exception")
			return &CheckResult{Available: false, Reason: exc.Reason()}, nil
		}
	}

	day, startTOD, endTOD := LocalWindow(practiceLocation(ctx, p, r.fallback), start, end)
	slot, err := r.schedule.Find(ctx, p.ID, day, modality)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storageErr("find slot", err)
	}
	if slot != nil && slot.Covers(startTOD, endTOD) {
		log.Debug().Str("slot_id", slot.ID.String()).Msg("available")
		return &CheckResult{Available: true}, nil
	}

	result := &CheckResult{Available: false, Reason: ReasonOutsideHours}
	overlapping, err := r.exceptions.ListOverlapping(ctx, p.ID, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("overlapping exception lookup failed")
	} else if len(overlapping) > 0 {
		result.Conflicts = overlapping
	}
	log.Debug().
		Stringer("weekday", day).
		Int("overlapping", len(overlapping)).
		Str("reason", result.Reason).
		Msg("outside weekly schedule")
	return result, nil
}
