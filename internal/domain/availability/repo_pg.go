package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis/praxis/internal/platform/db"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// mapPGError translates driver errors into the package's error taxonomy.
func mapPGError(op, resource string, id fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		ident := ""
		if id != nil {
			ident = id.String()
		}
		return &NotFoundError{Resource: resource, ID: ident}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &ConflictError{Message: fmt.Sprintf("%s already exists (%s)", resource, pgErr.ConstraintName)}
		case pgCheckViolation:
			return &ValidationError{Message: fmt.Sprintf("%s violates %s", resource, pgErr.ConstraintName)}
		}
	}
	return &StorageError{Op: op, Err: err}
}

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Second/time.Microsecond), Valid: true}
}

func timeOfDayFromPG(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Second/time.Microsecond))
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

const slotCols = `id, practice_id, practitioner_id, day_of_week, modality,
	start_time, end_time, is_active, created_at, updated_at`

func scanSlot(row pgx.Row) (*WeeklySlot, error) {
	var s WeeklySlot
	var day int16
	var start, end pgtype.Time
	if err := row.Scan(&s.ID, &s.PracticeID, &s.PractitionerID, &day, &s.Modality,
		&start, &end, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.DayOfWeek = time.Weekday(day)
	s.StartTime = timeOfDayFromPG(start)
	s.EndTime = timeOfDayFromPG(end)
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]*WeeklySlot, error) {
	defer rows.Close()
	var items []*WeeklySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *scheduleRepoPG) Get(ctx context.Context, id uuid.UUID) (*WeeklySlot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+slotCols+` FROM weekly_availability WHERE id = $1`, id))
	if err != nil {
		return nil, mapPGError("get slot", "slot", id, err)
	}
	return s, nil
}

func (r *scheduleRepoPG) Find(ctx context.Context, practitionerID uuid.UUID, day time.Weekday, modality Modality) (*WeeklySlot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+slotCols+` FROM weekly_availability
		WHERE practitioner_id = $1 AND day_of_week = $2 AND modality = $3`,
		practitionerID, int16(day), modality))
	if err != nil {
		return nil, mapPGError("find slot", "slot", nil, err)
	}
	return s, nil
}

func (r *scheduleRepoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+slotCols+` FROM weekly_availability
		WHERE practitioner_id = $1
		ORDER BY day_of_week, modality`, practitionerID)
	if err != nil {
		return nil, mapPGError("list slots", "slot", nil, err)
	}
	items, err := collectSlots(rows)
	if err != nil {
		return nil, mapPGError("list slots", "slot", nil, err)
	}
	return items, nil
}

func (r *scheduleRepoPG) Upsert(ctx context.Context, s *WeeklySlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO weekly_availability (id, practice_id, practitioner_id, day_of_week, modality,
			start_time, end_time, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (practitioner_id, day_of_week, modality) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		s.ID, s.PracticeID, s.PractitionerID, int16(s.DayOfWeek), s.Modality,
		pgTime(s.StartTime), pgTime(s.EndTime), s.Active).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapPGError("upsert slot", "slot", s.ID, err)
}

func (r *scheduleRepoPG) Update(ctx context.Context, s *WeeklySlot) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE weekly_availability SET day_of_week = $2, modality = $3, start_time = $4,
			end_time = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, int16(s.DayOfWeek), s.Modality, pgTime(s.StartTime), pgTime(s.EndTime), s.Active).
		Scan(&s.UpdatedAt)
	return mapPGError("update slot", "slot", s.ID, err)
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM weekly_availability WHERE id = $1`, id)
	if err != nil {
		return mapPGError("delete slot", "slot", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "slot", ID: id.String()}
	}
	return nil
}

func (r *scheduleRepoPG) DeleteByPractitioner(ctx context.Context, practitionerID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM weekly_availability WHERE practitioner_id = $1`, practitionerID)
	if err != nil {
		return 0, mapPGError("delete slots", "slot", nil, err)
	}
	return tag.RowsAffected(), nil
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ pool *pgxpool.Pool }

func NewExceptionRepoPG(pool *pgxpool.Pool) ExceptionRepository { return &exceptionRepoPG{pool: pool} }

const excCols = `id, practice_id, practitioner_id, status, starts_at, ends_at,
	description, is_active, created_at, updated_at`

func scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	if err := row.Scan(&e.ID, &e.PracticeID, &e.PractitionerID, &e.Status, &e.StartsAt, &e.EndsAt,
		&e.Description, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *exceptionRepoPG) list(ctx context.Context, op, query string, args ...interface{}) ([]*Exception, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGError(op, "exception", nil, err)
	}
	defer rows.Close()
	var items []*Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, mapPGError(op, "exception", nil, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGError(op, "exception", nil, err)
	}
	return items, nil
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *Exception) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_exceptions (id, practice_id, practitioner_id, status,
			starts_at, ends_at, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		e.ID, e.PracticeID, e.PractitionerID, e.Status, e.StartsAt, e.EndsAt, e.Description, e.Active).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	return mapPGError("create exception", "exception", e.ID, err)
}

func (r *exceptionRepoPG) Get(ctx context.Context, id uuid.UUID) (*Exception, error) {
	e, err := scanException(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+excCols+` FROM availability_exceptions WHERE id = $1`, id))
	if err != nil {
		return nil, mapPGError("get exception", "exception", id, err)
	}
	return e, nil
}

func (r *exceptionRepoPG) Update(ctx context.Context, e *Exception) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE availability_exceptions SET status = $2, starts_at = $3, ends_at = $4,
			description = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.Status, e.StartsAt, e.EndsAt, e.Description, e.Active).
		Scan(&e.UpdatedAt)
	return mapPGError("update exception", "exception", e.ID, err)
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return mapPGError("delete exception", "exception", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "exception", ID: id.String()}
	}
	return nil
}

func (r *exceptionRepoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, activeOnly bool, limit, offset int) ([]*Exception, int, error) {
	var total int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM availability_exceptions
		WHERE practitioner_id = $1 AND (NOT $2 OR is_active)`, practitionerID, activeOnly).Scan(&total)
	if err != nil {
		return nil, 0, mapPGError("count exceptions", "exception", nil, err)
	}
	items, err := r.list(ctx, "list exceptions", `
		SELECT `+excCols+` FROM availability_exceptions
		WHERE practitioner_id = $1 AND (NOT $2 OR is_active)
		ORDER BY starts_at, created_at
		LIMIT $3 OFFSET $4`, practitionerID, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *exceptionRepoPG) ListContaining(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	return r.list(ctx, "list containing exceptions", `
		SELECT `+excCols+` FROM availability_exceptions
		WHERE practitioner_id = $1 AND is_active
			AND starts_at <= $2 AND ends_at >= $3`, practitionerID, start, end)
}

func (r *exceptionRepoPG) ListOverlapping(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	return r.list(ctx, "list overlapping exceptions", `
		SELECT `+excCols+` FROM availability_exceptions
		WHERE practitioner_id = $1 AND is_active
			AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at, created_at`, practitionerID, start, end)
}

// pgTxRunner opens transactions on the request's tenant connection.
type pgTxRunner struct{ pool *pgxpool.Pool }

func NewTxRunnerPG(pool *pgxpool.Pool) TxRunner { return &pgTxRunner{pool: pool} }

func (t *pgTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, t.pool, fn)
}
