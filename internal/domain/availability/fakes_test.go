package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/praxis/praxis/internal/domain/practitioner"
)

// -- Directory --

type mockDirectory struct {
	items map[uuid.UUID]*practitioner.Practitioner
	err   error
}

func newMockDirectory(ps ...*practitioner.Practitioner) *mockDirectory {
	d := &mockDirectory{items: make(map[uuid.UUID]*practitioner.Practitioner)}
	for _, p := range ps {
		d.items[p.ID] = p
	}
	return d
}

func (d *mockDirectory) Get(_ context.Context, id uuid.UUID) (*practitioner.Practitioner, error) {
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.items[id]
	if !ok {
		return nil, practitioner.ErrNotFound
	}
	return p, nil
}

// -- Schedule --

type slotKey struct {
	practitionerID uuid.UUID
	day            time.Weekday
	modality       Modality
}

func keyOf(s *WeeklySlot) slotKey { return slotKey{s.PractitionerID, s.DayOfWeek, s.Modality} }

type mockScheduleRepo struct {
	items map[uuid.UUID]*WeeklySlot
	// failUpsertAt makes the n-th Upsert call (1-based) fail; 0 disables.
	failUpsertAt int
	upserts      int
	err          error
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{items: make(map[uuid.UUID]*WeeklySlot)}
}

func (m *mockScheduleRepo) snapshot() map[uuid.UUID]WeeklySlot {
	out := make(map[uuid.UUID]WeeklySlot, len(m.items))
	for id, s := range m.items {
		out[id] = *s
	}
	return out
}

func (m *mockScheduleRepo) restore(snap map[uuid.UUID]WeeklySlot) {
	m.items = make(map[uuid.UUID]*WeeklySlot, len(snap))
	for id, s := range snap {
		c := s
		m.items[id] = &c
	}
}

func (m *mockScheduleRepo) Get(_ context.Context, id uuid.UUID) (*WeeklySlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.items[id]
	if !ok {
		return nil, &NotFoundError{Resource: "slot", ID: id.String()}
	}
	c := *s
	return &c, nil
}

func (m *mockScheduleRepo) Find(_ context.Context, practitionerID uuid.UUID, day time.Weekday, modality Modality) (*WeeklySlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.items {
		if keyOf(s) == (slotKey{practitionerID, day, modality}) {
			c := *s
			return &c, nil
		}
	}
	return nil, &NotFoundError{Resource: "slot"}
}

func (m *mockScheduleRepo) ListByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]*WeeklySlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*WeeklySlot
	for _, s := range m.items {
		if s.PractitionerID == practitionerID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *mockScheduleRepo) Upsert(_ context.Context, s *WeeklySlot) error {
	m.upserts++
	if m.failUpsertAt > 0 && m.upserts == m.failUpsertAt {
		return errors.New("connection reset")
	}
	now := time.Now()
	for _, existing := range m.items {
		if keyOf(existing) == keyOf(s) {
			existing.StartTime, existing.EndTime, existing.Active = s.StartTime, s.EndTime, s.Active
			existing.UpdatedAt = now
			s.ID, s.CreatedAt, s.UpdatedAt = existing.ID, existing.CreatedAt, now
			return nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt, s.UpdatedAt = now, now
	c := *s
	m.items[s.ID] = &c
	return nil
}

func (m *mockScheduleRepo) Update(_ context.Context, s *WeeklySlot) error {
	if _, ok := m.items[s.ID]; !ok {
		return &NotFoundError{Resource: "slot", ID: s.ID.String()}
	}
	for id, existing := range m.items {
		if id != s.ID && keyOf(existing) == keyOf(s) {
			return &ConflictError{Message: "slot already exists (weekly_availability_key)"}
		}
	}
	s.UpdatedAt = time.Now()
	c := *s
	m.items[s.ID] = &c
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return &NotFoundError{Resource: "slot", ID: id.String()}
	}
	delete(m.items, id)
	return nil
}

func (m *mockScheduleRepo) DeleteByPractitioner(_ context.Context, practitionerID uuid.UUID) (int64, error) {
	var n int64
	for id, s := range m.items {
		if s.PractitionerID == practitionerID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// mockTx rolls the schedule repo back when fn fails.
type mockTx struct {
	repo  *mockScheduleRepo
	calls int
}

func (t *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.repo.snapshot()
	if err := fn(ctx); err != nil {
		t.repo.restore(snap)
		return err
	}
	return nil
}

// -- Exceptions --

type mockExceptionRepo struct {
	items map[uuid.UUID]*Exception
	clock time.Time
	err   error
	// overlapErr only fails ListOverlapping.
	overlapErr error
}

func newMockExceptionRepo() *mockExceptionRepo {
	return &mockExceptionRepo{
		items: make(map[uuid.UUID]*Exception),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockExceptionRepo) Create(_ context.Context, e *Exception) error {
	if m.err != nil {
		return m.err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	// Strictly increasing creation times keep precedence deterministic.
	m.clock = m.clock.Add(time.Second)
	e.CreatedAt, e.UpdatedAt = m.clock, m.clock
	c := *e
	m.items[e.ID] = &c
	return nil
}

func (m *mockExceptionRepo) Get(_ context.Context, id uuid.UUID) (*Exception, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.items[id]
	if !ok {
		return nil, &NotFoundError{Resource: "exception", ID: id.String()}
	}
	c := *e
	return &c, nil
}

func (m *mockExceptionRepo) Update(_ context.Context, e *Exception) error {
	if _, ok := m.items[e.ID]; !ok {
		return &NotFoundError{Resource: "exception", ID: e.ID.String()}
	}
	c := *e
	m.items[e.ID] = &c
	return nil
}

func (m *mockExceptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return &NotFoundError{Resource: "exception", ID: id.String()}
	}
	delete(m.items, id)
	return nil
}

func (m *mockExceptionRepo) filter(keep func(e *Exception) bool) []*Exception {
	var out []*Exception
	for _, e := range m.items {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockExceptionRepo) ListByPractitioner(_ context.Context, practitionerID uuid.UUID, activeOnly bool, limit, offset int) ([]*Exception, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	all := m.filter(func(e *Exception) bool {
		return e.PractitionerID == practitionerID && (!activeOnly || e.Active)
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockExceptionRepo) ListContaining(_ context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.filter(func(e *Exception) bool {
		return e.PractitionerID == practitionerID && e.Active && e.Contains(start, end)
	}), nil
}

func (m *mockExceptionRepo) ListOverlapping(_ context.Context, practitionerID uuid.UUID, start, end time.Time) ([]*Exception, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.overlapErr != nil {
		return nil, m.overlapErr
	}
	return m.filter(func(e *Exception) bool {
		return e.PractitionerID == practitionerID && e.Active && e.Overlaps(start, end)
	}), nil
}

// -- Fixture --

var (
	testPracticeID  = uuid.MustParse("9c3e1d2a-0000-4000-8000-000000000001")
	otherPracticeID = uuid.MustParse("9c3e1d2a-0000-4000-8000-000000000002")
)

type fixture struct {
	practitioner *practitioner.Practitioner
	dir          *mockDirectory
	slots        *mockScheduleRepo
	excs         *mockExceptionRepo
	tx           *mockTx
	resolver     *Resolver
	schedule     *ScheduleEditor
	exceptions   *ExceptionEditor
	svc          *Service
}

func newFixture() *fixture {
	p := &practitioner.Practitioner{
		ID:          uuid.New(),
		PracticeID:  testPracticeID,
		DisplayName: "Dr. Test",
		Active:      true,
	}
	f := &fixture{
		practitioner: p,
		dir:          newMockDirectory(p),
		slots:        newMockScheduleRepo(),
		excs:         newMockExceptionRepo(),
	}
	f.tx = &mockTx{repo: f.slots}
	f.resolver = NewResolver(f.dir, f.slots, f.excs, time.UTC)
	f.schedule = NewScheduleEditor(f.slots, f.tx)
	f.exceptions = NewExceptionEditor(f.excs)
	f.svc = NewService(f.dir, f.slots, f.excs, f.tx, time.UTC)
	return f
}

// at returns 2026-03-<day> hh:mm UTC. March 2 2026 is a Monday.
func at(day, hh, mm int) time.Time {
	return time.Date(2026, time.March, day, hh, mm, 0, 0, time.UTC)
}

const (
	monday    = 2
	wednesday = 4
	thursday  = 5
	saturday  = 7
	sunday    = 8
)

func strPtr(s string) *string { return &s }

func describe(r *CheckResult) string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("{available:%v reason:%q conflicts:%d}", r.Available, r.Reason, len(r.Conflicts))
}
