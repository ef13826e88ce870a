package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// memStore is an in-memory stand-in for the scheduling tables. It ignores the
// executor, so rollbacks are asserted through the sqlmock expectations only.
type memStore struct {
	units        []models.ExamUnit
	groups       map[int64]models.ExamGroup
	entries      map[int64]models.UngroupedEntry
	availability []models.TeacherAvailability
	enrollments  []models.Enrollment
	subjects     []models.Subject
	teachers     []models.Teacher

	nextUnitID  int64
	nextGroupID int64
	nextNumber  int64
	failOn      map[string]error
	pairLocks   [][]int64
}

func newMemStore() *memStore {
	return &memStore{
		groups:      make(map[int64]models.ExamGroup),
		entries:     make(map[int64]models.UngroupedEntry),
		nextUnitID:  1,
		nextGroupID: 1,
		nextNumber:  1000,
		failOn:      make(map[string]error),
	}
}

func (m *memStore) stores() ScheduleStores {
	return ScheduleStores{
		Units:        memUnits{m},
		Groups:       memGroups{m},
		Ungrouped:    memUngrouped{m},
		Availability: memAvailability{m},
	}
}

func (m *memStore) catalog() CatalogStores {
	return CatalogStores{
		Enrollments: memEnrollments{m},
		Subjects:    memSubjects{m},
		Teachers:    memTeachers{m},
	}
}

func (m *memStore) addUnit(u models.ExamUnit) {
	u.ID = m.nextUnitID
	m.nextUnitID++
	m.units = append(m.units, u)
}

func (m *memStore) addGroup(area int64, slot *models.Slot, numbers ...int64) int64 {
	g := models.ExamGroup{ID: m.nextGroupID, AreaID: area}
	m.nextGroupID++
	for _, n := range numbers {
		g.Add(n)
	}
	g.SetSlot(slot)
	m.groups[g.ID] = g
	return g.ID
}

func (m *memStore) addEntry(number int64, slot *models.Slot) {
	m.entries[number] = models.NewUngroupedEntry(number, slot)
}

func (m *memStore) numberSlot(number int64) (models.Slot, bool) {
	for _, u := range m.units {
		if u.Number == number {
			return u.Slot()
		}
	}
	return models.Slot{}, false
}

func (m *memStore) groupNumbers(id int64) []int64 {
	g := m.groups[id]
	return g.Numbers()
}

func (m *memStore) groupOf(number int64) (models.ExamGroup, bool) {
	for _, g := range m.groups {
		if g.Has(number) {
			return g, true
		}
	}
	return models.ExamGroup{}, false
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

type memUnits struct{ m *memStore }

func (s memUnits) List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamUnit, error) {
	if err := s.m.fail("units.list"); err != nil {
		return nil, err
	}
	out := append([]models.ExamUnit(nil), s.m.units...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].DNI < out[j].DNI
	})
	return out, nil
}

func (s memUnits) Create(ctx context.Context, exec sqlx.ExtContext, unit *models.ExamUnit) error {
	if err := s.m.fail("units.create"); err != nil {
		return err
	}
	unit.ID = s.m.nextUnitID
	s.m.nextUnitID++
	unit.CreatedAt = time.Now().UTC()
	s.m.units = append(s.m.units, *unit)
	return nil
}

func (s memUnits) NextNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	s.m.nextNumber++
	return s.m.nextNumber, nil
}

func (s memUnits) SetNumberSlot(ctx context.Context, exec sqlx.ExtContext, number int64, slot *models.Slot) error {
	if err := s.m.fail("units.set_slot"); err != nil {
		return err
	}
	for i := range s.m.units {
		if s.m.units[i].Number != number {
			continue
		}
		if slot == nil {
			s.m.units[i].ExamDate, s.m.units[i].Shift = nil, nil
			continue
		}
		s.m.units[i].ExamDate, s.m.units[i].Shift = slot.DatePtr(), slot.ShiftPtr()
	}
	return nil
}

func (s memUnits) ReassignStudent(ctx context.Context, exec sqlx.ExtContext, origin int64, dni string, target int64) (int64, error) {
	var affected int64
	for i := range s.m.units {
		if s.m.units[i].Number == origin && s.m.units[i].DNI == dni {
			s.m.units[i].Number = target
			s.m.units[i].ExamDate, s.m.units[i].Shift = nil, nil
			affected++
		}
	}
	return affected, nil
}

type memGroups struct{ m *memStore }

func (s memGroups) List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamGroup, error) {
	out := make([]models.ExamGroup, 0, len(s.m.groups))
	for _, g := range s.m.groups {
		out = append(out, *g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memGroups) LockAll(ctx context.Context, exec sqlx.ExtContext) error {
	return s.m.fail("groups.lock")
}

func (s memGroups) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ExamGroup, error) {
	if err := s.m.fail("groups.lock"); err != nil {
		return nil, err
	}
	g, ok := s.m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return g.Clone(), nil
}

func (s memGroups) LockByNumber(ctx context.Context, exec sqlx.ExtContext, number int64) (*models.ExamGroup, error) {
	if err := s.m.fail("groups.lock"); err != nil {
		return nil, err
	}
	g, ok := s.m.groupOf(number)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return g.Clone(), nil
}

func (s memGroups) LockForMove(ctx context.Context, exec sqlx.ExtContext, id, number int64) ([]models.ExamGroup, error) {
	if err := s.m.fail("groups.lock"); err != nil {
		return nil, err
	}
	var out []models.ExamGroup
	for _, g := range s.m.groups {
		if g.ID == id || g.Has(number) {
			out = append(out, *g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	ids := make([]int64, len(out))
	for i, g := range out {
		ids[i] = g.ID
	}
	s.m.pairLocks = append(s.m.pairLocks, ids)
	return out, nil
}

func (s memGroups) Create(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error {
	if err := s.m.fail("groups.create"); err != nil {
		return err
	}
	group.ID = s.m.nextGroupID
	s.m.nextGroupID++
	s.m.groups[group.ID] = *group.Clone()
	return nil
}

func (s memGroups) Update(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error {
	s.m.groups[group.ID] = *group.Clone()
	return nil
}

func (s memGroups) Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	delete(s.m.groups, id)
	return nil
}

type memUngrouped struct{ m *memStore }

func (s memUngrouped) List(ctx context.Context, exec sqlx.ExtContext) ([]models.UngroupedEntry, error) {
	out := make([]models.UngroupedEntry, 0, len(s.m.entries))
	for _, e := range s.m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s memUngrouped) Upsert(ctx context.Context, exec sqlx.ExtContext, entry models.UngroupedEntry) error {
	s.m.entries[entry.Number] = entry
	return nil
}

func (s memUngrouped) Delete(ctx context.Context, exec sqlx.ExtContext, number int64) error {
	delete(s.m.entries, number)
	return nil
}

type memAvailability struct{ m *memStore }

func (s memAvailability) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TeacherAvailability, error) {
	return s.m.availability, nil
}

type memEnrollments struct{ m *memStore }

func (s memEnrollments) ListPending(ctx context.Context, exec sqlx.ExtContext) ([]models.Enrollment, error) {
	return s.m.enrollments, nil
}

type memSubjects struct{ m *memStore }

func (s memSubjects) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Subject, error) {
	return s.m.subjects, nil
}

type memTeachers struct{ m *memStore }

func (s memTeachers) ListActive(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error) {
	return s.m.teachers, nil
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// fixture helpers

func day(raw string) time.Time {
	parsed, err := models.ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return parsed
}

func slotAt(raw string, shift models.Shift) models.Slot {
	return models.NewSlot(day(raw), shift)
}

func slotPtr(raw string, shift models.Shift) *models.Slot {
	slot := slotAt(raw, shift)
	return &slot
}

func examUnit(number int64, dni string, subject, area int64, year int, slot *models.Slot, teachers ...int64) models.ExamUnit {
	u := models.ExamUnit{Number: number, DNI: dni, SubjectID: subject, AreaID: area, CourseYear: year}
	if slot != nil {
		u.ExamDate, u.Shift = slot.DatePtr(), slot.ShiftPtr()
	}
	u.SetPanel(teachers)
	return u
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

// assertScheduleInvariants checks the structural rules every operation must leave behind.
func assertScheduleInvariants(t *testing.T, m *memStore) {
	t.Helper()

	seats := make(map[models.Slot]map[string]map[int64]struct{})
	for _, u := range m.units {
		slot, ok := u.Slot()
		if !ok {
			continue
		}
		if seats[slot] == nil {
			seats[slot] = make(map[string]map[int64]struct{})
		}
		if seats[slot][u.DNI] == nil {
			seats[slot][u.DNI] = make(map[int64]struct{})
		}
		seats[slot][u.DNI][u.Number] = struct{}{}
	}
	for slot, students := range seats {
		for dni, numbers := range students {
			require.LessOrEqualf(t, len(numbers), 1, "student %s double-booked at %s", dni, slot)
		}
	}

	placed := make(map[int64]int)
	for _, g := range m.groups {
		require.GreaterOrEqualf(t, g.Size(), 2, "group %d has fewer than two members", g.ID)
		groupSlot, dated := g.Slot()
		for _, n := range g.Numbers() {
			placed[n]++
			numberSlot, numberDated := m.numberSlot(n)
			require.Equalf(t, dated, numberDated, "number %d dating differs from group %d", n, g.ID)
			if dated {
				require.Equalf(t, groupSlot, numberSlot, "number %d slot differs from group %d", n, g.ID)
			}
		}
	}
	for n := range m.entries {
		placed[n]++
	}
	for _, u := range m.units {
		require.Equalf(t, 1, placed[u.Number], "number %d must sit in exactly one group or entry", u.Number)
	}
}
