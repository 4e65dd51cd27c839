package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"servio/internal/domain"
	"servio/internal/schedule"
)

// Mock repositories

type MockAppointmentRepository struct {
	mock.Mock
}

func (m *MockAppointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	args := m.Called(ctx, a)
	if a != nil && args.Error(0) == nil {
		a.ID = 999 // simulate DB insert
	}
	return args.Error(0)
}

func (m *MockAppointmentRepository) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) GetForActorInRange(ctx context.Context, actorID int64, role domain.UserRole, from, to time.Time) ([]domain.Appointment, error) {
	args := m.Called(ctx, actorID, role, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) GetActiveBaseRules(ctx context.Context, actorID int64, role domain.UserRole, to time.Time) ([]domain.Appointment, error) {
	args := m.Called(ctx, actorID, role, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) GetBusyForProvider(ctx context.Context, providerID int64, from, to time.Time) ([]domain.Appointment, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) UpdateStatus(ctx context.Context, id int64, status domain.AppointmentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAppointmentRepository) DeactivateSeries(ctx context.Context, ruleID int64) error {
	args := m.Called(ctx, ruleID)
	return args.Error(0)
}

type MockExceptionRepository struct {
	mock.Mock
}

func (m *MockExceptionRepository) Upsert(ctx context.Context, e *domain.RecurrenceException) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockExceptionRepository) ListByRuleIDs(ctx context.Context, ruleIDs []int64) (map[int64][]domain.RecurrenceException, error) {
	args := m.Called(ctx, ruleIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64][]domain.RecurrenceException), args.Error(1)
}

func (m *MockExceptionRepository) Delete(ctx context.Context, ruleID int64, occurrenceDate time.Time) error {
	args := m.Called(ctx, ruleID, occurrenceDate)
	return args.Error(0)
}

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) GetByID(ctx context.Context, id int64) (*domain.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Listing), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// Fixtures

var testClock = schedule.FixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

func newTestService(appts *MockAppointmentRepository, excs *MockExceptionRepository, listings *MockListingRepository, users *MockUserRepository) *Service {
	expander := schedule.NewExpander(nil, testClock)
	return NewService(appts, excs, listings, users, nil, expander, testClock, nil)
}

func intPtr(v int) *int { return &v }

func baseRuleRow() domain.Appointment {
	return domain.Appointment{
		ID:              7,
		ProviderID:      1,
		ClientID:        2,
		ListingID:       3,
		StartTime:       time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2025, 1, 7, 11, 0, 0, 0, time.UTC),
		Status:          domain.AppointmentConfirmed,
		RecurrenceType:  domain.RecurrenceWeekly,
		DayOfWeek:       intPtr(2),
		AnchorStartDate: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		SeriesActive:    true,
	}
}

func TestBuildCalendarRealWinsOverVirtual(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)

	// A materialized occurrence of rule 7 exists for 2025-03-04.
	materialized := domain.Appointment{
		ID:                  42,
		ProviderID:          1,
		ClientID:            2,
		ListingID:           3,
		StartTime:           time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		EndTime:             time.Date(2025, 3, 4, 11, 0, 0, 0, time.UTC),
		Status:              domain.AppointmentConfirmed,
		RecurrenceType:      domain.RecurrenceWeekly,
		IsRecurringInstance: true,
	}

	appts.On("GetForActorInRange", mock.Anything, int64(2), domain.RoleClient, from, to).
		Return([]domain.Appointment{materialized}, nil)
	appts.On("GetActiveBaseRules", mock.Anything, int64(2), domain.RoleClient, to).
		Return([]domain.Appointment{baseRuleRow()}, nil)
	excs.On("ListByRuleIDs", mock.Anything, []int64{7}).
		Return(map[int64][]domain.RecurrenceException{}, nil)

	got, err := s.BuildCalendar(context.Background(), 2, domain.RoleClient, from, to, false)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, schedule.SourceAppointment, got[0].SourceType)
	assert.Equal(t, int64(42), got[0].AppointmentID)
	assert.Equal(t, schedule.SourceVirtual, got[1].SourceType)
	assert.Equal(t, time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC), got[1].StartTime)
}

func TestBuildCalendarFetchFailurePropagates(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	appts.On("GetForActorInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	got, err := s.BuildCalendar(context.Background(), 2, domain.RoleClient,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), false)

	// A broken calendar must not look like an empty one.
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestBuildCalendarFiltersStatuses(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id int64, day int, status domain.AppointmentStatus) domain.Appointment {
		return domain.Appointment{
			ID:         id,
			ProviderID: 1,
			ClientID:   2,
			ListingID:  3,
			StartTime:  time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
			EndTime:    time.Date(2025, 3, day, 11, 0, 0, 0, time.UTC),
			Status:     status,
		}
	}
	rows := []domain.Appointment{
		mk(1, 3, domain.AppointmentConfirmed),
		mk(2, 4, domain.AppointmentCancelled),
		mk(3, 5, domain.AppointmentRejected),
		mk(4, 6, domain.AppointmentCompleted),
	}

	appts.On("GetForActorInRange", mock.Anything, int64(2), domain.RoleClient, from, to).Return(rows, nil).Twice()
	appts.On("GetActiveBaseRules", mock.Anything, int64(2), domain.RoleClient, to).Return([]domain.Appointment{}, nil).Twice()
	excs.On("ListByRuleIDs", mock.Anything, []int64{}).Return(map[int64][]domain.RecurrenceException{}, nil).Twice()

	got, err := s.BuildCalendar(context.Background(), 2, domain.RoleClient, from, to, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	got, err = s.BuildCalendar(context.Background(), 2, domain.RoleClient, from, to, true)
	require.NoError(t, err)
	assert.Len(t, got, 2) // confirmed + completed, never cancelled/rejected
}

func TestCreateValidation(t *testing.T) {
	s := newTestService(new(MockAppointmentRepository), new(MockExceptionRepository), nil, nil)

	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	_, err := s.Create(context.Background(), CreateAppointmentRequest{
		ProviderID: 1, ClientID: 2, ListingID: 3,
		StartTime: start, EndTime: start.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Start in the past relative to the injected clock.
	_, err = s.Create(context.Background(), CreateAppointmentRequest{
		ProviderID: 1, ClientID: 2, ListingID: 3,
		StartTime: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 12, 1, 11, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRecurringDerivesSelectors(t *testing.T) {
	appts := new(MockAppointmentRepository)
	listings := new(MockListingRepository)
	users := new(MockUserRepository)
	s := newTestService(appts, new(MockExceptionRepository), listings, users)

	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) // a Tuesday

	appts.On("GetBusyForProvider", mock.Anything, int64(1), start, start.Add(time.Hour)).
		Return([]domain.Appointment{}, nil)
	appts.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("GetByID", mock.Anything, int64(2)).
		Return(&domain.User{ID: 2, Name: "Dana", Address: "12 Elm St"}, nil)
	listings.On("GetByID", mock.Anything, int64(3)).
		Return(&domain.Listing{ID: 3, Title: "Deep clean"}, nil)

	a, err := s.Create(context.Background(), CreateAppointmentRequest{
		ProviderID: 1, ClientID: 2, ListingID: 3,
		StartTime: start, EndTime: start.Add(time.Hour),
		RecurrenceType: "weekly",
	})

	require.NoError(t, err)
	require.NotNil(t, a.DayOfWeek)
	assert.Equal(t, 2, *a.DayOfWeek)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), a.AnchorStartDate)
	assert.True(t, a.SeriesActive)
	assert.Equal(t, domain.AppointmentPending, a.Status)
	assert.Equal(t, "Dana", a.ClientName)
	assert.Equal(t, "Deep clean", a.ServiceName)
	assert.Equal(t, "12 Elm St", a.Address)
}

func TestCreateNotAvailable(t *testing.T) {
	appts := new(MockAppointmentRepository)
	s := newTestService(appts, new(MockExceptionRepository), nil, nil)

	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	appts.On("GetBusyForProvider", mock.Anything, int64(1), start, start.Add(time.Hour)).
		Return([]domain.Appointment{{ID: 5}}, nil)

	_, err := s.Create(context.Background(), CreateAppointmentRequest{
		ProviderID: 1, ClientID: 2, ListingID: 3,
		StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestCancelOccurrence(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)

	// 2025-03-05 is a Wednesday, not an occurrence of the Tuesday rule.
	_, err := s.CancelOccurrence(context.Background(), 7, 2, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "")
	assert.ErrorIs(t, err, ErrNotAnOccurrence)

	excs.On("Upsert", mock.Anything, mock.MatchedBy(func(e *domain.RecurrenceException) bool {
		return e.RuleID == 7 &&
			e.ActionType == domain.ExceptionCancelled &&
			e.OccurrenceDate.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	})).Return(nil)

	e, err := s.CancelOccurrence(context.Background(), 7, 2, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "sick day")
	require.NoError(t, err)
	assert.Equal(t, domain.ExceptionCancelled, e.ActionType)
}

func TestRestoreOccurrenceDeletesException(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	excs.On("Delete", mock.Anything, int64(7), day).Return(nil)

	require.NoError(t, s.RestoreOccurrence(context.Background(), 7, 2, day))
	excs.AssertExpectations(t)
}

func TestRestoreOccurrenceWithoutException(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	excs.On("Delete", mock.Anything, int64(7), day).Return(gorm.ErrRecordNotFound)

	err := s.RestoreOccurrence(context.Background(), 7, 2, day)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOccurrenceForbiddenForStranger(t *testing.T) {
	appts := new(MockAppointmentRepository)
	s := newTestService(appts, new(MockExceptionRepository), nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)

	_, err := s.CancelOccurrence(context.Background(), 7, 555, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelOccurrenceRejectsNonRecurring(t *testing.T) {
	appts := new(MockAppointmentRepository)
	s := newTestService(appts, new(MockExceptionRepository), nil, nil)

	oneOff := domain.Appointment{ID: 9, ProviderID: 1, ClientID: 2, RecurrenceType: domain.RecurrenceOnce}
	appts.On("GetByID", mock.Anything, int64(9)).Return(&oneOff, nil)

	_, err := s.CancelOccurrence(context.Background(), 9, 2, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "")
	assert.ErrorIs(t, err, ErrNotRecurring)
}

func TestRescheduleOccurrence(t *testing.T) {
	appts := new(MockAppointmentRepository)
	excs := new(MockExceptionRepository)
	s := newTestService(appts, excs, nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)

	newStart := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)
	newEnd := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)

	excs.On("Upsert", mock.Anything, mock.MatchedBy(func(e *domain.RecurrenceException) bool {
		return e.ActionType == domain.ExceptionRescheduled &&
			e.NewStartTime != nil && e.NewStartTime.Equal(newStart) &&
			e.NewEndTime != nil && e.NewEndTime.Equal(newEnd)
	})).Return(nil)

	e, err := s.RescheduleOccurrence(context.Background(), 7, 2, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), newStart, newEnd, "")
	require.NoError(t, err)
	assert.True(t, e.Valid())
}

func TestCancelSeries(t *testing.T) {
	appts := new(MockAppointmentRepository)
	s := newTestService(appts, new(MockExceptionRepository), nil, nil)

	rule := baseRuleRow()
	appts.On("GetByID", mock.Anything, int64(7)).Return(&rule, nil)
	appts.On("DeactivateSeries", mock.Anything, int64(7)).Return(nil)
	appts.On("UpdateStatus", mock.Anything, int64(7), domain.AppointmentCancelled).Return(nil)

	err := s.CancelSeries(context.Background(), 7, 1)
	require.NoError(t, err)
	appts.AssertCalled(t, "DeactivateSeries", mock.Anything, int64(7))
}

func TestUpdateStatusTransitions(t *testing.T) {
	appts := new(MockAppointmentRepository)
	s := newTestService(appts, new(MockExceptionRepository), nil, nil)

	pending := domain.Appointment{ID: 5, ProviderID: 1, ClientID: 2, Status: domain.AppointmentPending}
	appts.On("GetByID", mock.Anything, int64(5)).Return(&pending, nil)
	appts.On("UpdateStatus", mock.Anything, int64(5), domain.AppointmentConfirmed).Return(nil)

	// Client may not confirm.
	_, err := s.UpdateStatus(context.Background(), 5, 2, domain.RoleClient, domain.AppointmentConfirmed)
	assert.ErrorIs(t, err, ErrForbidden)

	// Provider may.
	_, err = s.UpdateStatus(context.Background(), 5, 1, domain.RoleProvider, domain.AppointmentConfirmed)
	require.NoError(t, err)
}
