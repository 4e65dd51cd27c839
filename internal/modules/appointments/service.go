package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servio/internal/domain"
	"servio/internal/schedule"
)

// Service owns the appointment flows and the unified calendar view that
// merges persisted rows with virtually expanded recurring instances.
type Service struct {
	appts      AppointmentRepository
	exceptions ExceptionRepository
	listings   ListingRepository
	users      UserRepository
	notifier   EventNotifier
	expander   *schedule.Expander
	clock      schedule.Clock
	log        *zap.Logger
}

func NewService(
	appts AppointmentRepository,
	exceptions ExceptionRepository,
	listings ListingRepository,
	users UserRepository,
	notifier EventNotifier,
	expander *schedule.Expander,
	clock schedule.Clock,
	log *zap.Logger,
) *Service {
	if clock == nil {
		clock = schedule.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		appts:      appts,
		exceptions: exceptions,
		listings:   listings,
		users:      users,
		notifier:   notifier,
		expander:   expander,
		clock:      clock,
		log:        log,
	}
}

// BuildCalendar produces the canonical chronological appointment list for an
// actor: persisted rows merged with virtual instances, real rows winning over
// virtual duplicates. A fetch failure aborts the whole view; an empty
// calendar and a broken one must not look alike.
func (s *Service) BuildCalendar(ctx context.Context, actorID int64, role domain.UserRole, from, to time.Time, includeCompleted bool) ([]schedule.Instance, error) {
	rows, err := s.appts.GetForActorInRange(ctx, actorID, role, from, to)
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	// Base rows bounded only above, so series that began before the window
	// still contribute occurrences inside it.
	baseRows, err := s.appts.GetActiveBaseRules(ctx, actorID, role, to)
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	var real []schedule.Instance
	excludeKeys := make(map[string]struct{})
	for _, a := range rows {
		if a.IsBaseRule() {
			continue // represented by its virtual expansion
		}
		real = append(real, schedule.FromAppointment(a))
		excludeKeys[schedule.ConflictKey(a.ProviderID, a.StartTime, a.EndTime)] = struct{}{}
	}

	rules := make([]schedule.Rule, 0, len(baseRows))
	ruleIDs := make([]int64, 0, len(baseRows))
	for _, a := range baseRows {
		rules = append(rules, schedule.RuleFromAppointment(a))
		ruleIDs = append(ruleIDs, a.ID)
	}

	exceptions, err := s.exceptions.ListByRuleIDs(ctx, ruleIDs)
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	virtual := s.expander.ExpandAll(rules, exceptions, from, to, schedule.ExpandOptions{
		ExcludeKeys: excludeKeys,
	})

	merged := schedule.Deduplicate(real, virtual)

	out := make([]schedule.Instance, 0, len(merged))
	for _, inst := range merged {
		switch inst.Status {
		case domain.AppointmentCancelled, domain.AppointmentRejected:
			continue
		case domain.AppointmentCompleted:
			if !includeCompleted {
				continue
			}
		}
		out = append(out, inst)
	}
	return out, nil
}

// Create books an appointment, optionally as the base of a recurring series.
func (s *Service) Create(ctx context.Context, req CreateAppointmentRequest) (*domain.Appointment, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrValidation
	}
	if req.StartTime.Before(s.clock.Now()) {
		return nil, ErrValidation
	}

	rtype := domain.RecurrenceType(req.RecurrenceType)
	if rtype == "" {
		rtype = domain.RecurrenceNone
	}
	dayOfWeek, dayOfMonth, err := resolveDaySelectors(rtype, req)
	if err != nil {
		return nil, err
	}

	busy, err := s.appts.GetBusyForProvider(ctx, req.ProviderID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if len(busy) > 0 {
		return nil, ErrNotAvailable
	}

	a := &domain.Appointment{
		ProviderID:      req.ProviderID,
		ClientID:        req.ClientID,
		ListingID:       req.ListingID,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		Status:          domain.AppointmentPending,
		RecurrenceType:  rtype,
		DayOfWeek:       dayOfWeek,
		DayOfMonth:      dayOfMonth,
		AnchorStartDate: schedule.DateOnly(req.StartTime),
		SeriesActive:    rtype.Repeats(),
		Notes:           req.Notes,
	}
	s.fillDisplayFields(ctx, a)

	if err := s.appts.Create(ctx, a); err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return nil, ErrOverbooking
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	if s.notifier != nil {
		s.notifier.AppointmentCreated(a)
	}
	return a, nil
}

// UpdateStatus transitions an appointment's status; only the provider may
// confirm or reject, either party may cancel.
func (s *Service) UpdateStatus(ctx context.Context, id, actorID int64, role domain.UserRole, status domain.AppointmentStatus) (*domain.Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if actorID != a.ProviderID && actorID != a.ClientID {
		return nil, ErrForbidden
	}

	switch status {
	case domain.AppointmentConfirmed, domain.AppointmentRejected:
		if actorID != a.ProviderID || role != domain.RoleProvider {
			return nil, ErrForbidden
		}
		if a.Status != domain.AppointmentPending {
			return nil, ErrInvalidStatusTransition
		}
	case domain.AppointmentCancelled:
		if a.Status == domain.AppointmentCancelled || a.Status == domain.AppointmentCompleted {
			return nil, ErrInvalidStatusTransition
		}
	case domain.AppointmentCompleted:
		if a.Status != domain.AppointmentConfirmed {
			return nil, ErrInvalidStatusTransition
		}
	default:
		return nil, ErrValidation
	}

	if err := s.appts.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	a, err = s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload appointment: %w", err)
	}
	if s.notifier != nil {
		s.notifier.AppointmentStatusChanged(a)
	}
	return a, nil
}

// CancelOccurrence suppresses a single occurrence of a series by writing a
// cancelled exception; the base rule is never mutated.
func (s *Service) CancelOccurrence(ctx context.Context, ruleID, actorID int64, date time.Time, notes string) (*domain.RecurrenceException, error) {
	rule, err := s.loadRuleFor(ctx, ruleID, actorID)
	if err != nil {
		return nil, err
	}
	occurrence := schedule.DateOnly(date)
	if !schedule.PatternHits(schedule.RuleFromAppointment(*rule), occurrence) {
		return nil, ErrNotAnOccurrence
	}

	e := &domain.RecurrenceException{
		RuleID:         ruleID,
		OccurrenceDate: occurrence,
		ActionType:     domain.ExceptionCancelled,
		Notes:          notes,
	}
	if err := s.exceptions.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("cancel occurrence: %w", err)
	}
	if s.notifier != nil {
		s.notifier.OccurrenceChanged(ruleID, rule.ProviderID, rule.ClientID, e)
	}
	return e, nil
}

// RestoreOccurrence deletes the exception on one occurrence, putting the
// series' own pattern back in force for that date. Exceptions are replaced,
// never mutated; removal is the only other transition.
func (s *Service) RestoreOccurrence(ctx context.Context, ruleID, actorID int64, date time.Time) error {
	rule, err := s.loadRuleFor(ctx, ruleID, actorID)
	if err != nil {
		return err
	}
	occurrence := schedule.DateOnly(date)
	if err := s.exceptions.Delete(ctx, ruleID, occurrence); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("restore occurrence: %w", err)
	}
	if s.notifier != nil {
		s.notifier.OccurrenceChanged(ruleID, rule.ProviderID, rule.ClientID, nil)
	}
	return nil
}

// RescheduleOccurrence moves a single occurrence to new times via a
// rescheduled exception; the original slot time is freed.
func (s *Service) RescheduleOccurrence(ctx context.Context, ruleID, actorID int64, date time.Time, newStart, newEnd time.Time, notes string) (*domain.RecurrenceException, error) {
	if !newEnd.After(newStart) {
		return nil, ErrValidation
	}
	rule, err := s.loadRuleFor(ctx, ruleID, actorID)
	if err != nil {
		return nil, err
	}
	occurrence := schedule.DateOnly(date)
	if !schedule.PatternHits(schedule.RuleFromAppointment(*rule), occurrence) {
		return nil, ErrNotAnOccurrence
	}

	start := newStart.UTC()
	end := newEnd.UTC()
	e := &domain.RecurrenceException{
		RuleID:         ruleID,
		OccurrenceDate: occurrence,
		ActionType:     domain.ExceptionRescheduled,
		NewStartTime:   &start,
		NewEndTime:     &end,
		Notes:          notes,
	}
	if err := s.exceptions.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("reschedule occurrence: %w", err)
	}
	if s.notifier != nil {
		s.notifier.OccurrenceChanged(ruleID, rule.ProviderID, rule.ClientID, e)
	}
	return e, nil
}

// CancelSeries deactivates a recurring base rule. Already-materialized
// occurrences keep their own lifecycle.
func (s *Service) CancelSeries(ctx context.Context, ruleID, actorID int64) error {
	rule, err := s.loadRuleFor(ctx, ruleID, actorID)
	if err != nil {
		return err
	}
	if err := s.appts.DeactivateSeries(ctx, ruleID); err != nil {
		return fmt.Errorf("cancel series: %w", err)
	}
	if err := s.appts.UpdateStatus(ctx, ruleID, domain.AppointmentCancelled); err != nil {
		return fmt.Errorf("cancel series: %w", err)
	}
	if s.notifier != nil {
		rule.Status = domain.AppointmentCancelled
		rule.SeriesActive = false
		s.notifier.AppointmentStatusChanged(rule)
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) loadRuleFor(ctx context.Context, ruleID, actorID int64) (*domain.Appointment, error) {
	rule, err := s.appts.GetByID(ctx, ruleID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !rule.IsBaseRule() {
		return nil, ErrNotRecurring
	}
	if actorID != rule.ProviderID && actorID != rule.ClientID {
		return nil, ErrForbidden
	}
	return rule, nil
}

// fillDisplayFields denormalizes client and listing data onto the row so
// calendar rendering needs no joins. Lookup failures only cost the labels.
func (s *Service) fillDisplayFields(ctx context.Context, a *domain.Appointment) {
	if s.users != nil {
		if client, err := s.users.GetByID(ctx, a.ClientID); err == nil {
			a.ClientName = client.Name
			if a.Address == "" {
				a.Address = client.Address
			}
		} else {
			s.log.Warn("client lookup failed for display fields", zap.Int64("client_id", a.ClientID), zap.Error(err))
		}
	}
	if s.listings != nil {
		if listing, err := s.listings.GetByID(ctx, a.ListingID); err == nil {
			a.ServiceName = listing.Title
		} else {
			s.log.Warn("listing lookup failed for display fields", zap.Int64("listing_id", a.ListingID), zap.Error(err))
		}
	}
}

func resolveDaySelectors(rtype domain.RecurrenceType, req CreateAppointmentRequest) (*int, *int, error) {
	switch rtype {
	case domain.RecurrenceWeekly, domain.RecurrenceBiweekly, domain.RecurrenceTriweekly:
		dow := req.DayOfWeek
		if dow == nil {
			d := int(req.StartTime.UTC().Weekday())
			dow = &d
		}
		if *dow < 0 || *dow > 6 || *dow != int(req.StartTime.UTC().Weekday()) {
			return nil, nil, ErrValidation
		}
		return dow, nil, nil
	case domain.RecurrenceMonthly:
		dom := req.DayOfMonth
		if dom == nil {
			d := req.StartTime.UTC().Day()
			dom = &d
		}
		if *dom < 1 || *dom > 31 {
			return nil, nil, ErrValidation
		}
		return nil, dom, nil
	case domain.RecurrenceNone, domain.RecurrenceOnce:
		return nil, nil, nil
	default:
		return nil, nil, ErrValidation
	}
}
