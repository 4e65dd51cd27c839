package repository

import (
	"context"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecurrenceExceptionRepository struct {
	db *gorm.DB
}

func NewRecurrenceExceptionRepository(db *gorm.DB) *RecurrenceExceptionRepository {
	return &RecurrenceExceptionRepository{db: db}
}

type recurrenceExceptionModel struct {
	ID             int64      `gorm:"column:id;primaryKey"`
	RuleID         int64      `gorm:"column:rule_id;uniqueIndex:idx_one_exception_per_occurrence,priority:1"`
	OccurrenceDate time.Time  `gorm:"column:occurrence_date;uniqueIndex:idx_one_exception_per_occurrence,priority:2"`
	ActionType     string     `gorm:"column:action_type"`
	NewStartTime   *time.Time `gorm:"column:new_start_time"`
	NewEndTime     *time.Time `gorm:"column:new_end_time"`
	Notes          *string    `gorm:"column:notes"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

func (recurrenceExceptionModel) TableName() string { return "recurrence_exceptions" }

func toDomainException(m recurrenceExceptionModel) domain.RecurrenceException {
	e := domain.RecurrenceException{
		ID:             m.ID,
		RuleID:         m.RuleID,
		OccurrenceDate: m.OccurrenceDate,
		ActionType:     domain.ExceptionAction(m.ActionType),
		NewStartTime:   m.NewStartTime,
		NewEndTime:     m.NewEndTime,
		CreatedAt:      m.CreatedAt,
	}
	if m.Notes != nil {
		e.Notes = *m.Notes
	}
	return e
}

// Upsert stores the exception as the authoritative one for its
// (rule, occurrence date) pair, replacing any previous exception for that
// occurrence.
func (r *RecurrenceExceptionRepository) Upsert(ctx context.Context, e *domain.RecurrenceException) error {
	var notes *string
	if e.Notes != "" {
		v := e.Notes
		notes = &v
	}
	m := recurrenceExceptionModel{
		RuleID:         e.RuleID,
		OccurrenceDate: e.OccurrenceDate,
		ActionType:     string(e.ActionType),
		NewStartTime:   e.NewStartTime,
		NewEndTime:     e.NewEndTime,
		Notes:          notes,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_id"}, {Name: "occurrence_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"action_type", "new_start_time", "new_end_time", "notes"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upsert recurrence exception: %w", err)
	}
	e.ID = m.ID
	return nil
}

// ListByRuleIDs returns all exceptions for the given base rules, grouped by
// rule id.
func (r *RecurrenceExceptionRepository) ListByRuleIDs(ctx context.Context, ruleIDs []int64) (map[int64][]domain.RecurrenceException, error) {
	out := make(map[int64][]domain.RecurrenceException, len(ruleIDs))
	if len(ruleIDs) == 0 {
		return out, nil
	}
	var rows []recurrenceExceptionModel
	if err := r.db.WithContext(ctx).Where("rule_id IN ?", ruleIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch recurrence exceptions: %w", err)
	}
	for _, m := range rows {
		out[m.RuleID] = append(out[m.RuleID], toDomainException(m))
	}
	return out, nil
}

func (r *RecurrenceExceptionRepository) Delete(ctx context.Context, ruleID int64, occurrenceDate time.Time) error {
	res := r.db.WithContext(ctx).
		Where("rule_id = ? AND occurrence_date = ?", ruleID, occurrenceDate).
		Delete(&recurrenceExceptionModel{})
	if res.Error != nil {
		return fmt.Errorf("delete exception: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
