package repository

import (
	"context"
	"fmt"
	"time"

	"servio/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

type slotModel struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	ProviderID  int64     `gorm:"column:provider_id;uniqueIndex:idx_slot_identity,priority:1"`
	ListingID   int64     `gorm:"column:listing_id;uniqueIndex:idx_slot_identity,priority:2"`
	Date        time.Time `gorm:"column:date"`
	StartTime   time.Time `gorm:"column:start_time;uniqueIndex:idx_slot_identity,priority:3"`
	EndTime     time.Time `gorm:"column:end_time"`
	IsAvailable bool      `gorm:"column:is_available"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (slotModel) TableName() string { return "provider_slots" }

func toDomainSlot(m slotModel) domain.Slot {
	return domain.Slot{
		ID:          m.ID,
		ProviderID:  m.ProviderID,
		ListingID:   m.ListingID,
		Date:        m.Date,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		IsAvailable: m.IsAvailable,
		CreatedAt:   m.CreatedAt,
	}
}

// InsertMissing persists slots with conflict-tolerant inserts keyed on the
// slot identity (provider, listing, start). Concurrent regeneration triggers
// may race; the unique index plus DO NOTHING keeps the pass idempotent.
func (r *SlotRepository) InsertMissing(ctx context.Context, slots []domain.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	rows := make([]slotModel, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, slotModel{
			ProviderID:  s.ProviderID,
			ListingID:   s.ListingID,
			Date:        s.Date,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
		})
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}, {Name: "listing_id"}, {Name: "start_time"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("insert slots: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *SlotRepository) ListRange(ctx context.Context, providerID, listingID int64, from, to time.Time) ([]domain.Slot, error) {
	var rows []slotModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND listing_id = ?", providerID, listingID).
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch slots: %w", err)
	}
	out := make([]domain.Slot, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainSlot(m))
	}
	return out, nil
}

func (r *SlotRepository) SetAvailability(ctx context.Context, providerID, listingID int64, start time.Time, available bool) error {
	res := r.db.WithContext(ctx).Model(&slotModel{}).
		Where("provider_id = ? AND listing_id = ? AND start_time = ?", providerID, listingID, start).
		Update("is_available", available)
	if res.Error != nil {
		return fmt.Errorf("update slot availability: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes one slot. Deletion is always an explicit operation;
// reconciliation never removes rows.
func (r *SlotRepository) Delete(ctx context.Context, providerID, listingID int64, start time.Time) error {
	res := r.db.WithContext(ctx).
		Where("provider_id = ? AND listing_id = ? AND start_time = ?", providerID, listingID, start).
		Delete(&slotModel{})
	if res.Error != nil {
		return fmt.Errorf("delete slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
