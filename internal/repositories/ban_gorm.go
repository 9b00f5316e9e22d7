package repositories

import (
	"context"
	"time"

	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBanStore keeps bans in postgres; every call is its own committed statement
type GormBanStore struct {
	db *gorm.DB
}

// NewGormBanStore creates a postgres-backed ban store
func NewGormBanStore(db *gorm.DB) *GormBanStore {
	return &GormBanStore{db: db}
}

// Put upserts the record
func (r *GormBanStore) Put(ctx context.Context, subjectID string, expiresAt time.Time) error {
	row := models.BanRow{
		SubjectID: subjectID,
		EndTime:   expiresAt.UnixMilli(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"end_time", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to upsert ban")
	}
	return nil
}

// Remove deletes the record if present
func (r *GormBanStore) Remove(ctx context.Context, subjectID string) error {
	err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&models.BanRow{}).Error
	if err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrPersistence), "failed to delete ban")
	}
	return nil
}

// Get returns the record for subjectID
func (r *GormBanStore) Get(ctx context.Context, subjectID string) (models.BanRecord, bool, error) {
	var row models.BanRow
	err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.BanRecord{}, false, nil
	}
	if err != nil {
		return models.BanRecord{}, false, errors.Wrap(err, "failed to get ban")
	}
	return toRecord(row.SubjectID, banEntry{EndTime: row.EndTime}), true, nil
}

// IsActive reports whether a record exists with an expiry after now
func (r *GormBanStore) IsActive(ctx context.Context, subjectID string, now time.Time) (bool, error) {
	rec, ok, err := r.Get(ctx, subjectID)
	if err != nil || !ok {
		return false, err
	}
	return rec.IsActive(now), nil
}

// LoadAll returns every record ordered by expiry
func (r *GormBanStore) LoadAll(ctx context.Context) ([]models.BanRecord, error) {
	var rows []models.BanRow
	if err := r.db.WithContext(ctx).Order("end_time").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(apperrors.Mark(err, apperrors.ErrCorruptState), "failed to load bans")
	}
	records := make([]models.BanRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row.SubjectID, banEntry{EndTime: row.EndTime}))
	}
	return records, nil
}
