package repositories

import (
	"context"
	"errors"
	"time"

	"munda-checkout/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRecordRepository struct {
	db *gorm.DB
}

func NewPostgresCartStorage(db *gorm.DB) CartStorage {
	return &cartRecordRepository{db: db}
}

func (r *cartRecordRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(record.Payload), nil
}

func (r *cartRecordRepository) Save(ctx context.Context, key string, payload []byte) error {
	record := models.CartRecord{
		Key:       key,
		Payload:   string(payload),
		Version:   models.CartSchemaVersion,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "version", "updated_at"}),
	}).Create(&record).Error
}

func (r *cartRecordRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.CartRecord{}).Error
}
