package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/domain"
)

// CreateFailedTask writes a dead-letter row for recordID.
func CreateFailedTask(ctx context.Context, db *gorm.DB, recordID, callID, kind string, attempts int, lastErr string, payload []byte) (*domain.FailedTask, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	ft := &domain.FailedTask{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		CallID:    callID,
		Attempts:  attempts,
		Kind:      kind,
		LastError: lastErr,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ft).Error; err != nil {
		return nil, err
	}
	return ft, nil
}

// ListFailedTasks returns dead-letter rows newest first.
func ListFailedTasks(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.FailedTask, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(&domain.FailedTask{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.FailedTask
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}

// GetFailedTask fetches a dead-letter row by id, or ErrNotFound.
func GetFailedTask(ctx context.Context, db *gorm.DB, id string) (*domain.FailedTask, error) {
	var ft domain.FailedTask
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ft).Error; err != nil {
		return nil, err
	}
	return &ft, nil
}

// DeleteFailedTasksForRecord removes every dead-letter row of recordID.
func DeleteFailedTasksForRecord(ctx context.Context, db *gorm.DB, recordID string) (int64, error) {
	res := db.WithContext(ctx).Where("record_id = ?", recordID).Delete(&domain.FailedTask{})
	return res.RowsAffected, res.Error
}
