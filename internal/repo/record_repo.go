package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-callrec-backend/internal/domain"
)

// CallDetail is a Call with its optional Record and that record's silence
// intervals ordered by start offset.
type CallDetail struct {
	Call   domain.Call
	Record *domain.Record
	Ranges []domain.SilentRange
}

// CreateRecord inserts a Record for callID with empty derived fields.
// It returns ErrDuplicate when the call already has a record.
func CreateRecord(ctx context.Context, db *gorm.DB, callID, filename, objectPath string) (*domain.Record, error) {
	now := time.Now().UTC()
	r := &domain.Record{
		ID:         uuid.NewString(),
		CallID:     callID,
		Filename:   filename,
		ObjectPath: objectPath,
		ExpiresAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		return nil, mapCreateErr(err)
	}
	return r, nil
}

// GetRecord fetches a record by id, or ErrNotFound.
func GetRecord(ctx context.Context, db *gorm.DB, id string) (*domain.Record, error) {
	var r domain.Record
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecordByCallID fetches the record owned by callID, or ErrNotFound.
func GetRecordByCallID(ctx context.Context, db *gorm.DB, callID string) (*domain.Record, error) {
	var r domain.Record
	if err := db.WithContext(ctx).Where("call_id = ?", callID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListSilentRanges returns the ranges of a record ordered by start.
func ListSilentRanges(ctx context.Context, db *gorm.DB, recordID string) ([]domain.SilentRange, error) {
	var out []domain.SilentRange
	err := db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("start asc").
		Find(&out).Error
	return out, err
}

// ReplaceSilentRanges deletes every range of recordID and inserts ranges.
// Run it inside a transaction so readers never see a partial set.
func ReplaceSilentRanges(ctx context.Context, db *gorm.DB, recordID string, ranges []domain.SilentRange) error {
	if err := db.WithContext(ctx).Where("record_id = ?", recordID).Delete(&domain.SilentRange{}).Error; err != nil {
		return err
	}
	if len(ranges) == 0 {
		return nil
	}
	rows := make([]domain.SilentRange, len(ranges))
	for i, r := range ranges {
		rows[i] = domain.SilentRange{RecordID: recordID, Start: r.Start, End: r.End}
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error
}

// UpdateRecordAnalysis stores the analysis results on a record.
func UpdateRecordAnalysis(ctx context.Context, db *gorm.DB, id string, duration float64, transcription string) error {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"duration":      duration,
			"transcription": transcription,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateRecordPresign caches a presigned URL and its expiry on a record.
func UpdateRecordPresign(ctx context.Context, db *gorm.DB, id, url string, expiresAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"presigned_url": url,
			"expires_at":    expiresAt.UTC(),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetCallDetail assembles a Call, its optional Record and the record's
// ranges with sequential queries on db. Pass a transaction handle for a
// consistent snapshot.
func GetCallDetail(ctx context.Context, db *gorm.DB, callID string) (*CallDetail, error) {
	call, err := GetCall(ctx, db, callID)
	if err != nil {
		return nil, err
	}
	out := &CallDetail{Call: *call, Ranges: []domain.SilentRange{}}

	rec, err := GetRecordByCallID(ctx, db, callID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return out, nil
	case err != nil:
		return nil, err
	}
	out.Record = rec

	ranges, err := ListSilentRanges(ctx, db, rec.ID)
	if err != nil {
		return nil, err
	}
	out.Ranges = ranges
	return out, nil
}
