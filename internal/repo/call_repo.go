// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Call model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a call is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional status updates that match no row in an allowed source
//     state return ErrStaleStatus.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/domain"
)

// CallFilter narrows SearchCalls and CountCalls. Zero values match anything.
type CallFilter struct {
	Status   domain.CallStatus
	Caller   string // substring match
	Receiver string // substring match
}

// CreateCall inserts a new Call in status created with a random UUID.
func CreateCall(ctx context.Context, db *gorm.DB, caller, receiver string, startedAt time.Time) (*domain.Call, error) {
	now := time.Now().UTC()
	c := &domain.Call{
		ID:        uuid.NewString(),
		Caller:    caller,
		Receiver:  receiver,
		StartedAt: startedAt.UTC(),
		Status:    domain.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCall fetches a call by id, or ErrNotFound.
func GetCall(ctx context.Context, db *gorm.DB, id string) (*domain.Call, error) {
	var c domain.Call
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCallsByPhone returns calls where phone is either the caller or the
// receiver, newest first.
func FindCallsByPhone(ctx context.Context, db *gorm.DB, phone string) ([]domain.Call, error) {
	var out []domain.Call
	err := db.WithContext(ctx).
		Where("caller = ? OR receiver = ?", phone, phone).
		Order("started_at desc").
		Find(&out).Error
	return out, err
}

func applyCallFilter(q *gorm.DB, f CallFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Caller); s != "" {
		q = q.Where(`caller LIKE ? ESCAPE '\'`, "%"+escapeLike(s)+"%")
	}
	if s := strings.TrimSpace(f.Receiver); s != "" {
		q = q.Where(`receiver LIKE ? ESCAPE '\'`, "%"+escapeLike(s)+"%")
	}
	return q
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CountCalls returns the number of calls matching f.
func CountCalls(ctx context.Context, db *gorm.DB, f CallFilter) (int64, error) {
	var total int64
	err := applyCallFilter(db.WithContext(ctx).Model(&domain.Call{}), f).Count(&total).Error
	return total, err
}

// SearchCalls returns a page of calls matching f, newest first.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func SearchCalls(ctx context.Context, db *gorm.DB, f CallFilter, offset, limit int) ([]domain.Call, error) {
	var out []domain.Call
	err := applyCallFilter(db.WithContext(ctx).Model(&domain.Call{}), f).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TransitionCallStatus moves a call to next only if its current status is
// one of from. Every from -> next pair must be allowed by
// domain.CallStatus.CanTransition, otherwise ErrIllegalTransition is returned
// and nothing is written. It returns ErrNotFound when the call is missing and
// ErrStaleStatus when the call exists in a different state.
func TransitionCallStatus(ctx context.Context, db *gorm.DB, id string, next domain.CallStatus, from ...domain.CallStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status for %s", ErrIllegalTransition, next)
	}
	for _, f := range from {
		if !f.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f, next)
		}
	}
	res := db.WithContext(ctx).
		Model(&domain.Call{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := GetCall(ctx, db, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

// ListStaleProcessingRecordIDs returns ids of records whose call has been in
// processing since before cutoff.
func ListStaleProcessingRecordIDs(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Record{}).
		Joins("JOIN calls ON calls.id = records.call_id").
		Where("calls.status = ? AND calls.updated_at < ?", domain.StatusProcessing, cutoff).
		Order("records.created_at asc").
		Pluck("records.id", &ids).Error
	return ids, err
}
