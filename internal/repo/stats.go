// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/domain"
)

// CallsStats returns aggregate metadata for the calls matching f: the total
// number of rows and the maximum UpdatedAt among them.
//
// When nothing matches, the returned count is 0 and maxUpdatedAt is nil.
func CallsStats(ctx context.Context, db *gorm.DB, f CallFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	if count, err = CountCalls(ctx, db, f); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q := applyCallFilter(db.WithContext(ctx).Model(&domain.Call{}), f)
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
