// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

// InboxStats returns the number of unread entries for userID and the newest
// entry's CreatedAt. When the inbox is empty, count is 0 and newest is nil.
//
// Inbox rows are never updated, so (count, newest) changes whenever a message
// is delivered or marked read.
func InboxStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	return latestStats(db.WithContext(ctx).Model(&domain.Inbox{}).Where("user_id = ?", userID))
}

// ArchiveStats is InboxStats for the archive.
func ArchiveStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	return latestStats(db.WithContext(ctx).Model(&domain.MessageArchive{}).Where("user_id = ?", userID))
}

func latestStats(q *gorm.DB) (count int64, newest *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
