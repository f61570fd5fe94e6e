// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MessageArchive model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Archive rows are append-only: there is no
// delete function here, they disappear only through the cascade when their
// message is removed.
//
// Functions:
//
//   - CreateArchive(ctx, db, userID, messageID) -> *domain.MessageArchive, error
//     Inserts one archive row with UUID primary key and UTC timestamp.
//
//   - CountArchive(ctx, db, userID) -> (int64, error)
//     Returns the number of archived messages for a user.
//
//   - ListArchivePage(ctx, db, userID, offset, limit, withData) -> []domain.MessageArchive, error
//     Returns a page of archive rows, newest first, with Message preloaded.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

// CreateArchive inserts an archive row linking userID to messageID.
func CreateArchive(ctx context.Context, db *gorm.DB, userID, messageID string) (*domain.MessageArchive, error) {
	a := &domain.MessageArchive{
		ID:        uuid.NewString(),
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Message").Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// CountArchive returns the number of archive rows owned by userID.
func CountArchive(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MessageArchive{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListArchivePage returns a page of userID's archive, ordered newest first
// (CreatedAt DESC, ID DESC) with the Message association preloaded.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListArchivePage(ctx context.Context, db *gorm.DB, userID string, offset, limit int, withData bool) ([]domain.MessageArchive, error) {
	var out []domain.MessageArchive
	err := db.WithContext(ctx).
		Preload("Message", preloadMessage(withData)).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// preloadMessage narrows a Message preload to the payload-less columns when
// the data column is absent.
func preloadMessage(withData bool) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if withData {
			return q
		}
		return q.Omit("Data")
	}
}
