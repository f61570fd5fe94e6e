// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Inbox model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
//
// Error semantics:
//   - A second inbox row for the same (user_id, message_id) violates the
//     unique index and is returned as a raw DB error.
//   - Deletes report how many rows went away; zero is not an error.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

// CreateInbox inserts an unread marker for userID on messageID.
func CreateInbox(ctx context.Context, db *gorm.DB, userID, messageID string) (*domain.Inbox, error) {
	in := &domain.Inbox{
		ID:        uuid.NewString(),
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Message").Create(in).Error; err != nil {
		return nil, err
	}
	return in, nil
}

// DeleteInbox removes the unread marker for (userID, messageID) and returns
// the number of rows deleted (0 or 1).
func DeleteInbox(ctx context.Context, db *gorm.DB, userID, messageID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Delete(&domain.Inbox{})
	return res.RowsAffected, res.Error
}

// DeleteAllInbox removes every unread marker owned by userID.
func DeleteAllInbox(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Inbox{})
	return res.RowsAffected, res.Error
}

// CountInbox returns the number of unread messages for userID.
func CountInbox(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Inbox{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListInboxPage returns a page of userID's unread entries, newest first, with
// the Message association preloaded.
func ListInboxPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int, withData bool) ([]domain.Inbox, error) {
	var out []domain.Inbox
	err := db.WithContext(ctx).
		Preload("Message", preloadMessage(withData)).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
