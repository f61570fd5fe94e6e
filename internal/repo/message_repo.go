// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// HasMessageData reports whether the live stored_messages table carries the
// optional payload column. Unlike Migrator().HasColumn it surfaces query
// errors, so callers can tell "no column" from "could not look".
func HasMessageData(ctx context.Context, db *gorm.DB) (bool, error) {
	cols, err := db.WithContext(ctx).Migrator().ColumnTypes(&domain.Message{})
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name(), "data") {
			return true, nil
		}
	}
	return false, nil
}

// CreateMessage inserts the canonical message row. When withData is false the
// payload is not written (the column may not exist) and the returned message
// carries no Data. A nil or empty payload is stored as an empty JSON object.
func CreateMessage(ctx context.Context, db *gorm.DB, text string, level int, tags string, data map[string]any, withData bool) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		Message:   text,
		Level:     level,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}

	q := db.WithContext(ctx)
	if withData {
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		m.Data = datatypes.JSON(raw)
	} else {
		q = q.Omit("Data")
	}

	if err := q.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID. When withData is false the payload
// column is not selected.
func GetMessage(ctx context.Context, db *gorm.DB, id string, withData bool) (*domain.Message, error) {
	var m domain.Message
	q := db.WithContext(ctx)
	if !withData {
		q = q.Omit("Data")
	}
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM stored_messages").Scan(&total).Error
	return total, err
}
