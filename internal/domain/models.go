// Package domain defines the persistence models for stored user messages.
// These types are mapped with GORM and form the core data layer of the
// messaging service: one canonical Message row, plus per-recipient archive
// and inbox rows.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message levels, on the conventional numeric scale. Callers may use any
// positive value; these are the ones with a known tag.
const (
	LevelDebug   = 10
	LevelInfo    = 20
	LevelSuccess = 25
	LevelWarning = 30
	LevelError   = 40
)

var levelTags = map[int]string{
	LevelDebug:   "debug",
	LevelInfo:    "info",
	LevelSuccess: "success",
	LevelWarning: "warning",
	LevelError:   "error",
}

// LevelTag returns the tag name for a known level, or "" for custom levels.
func LevelTag(level int) string { return levelTags[level] }

// Message is the canonical content row shared by every recipient. It is
// immutable once created.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Message: the text body.
//   - Level: severity level (see LevelInfo et al.).
//   - Tags: optional space separated extra tags.
//   - Data: optional free-form payload; only persisted when the live schema
//     has the data column.
//   - CreatedAt: creation timestamp (UTC).
type Message struct {
	ID        string         `json:"id"             gorm:"type:char(36);primaryKey"`
	Message   string         `json:"message"        gorm:"type:text;not null"`
	Level     int            `json:"level"          gorm:"not null"`
	Tags      string         `json:"tags"           gorm:"type:varchar(255);not null;default:''"`
	Data      datatypes.JSON `json:"data,omitempty" gorm:"type:json"`
	CreatedAt time.Time      `json:"created_at"     gorm:"index"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "stored_messages" }

// MessageCore is the payload-less shape of the stored_messages table. It is
// only used for migrations when the data column is disabled.
type MessageCore struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Message   string    `gorm:"type:text;not null"`
	Level     int       `gorm:"not null"`
	Tags      string    `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName maps MessageCore onto the same table as Message.
func (MessageCore) TableName() string { return "stored_messages" }

// MessageArchive permanently links a recipient to a delivered Message. Rows
// are never removed by the service; they go away only when the message does.
type MessageArchive struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_archive_user,priority:1"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_archive_user,priority:2"`

	Message Message `json:"message" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageArchive.
func (MessageArchive) TableName() string { return "message_archive" }

// Inbox marks a Message as unread for a user. The row existing is the only
// unread signal; deleting it marks the message read. A user holds at most one
// inbox row per message.
type Inbox struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_inbox_user_message,priority:1"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_inbox_user_message,priority:2;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Message Message `json:"message" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Inbox.
func (Inbox) TableName() string { return "inbox" }
