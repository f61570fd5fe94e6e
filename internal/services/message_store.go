// Package services – MessageStore
//
// This file implements MessageStore, the component that owns delivery of
// stored messages to users. A send persists one canonical message row and
// fans it out to one archive row and one inbox row per recipient, inside a
// single transaction so a partial fan-out is never observable. Reading a
// message deletes its inbox row; archive rows are kept forever.
//
// Text, level and tags are stored exactly as given; input rules belong to the
// transport. The optional structured payload is written only when the live
// schema has the payload column. The store asks the migrator and remembers
// the first answer that came back without an error.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include user identifiers and fan-out sizes where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
	"github.com/tbourn/go-stored-messages/internal/repo"
	"github.com/tbourn/go-stored-messages/internal/utils"
)

const tracerName = "services/MessageStore"

// MessageStore coordinates message persistence, fan-out, and read state.
// Construct it with NewMessageStore; the zero value is not usable.
type MessageStore struct {
	DB *gorm.DB

	// MaxRecipients caps a single send; values <= 0 disable the cap.
	MaxRecipients int

	dataMu    sync.Mutex
	dataKnown bool
	hasData   bool
}

// NewMessageStore returns a store bound to db.
func NewMessageStore(db *gorm.DB, maxRecipients int) *MessageStore {
	return &MessageStore{DB: db, MaxRecipients: maxRecipients}
}

// HasData reports whether the payload column is available. A failed schema
// lookup reports false and is retried on the next call.
func (s *MessageStore) HasData(ctx context.Context) bool {
	ok, err := s.dataColumn(ctx)
	return ok && err == nil
}

// dataColumn asks the migrator for the payload column and caches the first
// answer obtained without error. The lookup ignores ctx cancellation so an
// aborted request cannot settle it.
func (s *MessageStore) dataColumn(ctx context.Context) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if s.dataKnown {
		return s.hasData, nil
	}
	ok, err := repo.HasMessageData(context.WithoutCancel(ctx), s.DB)
	if err != nil {
		log.Warn().Err(err).Msg("payload column lookup failed")
		return false, err
	}
	s.dataKnown, s.hasData = true, ok
	return ok, nil
}

// AddMessageFor stores text once and delivers it to every user in users.
//
// Blank user IDs are skipped and repeated IDs collapse into one recipient, in
// first-seen order. An empty recipient list still stores the message. data is
// persisted only when the schema has the payload column; otherwise it is
// dropped silently. If the schema cannot be read the send fails.
func (s *MessageStore) AddMessageFor(ctx context.Context, users []string, level int, text, tags string, data map[string]any) (*domain.Message, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "AddMessageFor",
		trace.WithAttributes(
			attribute.Int("message.level", level),
			attribute.Int("recipients.requested", len(users)),
		),
	)
	defer span.End()

	recipients := uniqueRecipients(users)
	if s.MaxRecipients > 0 && len(recipients) > s.MaxRecipients {
		return nil, ErrTooManyRecipients
	}
	span.SetAttributes(attribute.Int("recipients.count", len(recipients)))

	withData, err := s.dataColumn(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, text, level, tags, data, withData)
		if err != nil {
			return err
		}
		for _, u := range recipients {
			if _, err := repo.CreateArchive(ctx, tx, u, m.ID); err != nil {
				return err
			}
			if _, err := repo.CreateInbox(ctx, tx, u, m.ID); err != nil {
				return err
			}
		}
		msg = m
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	messagesSent.Inc()
	inboxDelivered.Add(float64(len(recipients)))
	log.Debug().
		Str("message_id", msg.ID).
		Int("level", level).
		Int("recipients", len(recipients)).
		Bool("payload", withData).
		Msg("message stored")

	return msg, nil
}

// BroadcastMessage would deliver a message to every user in the system. It is
// not implemented and fails for any input.
func (s *MessageStore) BroadcastMessage(ctx context.Context, level int, text, tags string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "BroadcastMessage")
	defer span.End()
	span.RecordError(ErrNotImplemented)
	return ErrNotImplemented
}

// MarkRead deletes the inbox row for (userID, messageID). It reports true when
// a row was deleted, and false when the message was already read or was never
// delivered to userID; neither case is an error.
func (s *MessageStore) MarkRead(ctx context.Context, userID, messageID string) (bool, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	n, err := repo.DeleteInbox(ctx, s.DB, userID, messageID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if n > 0 {
		markedRead.WithLabelValues("single").Add(float64(n))
	}
	return n > 0, nil
}

// MarkAllRead deletes every inbox row owned by userID and returns how many
// were removed. Other users' inboxes are untouched.
func (s *MessageStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "MarkAllRead",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	var n int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = repo.DeleteAllInbox(ctx, tx, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	markedRead.WithLabelValues("all").Add(float64(n))
	log.Debug().Str("user_id", userID).Int64("count", n).Msg("inbox cleared")
	return n, nil
}

// GetMessage fetches a stored message by ID.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetMessage",
		trace.WithAttributes(attribute.String("message.id", id)),
	)
	defer span.End()

	withData, err := s.dataColumn(ctx)
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, id, withData)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// UnreadCount returns the number of inbox rows for userID.
func (s *MessageStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.CountInbox(ctx, s.DB, userID)
}

// ListInbox returns a page of userID's unread messages, newest first.
func (s *MessageStore) ListInbox(ctx context.Context, userID string, page, pageSize int) ([]domain.Inbox, int64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListInbox",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	offset, limit := utils.Page{Number: page, Size: pageSize}.Bounds()
	total, err := repo.CountInbox(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Inbox{}, 0, nil
	}
	withData, err := s.dataColumn(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListInboxPage(ctx, s.DB, userID, offset, limit, withData)
	return items, total, err
}

// ListArchive returns a page of userID's delivered messages, newest first.
func (s *MessageStore) ListArchive(ctx context.Context, userID string, page, pageSize int) ([]domain.MessageArchive, int64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListArchive",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	offset, limit := utils.Page{Number: page, Size: pageSize}.Bounds()
	total, err := repo.CountArchive(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.MessageArchive{}, 0, nil
	}
	withData, err := s.dataColumn(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListArchivePage(ctx, s.DB, userID, offset, limit, withData)
	return items, total, err
}

// uniqueRecipients trims IDs, drops blanks, and removes duplicates while
// keeping first-seen order.
func uniqueRecipients(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
