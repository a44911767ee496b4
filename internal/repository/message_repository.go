package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"logichat/internal/model"
)

// ErrSessionClosed is returned when an append finds the session closed
// under the row lock, after the caller's status check passed.
var ErrSessionClosed = errors.New("session is closed")

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a message and its attachments and bumps the session's
// last_message_at, all in one transaction. The session row is locked so a
// concurrent close cannot slip in after the status check and so created_at
// can be assigned strictly greater than the previous message's;
// if the clock has not advanced past it, the new timestamp is the previous
// one plus a microsecond (the column's resolution).
//
// When msg.ClientKey is set and a message with the same key already exists
// in the session, that original message is returned instead of a duplicate.
func (r *MessageRepository) Append(msg *model.Message, refs []model.AttachmentRef) (*model.Message, error) {
	if msg.ClientKey != nil {
		existing, err := r.findByClientKey(msg.SessionID, *msg.ClientKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var session model.ChatSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", msg.SessionID).
			First(&session).Error; err != nil {
			return fmt.Errorf("lock session failed: %w", err)
		}
		if session.Status != model.SessionStatusActive {
			return ErrSessionClosed
		}

		var prev model.Message
		prevErr := tx.Where("session_id = ?", msg.SessionID).
			Order("created_at DESC").
			First(&prev).Error
		if prevErr != nil && !errors.Is(prevErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load previous message failed: %w", prevErr)
		}

		createdAt := time.Now()
		if prevErr == nil && !createdAt.After(prev.CreatedAt) {
			createdAt = prev.CreatedAt.Add(time.Microsecond)
		}

		msg.ID = uuid.NewString()
		msg.CreatedAt = createdAt
		msg.Attachments = make([]model.Attachment, 0, len(refs))
		for _, ref := range refs {
			msg.Attachments = append(msg.Attachments, model.Attachment{
				ID:             uuid.NewString(),
				MessageID:      msg.ID,
				Name:           ref.Name,
				ByteSize:       ref.ByteSize,
				MimeType:       ref.MimeType,
				StorageLocator: ref.StorageLocator,
			})
		}

		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message failed: %w", err)
		}

		if err := tx.Model(&model.ChatSession{}).
			Where("id = ?", msg.SessionID).
			Update("last_message_at", createdAt).Error; err != nil {
			return fmt.Errorf("bump last message time failed: %w", err)
		}
		return nil
	})
	if err != nil {
		// A concurrent retry can race past the pre-check; resolve to the
		// first committed message for the key.
		if msg.ClientKey != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := r.findByClientKey(msg.SessionID, *msg.ClientKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepository) ListBySessionID(sessionID string, page, perPage int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Preload("Attachments").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// MarkRead flips unread messages addressed to readerID in one conditional
// update. Messages appended after upTo are left for the next call; the
// transition is one-directional so racing with Append cannot lose updates.
func (r *MessageRepository) MarkRead(sessionID, readerID string, upTo time.Time) (int64, error) {
	result := r.db.Model(&model.Message{}).
		Where("session_id = ? AND sender_id <> ? AND is_read = ? AND created_at <= ?",
			sessionID, readerID, false, upTo).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": upTo,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("mark messages read failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountUnread aggregates unread messages addressed to userID across every
// session where the user occupies the role-selected slot.
func (r *MessageRepository) CountUnread(userID, role string) (int64, error) {
	query := r.db.Model(&model.Message{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = messages.session_id").
		Where("messages.sender_id <> ? AND messages.is_read = ?", userID, false)

	switch role {
	case model.RoleCustomer:
		query = query.Where("chat_sessions.customer_id = ?", userID)
	case model.RoleClient:
		query = query.Where("chat_sessions.client_id = ?", userID)
	default:
		query = query.Where("chat_sessions.customer_id = ? OR chat_sessions.client_id = ?", userID, userID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count unread messages failed: %w", err)
	}
	return count, nil
}

// Search finds messages containing term, newest first. The term is passed
// as a bind parameter with LIKE metacharacters escaped.
func (r *MessageRepository) Search(sessionID, term string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	pattern := "%" + escapeLike(term) + "%"
	var messages []model.Message
	err := r.db.Preload("Attachments").
		Where("session_id = ? AND content LIKE ?", sessionID, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("search messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) findByClientKey(sessionID, clientKey string) (*model.Message, error) {
	var message model.Message
	err := r.db.Preload("Attachments").
		Where("session_id = ? AND client_key = ?", sessionID, clientKey).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message by client key failed: %w", err)
	}
	return &message, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
