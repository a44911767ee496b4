package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"logichat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate returns the session for the participant pair, creating it if
// absent. The unique index on pair_key serializes concurrent creation: the
// losing insert sees a duplicate-key error and re-reads the winner's row.
// The returned bool is true when this call created the session.
func (r *SessionRepository) GetOrCreate(customerID, clientID, subject, serviceContext string) (*model.ChatSession, bool, error) {
	pairKey := model.PairKey(customerID, clientID)

	existing, err := r.getByPairKey(pairKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	session := &model.ChatSession{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		ClientID:       clientID,
		PairKey:        pairKey,
		Subject:        subject,
		ServiceContext: serviceContext,
		Status:         model.SessionStatusActive,
		LastMessageAt:  time.Now(),
	}
	if err := r.db.Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, lookupErr := r.getByPairKey(pairKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("create session failed: %w", err)
	}
	return session, true, nil
}

func (r *SessionRepository) GetByID(sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// ListByParticipant returns sessions where userID occupies the slot selected
// by role (customer or client; anything else matches either slot), most
// recently active first.
func (r *SessionRepository) ListByParticipant(userID, role string, page, perPage int) ([]model.ChatSession, error) {
	query := r.db.Model(&model.ChatSession{})
	switch role {
	case model.RoleCustomer:
		query = query.Where("customer_id = ?", userID)
	case model.RoleClient:
		query = query.Where("client_id = ?", userID)
	default:
		query = query.Where("customer_id = ? OR client_id = ?", userID, userID)
	}

	var sessions []model.ChatSession
	err := query.
		Order("last_message_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// Close marks the session closed. The conditional update only fires while
// the session is still Active, so a second close keeps the first closer's
// closed_at/closed_by; the stored state is re-read and returned either way.
func (r *SessionRepository) Close(sessionID, closedBy string, at time.Time) (*model.ChatSession, error) {
	err := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":    model.SessionStatusClosed,
			"closed_at": at,
			"closed_by": closedBy,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("close session failed: %w", err)
	}
	return r.GetByID(sessionID)
}

func (r *SessionRepository) getByPairKey(pairKey string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("pair_key = ?", pairKey).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by pair failed: %w", err)
	}
	return &session, nil
}
