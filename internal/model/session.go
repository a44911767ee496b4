package model

import (
	"strings"
	"time"
)

const (
	SessionStatusActive = "Active"
	SessionStatusClosed = "Closed"
)

// Service contexts a session can be scoped to.
const (
	ServiceContextCFS       = "CFS"
	ServiceContextTransport = "Transport"
	ServiceContext3PL       = "3PL"
	ServiceContextWarehouse = "Warehouse"
	ServiceContextNone      = ""
)

const DefaultSessionSubject = "General Inquiry"

// ChatSession is a durable conversation between one customer and one client.
// PairKey is the normalized participant pair; its unique index is what
// guarantees at most one session per pair under concurrent creation.
type ChatSession struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	CustomerID     string     `gorm:"size:36;not null;index" json:"customer_id"`
	ClientID       string     `gorm:"size:36;not null;index" json:"client_id"`
	PairKey        string     `gorm:"size:80;not null;uniqueIndex" json:"-"`
	Subject        string     `gorm:"size:256;not null" json:"subject"`
	ServiceContext string     `gorm:"size:32" json:"service_context"`
	Status         string     `gorm:"size:16;not null;index" json:"status"`
	LastMessageAt  time.Time  `gorm:"not null;index" json:"last_message_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	ClosedBy       string     `gorm:"size:36" json:"closed_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PairKey normalizes an unordered participant pair into a stable key, so
// (A,B) and (B,A) map to the same session.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// HasParticipant reports whether userID occupies either slot of the session.
func (s *ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (s.CustomerID == userID || s.ClientID == userID)
}

// OtherParticipant returns the peer of userID, or "" if userID is not a
// participant.
func (s *ChatSession) OtherParticipant(userID string) string {
	switch userID {
	case s.CustomerID:
		return s.ClientID
	case s.ClientID:
		return s.CustomerID
	default:
		return ""
	}
}

// ValidServiceContext reports whether ctx is a known service context.
// The empty string means the session is not scoped to a service.
func ValidServiceContext(ctx string) bool {
	switch strings.TrimSpace(ctx) {
	case ServiceContextCFS, ServiceContextTransport, ServiceContext3PL, ServiceContextWarehouse, ServiceContextNone:
		return true
	}
	return false
}
