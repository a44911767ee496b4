package model

import "time"

const (
	MessageKindText = "text"
	MessageKindFile = "file"
)

// Message belongs to exactly one session. CreatedAt is strictly increasing
// within a session and is the authoritative delivery order. ClientKey is an
// optional caller-supplied idempotency token; the composite unique index
// makes a retried send return the original row instead of a duplicate.
type Message struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	SessionID   string       `gorm:"size:36;not null;index:idx_session_created,priority:1;uniqueIndex:idx_session_client_key,priority:1" json:"session_id"`
	SenderID    string       `gorm:"size:36;not null;index" json:"sender_id"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Kind        string       `gorm:"size:16;not null" json:"kind"`
	ClientKey   *string      `gorm:"size:64;uniqueIndex:idx_session_client_key,priority:2" json:"client_key,omitempty"`
	IsRead      bool         `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt      *time.Time   `json:"read_at,omitempty"`
	CreatedAt   time.Time    `gorm:"type:datetime(6);not null;index:idx_session_created,priority:2" json:"created_at"`
	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}
