package model

import "time"

// Attachment is immutable metadata for a file bound to a message. The bytes
// themselves live in the blob store behind StorageLocator.
type Attachment struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID      string    `gorm:"size:36;not null;index" json:"message_id"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	ByteSize       int64     `gorm:"not null" json:"byte_size"`
	MimeType       string    `gorm:"size:128;not null" json:"mime_type"`
	StorageLocator string    `gorm:"size:512;not null" json:"storage_locator"`
	CreatedAt      time.Time `json:"created_at"`
}

// AttachmentRef is a staged-but-not-yet-bound attachment: the blob is durable,
// the message row does not exist yet. Binding happens inside the append
// transaction; refs from a failed send are simply never referenced.
type AttachmentRef struct {
	Name           string `json:"name"`
	ByteSize       int64  `json:"byte_size"`
	MimeType       string `json:"mime_type"`
	StorageLocator string `json:"storage_locator"`
}
