package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"logichat/internal/model"
)

var (
	ErrEmptyFile   = errors.New("attachment is empty")
	ErrMissingMime = errors.New("attachment mime type is required")
	ErrTooLarge    = errors.New("attachment exceeds size limit")
	ErrMissingName = errors.New("attachment name is required")
)

// IsRejected reports whether err is a validation rejection of the upload
// itself, as opposed to a blob store failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrMissingMime) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrMissingName)
}

// BlobStore is the durable byte sink behind staged attachments.
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(key string) string
}

// Upload describes one file being staged.
type Upload struct {
	Name     string
	ByteSize int64
	MimeType string
	Body     io.Reader
}

// Stager validates uploads and streams them to the blob store. Staging is
// independent per file; the caller only appends the owning message once
// every upload for that message has been staged.
type Stager struct {
	store    BlobStore
	maxBytes int64
}

func NewStager(store BlobStore, maxBytes int64) *Stager {
	return &Stager{
		store:    store,
		maxBytes: maxBytes,
	}
}

// Stage validates and uploads one file, returning a ref that can be bound
// to a message. Refs from an aborted send are never referenced and the
// orphaned blobs are reclaimable by key prefix.
func (s *Stager) Stage(ctx context.Context, up Upload) (model.AttachmentRef, error) {
	name := strings.TrimSpace(up.Name)
	if name == "" {
		return model.AttachmentRef{}, ErrMissingName
	}
	if up.ByteSize <= 0 {
		return model.AttachmentRef{}, ErrEmptyFile
	}
	if strings.TrimSpace(up.MimeType) == "" {
		return model.AttachmentRef{}, ErrMissingMime
	}
	if s.maxBytes > 0 && up.ByteSize > s.maxBytes {
		return model.AttachmentRef{}, ErrTooLarge
	}

	key := storageKey(name)
	if err := s.store.Upload(ctx, key, up.Body, up.ByteSize, up.MimeType); err != nil {
		return model.AttachmentRef{}, fmt.Errorf("upload attachment failed: %w", err)
	}

	return model.AttachmentRef{
		Name:           name,
		ByteSize:       up.ByteSize,
		MimeType:       up.MimeType,
		StorageLocator: key,
	}, nil
}

// FetchURL regenerates a fetchable URL for a stored locator.
func (s *Stager) FetchURL(locator string) string {
	return s.store.URL(locator)
}

func storageKey(name string) string {
	ext := path.Ext(name)
	return fmt.Sprintf("attachments/%s/%s%s",
		time.Now().UTC().Format("2006/01/02"),
		uuid.NewString(),
		ext,
	)
}
