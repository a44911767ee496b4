package attachment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStager(t *testing.T) (*Stager, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	return NewStager(store, 1<<20), dir
}

func TestStageRejectsInvalidUploads(t *testing.T) {
	stager, _ := newLocalStager(t)
	ctx := context.Background()

	cases := []struct {
		name string
		up   Upload
		want error
	}{
		{"empty file", Upload{Name: "a.txt", ByteSize: 0, MimeType: "text/plain"}, ErrEmptyFile},
		{"negative size", Upload{Name: "a.txt", ByteSize: -1, MimeType: "text/plain"}, ErrEmptyFile},
		{"missing mime", Upload{Name: "a.txt", ByteSize: 4}, ErrMissingMime},
		{"missing name", Upload{ByteSize: 4, MimeType: "text/plain"}, ErrMissingName},
		{"too large", Upload{Name: "a.txt", ByteSize: 2 << 20, MimeType: "text/plain"}, ErrTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stager.Stage(ctx, tc.up)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStageWritesBlobAndReturnsRef(t *testing.T) {
	stager, dir := newLocalStager(t)

	content := "quote sheet body"
	ref, err := stager.Stage(context.Background(), Upload{
		Name:     "quote.pdf",
		ByteSize: int64(len(content)),
		MimeType: "application/pdf",
		Body:     strings.NewReader(content),
	})
	require.NoError(t, err)

	assert.Equal(t, "quote.pdf", ref.Name)
	assert.Equal(t, int64(len(content)), ref.ByteSize)
	assert.Equal(t, "application/pdf", ref.MimeType)
	assert.True(t, strings.HasPrefix(ref.StorageLocator, "attachments/"))
	assert.True(t, strings.HasSuffix(ref.StorageLocator, ".pdf"))

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref.StorageLocator)))
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))

	assert.Equal(t, "/attachments/"+ref.StorageLocator, stager.FetchURL(ref.StorageLocator))
}

func TestStageLocatorsAreUnique(t *testing.T) {
	stager, _ := newLocalStager(t)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		ref, err := stager.Stage(context.Background(), Upload{
			Name:     "same-name.txt",
			ByteSize: 4,
			MimeType: "text/plain",
			Body:     strings.NewReader("body"),
		})
		require.NoError(t, err)
		assert.False(t, seen[ref.StorageLocator])
		seen[ref.StorageLocator] = true
	}
}
