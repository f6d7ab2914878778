package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, dir string) *Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := New(ctx, dir, nil)
	require.NoError(t, err)
	require.NotNil(t, r.parser)
	return r
}

func TestTextFromPDF(t *testing.T) {
	r := newReader(t, "")
	data, err := os.ReadFile(filepath.Join("testdata", "resume.pdf"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := r.Text(ctx, "CV.PDF", data)
	require.NoError(t, err)
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "Python developer with Kubernetes and teamwork")
}

func TestReadFile(t *testing.T) {
	r := newReader(t, "")

	text, err := r.ReadFile(context.Background(), filepath.Join("testdata", "resume.pdf"))
	require.NoError(t, err)
	assert.Contains(t, text, "Kubernetes")

	plain := filepath.Join(t.TempDir(), "job.txt")
	require.NoError(t, os.WriteFile(plain, []byte("Looking for Go and SQL"), 0o600))
	text, err = r.ReadFile(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, "Looking for Go and SQL", text)

	_, err = r.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTextErrors(t *testing.T) {
	r := newReader(t, "")

	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{
			name:    "malformed pdf",
			file:    "cv.pdf",
			data:    []byte("%PDF-1.5\nMock PDF content for testing"),
			wantErr: ErrUnreadable,
		},
		{
			name:    "binary text file",
			file:    "cv.txt",
			data:    []byte{0xff, 0xfe, 0x00, 0x41},
			wantErr: ErrUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Text(context.Background(), tt.file, tt.data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSaveStoresUnderUploadDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	r := newReader(t, dir)

	path, err := r.Save("../../My CV.PDF", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".pdf"))
	assert.NotContains(t, filepath.Base(path), "My CV")

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(stored))

	other, err := r.Save("My CV.PDF", []byte("content"))
	require.NoError(t, err)
	assert.NotEqual(t, path, other)

	r.Discard(path)
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveWithoutUploadDir(t *testing.T) {
	r := newReader(t, "")

	path, err := r.Save("/tmp/resumes/cv.txt", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, "cv.txt", path)

	// Nothing was written, so nothing is removed.
	r.Discard(path)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("cv.pdf"))
	assert.True(t, IsPDF("CV.PDF"))
	assert.False(t, IsPDF("cv.pdf.txt"))
	assert.False(t, IsPDF("pdf"))
}
