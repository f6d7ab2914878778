// Package ingest turns uploaded resume files into plain text and keeps the
// originals under the upload directory.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/logger"
)

var (
	// ErrUnsupported is returned for files that are neither PDF nor UTF-8 text.
	ErrUnsupported = errors.New("unsupported document")
	// ErrUnreadable is returned when a PDF cannot be parsed or holds no text.
	ErrUnreadable = errors.New("unreadable document")
)

const pdfExt = ".pdf"

type Reader struct {
	parser    *pdf.PDFParser
	uploadDir string
	logger    *zap.Logger
}

// New creates a Reader storing uploads under uploadDir. An empty uploadDir
// disables storing.
func New(ctx context.Context, uploadDir string, log *zap.Logger) (*Reader, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("creating pdf parser: %w", err)
	}

	return &Reader{
		parser:    p,
		uploadDir: strings.TrimSpace(uploadDir),
		logger:    logger.WithStage(logger.OrNop(log), "ingest"),
	}, nil
}

// IsPDF reports whether name carries a .pdf extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), pdfExt)
}

// Text returns the plain text of the document called name.
func (r *Reader) Text(ctx context.Context, name string, data []byte) (string, error) {
	if !IsPDF(name) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupported, filepath.Base(name))
		}
		return string(data), nil
	}

	docs, err := r.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(name),
		einoParser.WithExtraMeta(map[string]any{"source": filepath.Base(name)}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnreadable, filepath.Base(name), err)
	}

	var b strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		b.WriteString(doc.Content)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: %s has no text layer", ErrUnreadable, filepath.Base(name))
	}

	r.logger.Debug("pdf text extracted",
		zap.String("file", filepath.Base(name)),
		zap.Int("pages", len(docs)),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// ReadFile reads the document at path and returns its text.
func (r *Reader) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return r.Text(ctx, path, data)
}

// Save writes data under the upload directory with a random file name and
// returns the stored path. Without an upload directory the base name of the
// original file is returned and nothing is written.
func (r *Reader) Save(name string, data []byte) (string, error) {
	base := filepath.Base(name)
	if r.uploadDir == "" {
		return base, nil
	}

	if err := os.MkdirAll(r.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(r.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(base)))
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}

	r.logger.Debug("upload stored", zap.String("file", base), zap.String("path", path))
	return path, nil
}

// Discard removes a file written by Save.
func (r *Reader) Discard(path string) {
	if r.uploadDir == "" || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("removing stored upload", zap.String("path", path), zap.Error(err))
	}
}
