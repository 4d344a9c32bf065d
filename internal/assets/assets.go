// Package assets stores uploaded images on local disk and hands back the
// public URL they are served under.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vivenzalife/vivenza/internal/apperr"
)

// Storage is what the services need from an asset backend.
type Storage interface {
	Store(ctx context.Context, r io.Reader, suggestedName string) (string, error)
}

type LocalStore struct {
	dir          string
	publicPrefix string
	maxSize      int64
	now          func() time.Time
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

func NewLocalStore(dir, publicPrefix string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{
		dir:          dir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		maxSize:      maxSize,
		now:          time.Now,
	}, nil
}

// Store writes the upload and returns its public URL. The content type is
// sniffed only to pick the file extension.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
	}
	if int64(len(data)) > limit {
		return "", apperr.New(apperr.UploadFailed, "file too large")
	}

	filename := s.filename(suggestedName, mimetype.Detect(data).Extension())
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0644); err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
	}

	return s.publicPrefix + "/" + filename, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) filename(suggested, ext string) string {
	base := filepath.Base(suggested)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = unsafeChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == "_" {
		base = "upload"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	return strconv.FormatInt(s.now().UnixNano(), 10) + "_" + base + ext
}

// Memory keeps assets in a map. Tests use it where disk access is noise.
type Memory struct {
	Files map[string][]byte
	Err   error
}

func NewMemory() *Memory {
	return &Memory{Files: make(map[string][]byte)}
}

func (m *Memory) Store(_ context.Context, r io.Reader, suggestedName string) (string, error) {
	if m.Err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, "failed to store file", m.Err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", apperr.Wrap(apperr.UploadFailed, "failed to store file", err)
	}
	url := "/mem/" + strconv.Itoa(len(m.Files)) + "_" + filepath.Base(suggestedName)
	m.Files[url] = buf.Bytes()
	return url, nil
}
