package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/noah-isme/weekend-academy-api/pkg/config"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

// LocalStorage persists uploads on disk under a base directory and hands out
// URLs relative to a public base path.
type LocalStorage struct {
	baseDir string
	baseURL string
	maxSize int64
	allowed map[string]struct{}
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(cfg config.UploadsConfig) (*LocalStorage, error) {
	baseDir := cfg.StorageDir
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(m)] = struct{}{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &LocalStorage{baseDir: baseDir, baseURL: baseURL, maxSize: cfg.MaxFileSizeBytes, allowed: allowed}, nil
}

// Put stores data under folder and returns its public URL. The content type is
// sniffed from the bytes, never trusted from the client.
func (s *LocalStorage) Put(ctx context.Context, folder string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxSize))
	}
	mtype := mimetype.Detect(data)
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[strings.ToLower(mtype.String())]; !ok {
			return "", appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("content type %s not allowed", mtype.String()))
		}
	}

	rel := path.Join(sanitizeFolder(folder), time.Now().UTC().Format("2006/01/02"), uuid.NewString()+mtype.Extension())
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return s.baseURL + "/" + rel, nil
}

// Dir exposes the root directory so the router can serve it statically.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

// BaseURL is the public prefix returned by Put.
func (s *LocalStorage) BaseURL() string {
	return s.baseURL
}

func sanitizeFolder(folder string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" || folder == "." {
		return "misc"
	}
	return folder
}
