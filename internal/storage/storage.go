// Package storage is the object store gateway for recording blobs. It hides
// the concrete backend (Google Cloud Storage, the fake-gcs emulator, or an
// in-process map) behind Gateway and reports every backend failure as a
// *StorageError.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

// ErrObjectNotFound is wrapped by StorageError when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Gateway is the object store contract used by the services.
//
// Presign has no side effect besides building the URL: the result depends
// only on (key, expiresAt) and the signing credentials.
type Gateway interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Presign(ctx context.Context, key string, expiresAt time.Time) (string, error)
}

// StorageError is returned for any failed object store operation.
type StorageError struct {
	Op  string // put|get|presign|ensure_bucket
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// ObjectKey builds a unique key for a recording of callID:
// calls/{callID}/{random}{ext}. The extension comes from the original
// filename, NFC-normalized and lowercased.
func ObjectKey(callID, filename string) string {
	return fmt.Sprintf("calls/%s/%s%s", callID, uuid.NewString(), cleanExt(filename))
}

func cleanExt(filename string) string {
	name := norm.NFC.String(strings.TrimSpace(filename))
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// New builds the Gateway selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Gateway, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return NewMemory(), nil
	case config.StorageGCS, config.StorageGCSEmulator:
		return NewGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".m4a"), strings.HasSuffix(s, ".mp4"):
		return "audio/mp4"
	case strings.HasSuffix(s, ".ogg"), strings.HasSuffix(s, ".opus"):
		return "audio/ogg"
	case strings.HasSuffix(s, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(s, ".webm"):
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
