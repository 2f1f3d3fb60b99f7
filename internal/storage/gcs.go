package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

const (
	transferTimeout = 2 * time.Minute
	metaTimeout     = 30 * time.Second
)

// GCS is a Gateway over a single Google Cloud Storage bucket. In emulator
// mode it talks to a fake-gcs server without authentication, downloads over
// the emulator's media endpoint and hands out unsigned media URLs.
type GCS struct {
	client       *storage.Client
	bucket       string
	projectID    string
	emulatorHost string
}

// NewGCS creates the storage client for cfg. It does not touch the bucket;
// call EnsureBucket at startup.
func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCS, error) {
	g := &GCS{
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}

	var opts []option.ClientOption
	switch cfg.Backend {
	case config.StorageGCSEmulator:
		g.emulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", g.emulatorHost)
		opts = append(opts, option.WithoutAuthentication())
		if g.projectID == "" {
			g.projectID = "local"
		}
	default:
		opts = append(clientOptions(cfg), option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	g.client = client

	log.Info().
		Str("component", "storage").
		Str("backend", cfg.Backend).
		Str("bucket", cfg.Bucket).
		Str("emulator_host", g.emulatorHost).
		Msg("object storage initialized")
	return g, nil
}

func clientOptions(cfg config.StorageConfig) []option.ClientOption {
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (g *GCS) isEmulator() bool { return g.emulatorHost != "" }

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }

// EnsureBucket creates the bucket when it does not exist yet.
func (g *GCS) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metaTimeout)
	defer cancel()

	b := g.client.Bucket(g.bucket)
	_, err := b.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return wrap("ensure_bucket", g.bucket, err)
	}
	if g.projectID == "" {
		return wrap("ensure_bucket", g.bucket, errors.New("bucket missing and STORAGE_PROJECT_ID not set"))
	}
	if err := b.Create(ctx, g.projectID, nil); err != nil {
		return wrap("ensure_bucket", g.bucket, err)
	}
	log.Info().Str("component", "storage").Str("bucket", g.bucket).Msg("bucket created")
	return nil
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	return writeObject(w, cancel, key, r)
}

// writeObject streams r into w. Close finalizes the object, so a failed copy
// cancels the upload context instead and nothing is created.
func writeObject(w io.WriteCloser, cancel context.CancelFunc, key string, r io.Reader) error {
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		return wrap("put", key, err)
	}
	if err := w.Close(); err != nil {
		return wrap("put", key, err)
	}
	return nil
}

// readCloserWithCancel ties a context's cancel to the reader's Close so the
// download context stays alive while the caller reads.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, transferTimeout)
	if g.isEmulator() {
		rc, err := g.emulatorDownload(ctx2, key)
		if err != nil {
			cancel()
			return nil, wrap("get", key, err)
		}
		return &readCloserWithCancel{ReadCloser: rc, cancel: cancel}, nil
	}

	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			err = ErrObjectNotFound
		}
		return nil, wrap("get", key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (g *GCS) emulatorDownload(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.emulatorMediaURL(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrObjectNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (g *GCS) emulatorMediaURL(key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		g.emulatorHost,
		url.PathEscape(g.bucket),
		url.PathEscape(key),
	)
}

// Presign returns a V4 signed GET URL valid until expiresAt. The emulator
// does not verify signatures, so in emulator mode the media URL is returned
// with the expiry attached for visibility.
func (g *GCS) Presign(_ context.Context, key string, expiresAt time.Time) (string, error) {
	if g.isEmulator() {
		return fmt.Sprintf("%s&expires=%d", g.emulatorMediaURL(key), expiresAt.Unix()), nil
	}
	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expiresAt,
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", wrap("presign", key, err)
	}
	return u, nil
}
