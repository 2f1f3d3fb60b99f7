package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

func TestObjectKey_Shape(t *testing.T) {
	a := ObjectKey("c1", "Meeting.WAV")
	b := ObjectKey("c1", "Meeting.WAV")
	if a == b {
		t.Fatalf("keys must be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "calls/c1/") || !strings.HasSuffix(a, ".wav") {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestCleanExt(t *testing.T) {
	cases := map[string]string{
		"a.wav":            ".wav",
		" b.MP3 ":          ".mp3",
		"noext":            "",
		"weird.w@v":        "",
		"dots.tar.gz":      ".gz",
		"long.abcdefghijk": "",
		"":                 "",
	}
	for in, want := range cases {
		if got := cleanExt(in); got != want {
			t.Fatalf("cleanExt(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := contentTypeForKey("calls/x/y.wav"); got != "audio/wav" {
		t.Fatalf("wav: %q", got)
	}
	if got := contentTypeForKey("calls/x/y"); got != "application/octet-stream" {
		t.Fatalf("default: %q", got)
	}
}

func TestMemory_PutGetPresign(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if err := m.Put(ctx, "calls/c1/a.wav", strings.NewReader("RIFF"), 4); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := m.Get(ctx, "calls/c1/a.wav")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "RIFF" {
		t.Fatalf("got %q", b)
	}

	exp := time.Unix(1_700_000_000, 0)
	u1, _ := m.Presign(ctx, "calls/c1/a.wav", exp)
	u2, _ := m.Presign(ctx, "calls/c1/a.wav", exp)
	if u1 != u2 || !strings.Contains(u1, "expires=1700000000") {
		t.Fatalf("presign must be pure: %q vs %q", u1, u2)
	}
}

func TestMemory_Errors(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "get" || !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected StorageError wrapping ErrObjectNotFound, got %v", err)
	}

	m.FailPut = errors.New("bucket offline")
	err = m.Put(ctx, "k", strings.NewReader("x"), 1)
	if !errors.As(err, &se) || se.Op != "put" || se.Key != "k" {
		t.Fatalf("expected put StorageError, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("failed put must not store anything")
	}
}

func TestStorageError_Message(t *testing.T) {
	e := &StorageError{Op: "put", Key: "k", Err: errors.New("boom")}
	if e.Error() != `storage put "k": boom` {
		t.Fatalf("unexpected message %q", e.Error())
	}
	e = &StorageError{Op: "ensure_bucket", Err: errors.New("boom")}
	if e.Error() != "storage ensure_bucket: boom" {
		t.Fatalf("unexpected message %q", e.Error())
	}
	if wrap("get", "k", nil) != nil {
		t.Fatalf("wrap(nil) must be nil")
	}
	if got := wrap("get", "other", e); got != error(e) {
		t.Fatalf("wrap must not double-wrap")
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	g, err := New(context.Background(), config.StorageConfig{Backend: config.StorageMemory})
	if err != nil {
		t.Fatalf("New memory: %v", err)
	}
	if _, ok := g.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", g)
	}
	if _, err := New(context.Background(), config.StorageConfig{Backend: "s3"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

type recordingWriter struct {
	strings.Builder
	closed bool
}

func (w *recordingWriter) Close() error { w.closed = true; return nil }

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteObject_FailedCopyCancelsWithoutFinalizing(t *testing.T) {
	w := &recordingWriter{}
	cancelled := false
	err := writeObject(w, func() { cancelled = true }, "calls/x.wav", io.MultiReader(strings.NewReader("part"), brokenReader{}))

	var se *StorageError
	if !errors.As(err, &se) || se.Op != "put" || se.Key != "calls/x.wav" {
		t.Fatalf("expected put StorageError, got %v", err)
	}
	if !cancelled {
		t.Fatalf("upload context must be cancelled")
	}
	if w.closed {
		t.Fatalf("writer must not be closed; Close would finalize a truncated object")
	}
}

func TestWriteObject_Success_Finalizes(t *testing.T) {
	w := &recordingWriter{}
	cancelled := false
	if err := writeObject(w, func() { cancelled = true }, "k", strings.NewReader("payload")); err != nil {
		t.Fatalf("writeObject: %v", err)
	}
	if !w.closed || cancelled || w.String() != "payload" {
		t.Fatalf("closed=%v cancelled=%v body=%q", w.closed, cancelled, w.String())
	}
}
