package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/analyzer"
	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

type cliTestEnv struct {
	dbPath string
	db     *gorm.DB
	store  *storage.Memory
	queue  *queue.Memory
}

// setupCLITestEnv points the configuration at a throwaway SQLite file and the
// in-memory store and queue.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliTestEnv{
		dbPath: filepath.Join(dir, "data", "callrec.db"),
		store:  storage.NewMemory(),
		queue:  queue.NewMemory(16, 20*time.Millisecond),
	}
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", env.dbPath)
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("SCRATCH_DIR", filepath.Join(dir, "scratch"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_ENABLED", "false")
	t.Cleanup(func() { _ = env.queue.Close() })
	return env
}

// newContext returns a command context sharing the env's database, store and
// queue so tests can inspect what a command did.
func (e *cliTestEnv) newContext(t *testing.T) *commandContext {
	t.Helper()
	cctx := newCommandContext()
	db, err := cctx.database()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e.db = db
	cctx.store = e.store
	cctx.queue = e.queue
	t.Cleanup(cctx.close)
	return cctx
}

func runCLI(t *testing.T, cctx *commandContext, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(cctx)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, s, want string) {
	t.Helper()
	if !strings.Contains(s, want) {
		t.Fatalf("expected %q in output:\n%s", want, s)
	}
}

// seedProcessing creates a call with a record and moves it to processing.
func seedProcessing(t *testing.T, db *gorm.DB) (*domain.Call, *domain.Record) {
	t.Helper()
	ctx := context.Background()
	call, err := repo.CreateCall(ctx, db, "+15550000001", "+15550000002", time.Now())
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	rec, err := repo.CreateRecord(ctx, db, call.ID, "call.wav", storage.ObjectKey(call.ID, "call.wav"))
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if err := repo.TransitionCallStatus(ctx, db, call.ID, domain.StatusProcessing, domain.StatusCreated); err != nil {
		t.Fatalf("processing: %v", err)
	}
	return call, rec
}

// seedFailed dead-letters a processing record the way an exhausted worker does.
func seedFailed(t *testing.T, db *gorm.DB) (*domain.Call, *domain.Record) {
	t.Helper()
	call, rec := seedProcessing(t, db)
	p := &services.Pipeline{DB: db}
	lastErr := &analyzer.AnalysisError{Reason: analyzer.ReasonEmptyFile}
	if err := p.MarkFailed(context.Background(), queue.Task{RecordID: rec.ID, EnqueuedAt: time.Now()}, 4, lastErr); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	return call, rec
}
