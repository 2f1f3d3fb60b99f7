package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-callrec-backend/internal/analyzer"
	"github.com/tbourn/go-callrec-backend/internal/analyzer/analyzertest"
	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection serializes transactions on the shared in-memory cache.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// env wires every service against sqlite, the in-memory object store, the
// in-memory queue and the in-process WAV analyzer.
type env struct {
	db         *gorm.DB
	store      *storage.Memory
	queue      *queue.Memory
	calls      *CallService
	recordings *RecordingService
	pipeline   *Pipeline
	recovery   *RecoveryService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := newServiceDB(t)
	store := storage.NewMemory()
	q := queue.NewMemory(64, 20*time.Millisecond)
	t.Cleanup(func() { _ = q.Close() })

	return &env{
		db:         db,
		store:      store,
		queue:      q,
		calls:      NewCallService(db, store),
		recordings: &RecordingService{DB: db, Store: store, Queue: q},
		pipeline: &Pipeline{
			DB:         db,
			Store:      store,
			Analyzer:   &analyzer.WAV{MinSilence: time.Second, ThresholdDBFS: -40},
			ScratchDir: t.TempDir(),
		},
		recovery: &RecoveryService{DB: db, Queue: q},
	}
}

func (e *env) createCall(t *testing.T) *domain.Call {
	t.Helper()
	c, err := e.calls.Create(context.Background(), CreateCallInput{
		Caller:    "+15550000001",
		Receiver:  "+15550000002",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return c
}

func (e *env) submitFixture(t *testing.T, callID string, f analyzertest.Fixture) *domain.Record {
	t.Helper()
	b, err := analyzertest.Bytes(f)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	rec, err := e.recordings.Submit(context.Background(), callID, "call.wav", bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return rec
}

// nextTask pops the next queued record id.
func (e *env) nextTask(t *testing.T) string {
	t.Helper()
	d, err := e.queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if d == nil {
		t.Fatalf("queue is empty")
	}
	_ = d.Ack(context.Background())
	return d.Task.RecordID
}

func (e *env) callStatus(t *testing.T, id string) domain.CallStatus {
	t.Helper()
	c, err := repo.GetCall(context.Background(), e.db, id)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	return c.Status
}

type failingEnqueuer struct{ err error }

func (f failingEnqueuer) Enqueue(context.Context, string) error { return f.err }

var errQueueDown = errors.New("queue down")
