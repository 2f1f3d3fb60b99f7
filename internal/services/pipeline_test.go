package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-callrec-backend/internal/analyzer"
	"github.com/tbourn/go-callrec-backend/internal/analyzer/analyzertest"
	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

func TestPipeline_EndToEnd_TwelveSecondsOneGap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call := e.createCall(t)
	e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 12, Silences: [][2]float64{{3, 5}}})

	if err := e.pipeline.Run(ctx, e.nextTask(t)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	d, err := e.calls.Get(ctx, call.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Call.Status != domain.StatusReady {
		t.Fatalf("status = %s; want ready", d.Call.Status)
	}
	if d.Record == nil || d.Record.Duration != 12.0 {
		t.Fatalf("duration = %+v; want 12", d.Record)
	}
	if d.Record.Transcription != analyzer.Transcribe(12) || !strings.HasPrefix(d.Record.Transcription, "word-0 word-1") {
		t.Fatalf("transcription = %q", d.Record.Transcription)
	}
	if len(d.Ranges) != 1 || d.Ranges[0].Start != 3 || d.Ranges[0].End != 5 {
		t.Fatalf("ranges = %+v; want [(3,5)]", d.Ranges)
	}
	if d.Record.PresignedURL == "" || !d.Record.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a live presigned URL, got %q until %v", d.Record.PresignedURL, d.Record.ExpiresAt)
	}
}

func TestPipeline_RunTwice_SameResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call := e.createCall(t)
	rec := e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 8, Silences: [][2]float64{{1, 3}, {5, 7}}})
	e.nextTask(t)

	if err := e.pipeline.Run(ctx, rec.ID); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, err := repo.GetCallDetail(ctx, e.db, call.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if err := e.pipeline.Run(ctx, rec.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, err := repo.GetCallDetail(ctx, e.db, call.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}

	if second.Call.Status != domain.StatusReady {
		t.Fatalf("status = %s; want ready", second.Call.Status)
	}
	if len(first.Ranges) != 2 || len(second.Ranges) != len(first.Ranges) {
		t.Fatalf("ranges: first %+v second %+v", first.Ranges, second.Ranges)
	}
	for i := range first.Ranges {
		if first.Ranges[i].Start != second.Ranges[i].Start || first.Ranges[i].End != second.Ranges[i].End {
			t.Fatalf("range %d changed: %+v -> %+v", i, first.Ranges[i], second.Ranges[i])
		}
	}
	if first.Record.Duration != second.Record.Duration || first.Record.Transcription != second.Record.Transcription {
		t.Fatalf("record changed between runs")
	}
}

// emptyRecord stores a zero-byte blob and registers it the way Submit would.
func emptyRecord(t *testing.T, e *env) (*domain.Call, *domain.Record) {
	t.Helper()
	ctx := context.Background()
	call := e.createCall(t)
	key := storage.ObjectKey(call.ID, "empty.wav")
	if err := e.store.Put(ctx, key, strings.NewReader(""), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec, err := repo.CreateRecord(ctx, e.db, call.ID, "empty.wav", key)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if err := repo.TransitionCallStatus(ctx, e.db, call.ID, domain.StatusProcessing, domain.StatusCreated); err != nil {
		t.Fatalf("transition: %v", err)
	}
	return call, rec
}

func TestPipeline_EmptyFile_AnalysisError_StaysProcessing(t *testing.T) {
	e := newEnv(t)
	call, rec := emptyRecord(t, e)

	err := e.pipeline.Run(context.Background(), rec.ID)
	if !analyzer.IsEmptyFile(err) {
		t.Fatalf("expected empty_file AnalysisError, got %v", err)
	}
	if st := e.callStatus(t, call.ID); st != domain.StatusProcessing {
		t.Fatalf("status = %s; want processing", st)
	}
	ranges, _ := repo.ListSilentRanges(context.Background(), e.db, rec.ID)
	if len(ranges) != 0 {
		t.Fatalf("no ranges expected, got %+v", ranges)
	}
}

func TestPipeline_ZeroDurationWAV_IsEmptyFile(t *testing.T) {
	e := newEnv(t)
	call := e.createCall(t)
	rec := e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 0})

	err := e.pipeline.Run(context.Background(), rec.ID)
	if !analyzer.IsEmptyFile(err) {
		t.Fatalf("expected empty_file AnalysisError, got %v", err)
	}
	if st := e.callStatus(t, call.ID); st != domain.StatusProcessing {
		t.Fatalf("status = %s; want processing", st)
	}
}

func TestPipeline_UnknownCallStatus_IsNotRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call := e.createCall(t)
	rec := e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 2})
	e.nextTask(t)
	e.db.Model(&domain.Call{}).Where("id = ?", call.ID).Update("status", "archived")

	policy := queue.RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}
	attempts, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		return e.pipeline.Run(ctx, rec.ID)
	}, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1", attempts)
	}
}

func TestPipeline_MissingRecord_IsNoop(t *testing.T) {
	e := newEnv(t)
	if err := e.pipeline.Run(context.Background(), "does-not-exist"); err != nil {
		t.Fatalf("missing record must complete the task, got %v", err)
	}
}

func TestPipeline_MissingBlob_StorageError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call := e.createCall(t)
	rec, err := repo.CreateRecord(ctx, e.db, call.ID, "gone.wav", "calls/"+call.ID+"/gone.wav")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	err = e.pipeline.Run(ctx, rec.ID)
	var se *storage.StorageError
	if !errors.As(err, &se) || !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected storage not-found, got %v", err)
	}
	// The created -> processing move happened before the download.
	if st := e.callStatus(t, call.ID); st != domain.StatusProcessing {
		t.Fatalf("status = %s; want processing", st)
	}
}

func TestPipeline_FailedCall_Skipped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call, rec := emptyRecord(t, e)
	if err := repo.TransitionCallStatus(ctx, e.db, call.ID, domain.StatusFailed, domain.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := e.pipeline.Run(ctx, rec.ID); err != nil {
		t.Fatalf("dead-lettered call must be skipped, got %v", err)
	}
	if st := e.callStatus(t, call.ID); st != domain.StatusFailed {
		t.Fatalf("status = %s; want failed", st)
	}
}

func TestPipeline_MarkFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call, rec := emptyRecord(t, e)
	lastErr := e.pipeline.Run(ctx, rec.ID)

	task := queue.Task{RecordID: rec.ID, EnqueuedAt: time.Now().UTC()}
	if err := e.pipeline.MarkFailed(ctx, task, 4, lastErr); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if st := e.callStatus(t, call.ID); st != domain.StatusFailed {
		t.Fatalf("status = %s; want failed", st)
	}
	items, total, err := repo.ListFailedTasks(ctx, e.db, 0, 10)
	if err != nil || total != 1 {
		t.Fatalf("failed tasks: total=%d err=%v", total, err)
	}
	ft := items[0]
	if ft.RecordID != rec.ID || ft.CallID != call.ID || ft.Kind != KindAnalysis || ft.Attempts != 4 {
		t.Fatalf("unexpected failed task: %+v", ft)
	}
	if !strings.Contains(string(ft.Payload), `"reason":"empty_file"`) {
		t.Fatalf("payload = %s", ft.Payload)
	}
}

func TestPipeline_MarkFailed_ReadyCallKeepsStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	call := e.createCall(t)
	rec := e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 2})
	if err := e.pipeline.Run(ctx, rec.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := e.pipeline.MarkFailed(ctx, queue.Task{RecordID: rec.ID}, 4, errors.New("late")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if st := e.callStatus(t, call.ID); st != domain.StatusReady {
		t.Fatalf("status = %s; want ready", st)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&analyzer.AnalysisError{Reason: analyzer.ReasonUnreadable}, KindAnalysis},
		{&storage.StorageError{Op: "get", Err: errors.New("x")}, KindStorage},
		{&PersistenceError{Op: "commit_analysis", Err: errors.New("x")}, KindPersistence},
		{errors.New("boom"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, c := range cases {
		if kind, _ := classify(c.err); kind != c.kind {
			t.Fatalf("classify(%v) = %s; want %s", c.err, kind, c.kind)
		}
	}
}

func TestPool_ExhaustsRetries_DeadLetters(t *testing.T) {
	e := newEnv(t)
	call := e.createCall(t)
	rec := e.submitFixture(t, call.ID, analyzertest.Fixture{Seconds: 0})

	ctx, cancel := context.WithCancel(context.Background())
	pool := &queue.Pool{
		Queue:       e.queue,
		Handle:      e.pipeline.Run,
		OnExhausted: e.pipeline.OnExhausted,
		Policy:      queue.RetryPolicy{MaxRetries: 3, Backoff: 5 * time.Millisecond},
		Concurrency: 1,
	}
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Wait()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for e.callStatus(t, call.ID) != domain.StatusFailed {
		if time.Now().After(deadline) {
			t.Fatalf("call never reached failed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	items, _, err := repo.ListFailedTasks(context.Background(), e.db, 0, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("failed tasks = %+v err=%v", items, err)
	}
	if items[0].RecordID != rec.ID || items[0].Attempts != 4 {
		t.Fatalf("unexpected dead letter: %+v", items[0])
	}
}
