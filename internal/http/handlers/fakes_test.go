package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/services"
)

// ---------- service fakes ----------

type fakeCalls struct {
	created  *domain.Call
	replay   bool
	gotKey   string
	gotInput services.CreateCallInput

	detail *repo.CallDetail
	calls  []domain.Call
	total  int64
	last   *time.Time
	filter services.CallFilter
	page   [2]int

	searchHits int
	err        error
}

func (f *fakeCalls) CreateIdempotent(_ context.Context, key string, in services.CreateCallInput) (*domain.Call, bool, error) {
	f.gotKey, f.gotInput = key, in
	return f.created, f.replay, f.err
}

func (f *fakeCalls) Get(context.Context, string) (*repo.CallDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func (f *fakeCalls) FindByPhone(_ context.Context, phone string) ([]domain.Call, error) {
	f.filter.Caller = phone
	return f.calls, f.err
}

func (f *fakeCalls) Search(_ context.Context, flt services.CallFilter, page, size int) ([]domain.Call, int64, error) {
	f.searchHits++
	f.filter, f.page = flt, [2]int{page, size}
	return f.calls, f.total, f.err
}

func (f *fakeCalls) Stats(context.Context, services.CallFilter) (int64, *time.Time, error) {
	return f.total, f.last, f.err
}

type fakeRecordings struct {
	gotCall, gotName string
	gotBody          []byte
	gotSize          int64
	err              error
}

func (f *fakeRecordings) Submit(_ context.Context, callID, filename string, body io.Reader, size int64) (*domain.Record, error) {
	f.gotCall, f.gotName, f.gotSize = callID, filename, size
	f.gotBody, _ = io.ReadAll(body)
	if f.err != nil {
		return nil, f.err
	}
	if size == 0 {
		return nil, services.ErrEmptyRecording
	}
	return &domain.Record{ID: "r1", CallID: callID, Filename: filename, ObjectPath: "calls/" + callID + "/r1.wav"}, nil
}

type fakeRecovery struct {
	tasks []domain.FailedTask
	total int64
	task  *domain.FailedTask
	err   error
}

func (f *fakeRecovery) ListFailed(context.Context, int, int) ([]domain.FailedTask, int64, error) {
	return f.tasks, f.total, f.err
}

func (f *fakeRecovery) Retry(context.Context, string) (*domain.FailedTask, error) {
	return f.task, f.err
}

// ---------- router ----------

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.POST("/calls", h.CreateCall)
	r.GET("/calls", h.ListCalls)
	r.GET("/calls/find", h.FindCalls)
	r.GET("/calls/:id", h.GetCall)
	r.GET("/calls/:id/record", h.GetRecord)
	r.POST("/calls/:id/recording", h.UploadRecording)
	r.GET("/admin/failed-tasks", h.ListFailedTasks)
	r.POST("/admin/failed-tasks/:id/retry", h.RetryFailedTask)
	return r
}
