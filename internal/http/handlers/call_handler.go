// Call HTTP handlers.
//
// This file exposes REST endpoints for calls:
//   - POST /calls              (register, Idempotency-Key aware)
//   - GET  /calls              (search, paginated, weak ETag)
//   - GET  /calls/find         (by phone number)
//   - GET  /calls/{id}         (call with recording metadata)
//   - GET  /calls/{id}/record  (recording metadata only)
package handlers

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/http/middleware"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/utils"
)

//
// DTOs
//

// CreateCallRequest is the JSON payload for registering a call.
type CreateCallRequest struct {
	Caller   string `json:"caller"   binding:"required" example:"+15550000001"`
	Receiver string `json:"receiver" binding:"required" example:"+15550000002"`
	// StartedAt defaults to the time of the request.
	StartedAt *time.Time `json:"started_at,omitempty" example:"2024-05-01T10:00:00Z"`
}

// SilentRangeView is one silence interval in seconds.
type SilentRangeView struct {
	Start float64 `json:"start" example:"3"`
	End   float64 `json:"end"   example:"5"`
}

// RecordView is the recording metadata of a call.
type RecordView struct {
	ID            string            `json:"id"`
	Filename      string            `json:"filename"      example:"call.wav"`
	Duration      float64           `json:"duration"      example:"12"`
	Transcription string            `json:"transcription" example:"word-0 word-1"`
	Analyzed      bool              `json:"analyzed"`
	PresignedURL  string            `json:"presigned_url"`
	ExpiresAt     time.Time         `json:"expires_at"`
	SilentRanges  []SilentRangeView `json:"silent_ranges"`
}

// CallDetailResponse is a call with its optional recording.
type CallDetailResponse struct {
	domain.Call
	Record *RecordView `json:"record"`
}

// ListCallsResponse wraps a page of calls.
type ListCallsResponse struct {
	Calls      []domain.Call  `json:"calls"`
	Pagination utils.PageMeta `json:"pagination"`
}

// FindCallsResponse lists calls for a phone number.
type FindCallsResponse struct {
	Calls []domain.Call `json:"calls"`
}

func recordView(rec *domain.Record, ranges []domain.SilentRange) *RecordView {
	if rec == nil {
		return nil
	}
	v := &RecordView{
		ID:            rec.ID,
		Filename:      rec.Filename,
		Duration:      rec.Duration,
		Transcription: rec.Transcription,
		Analyzed:      rec.Analyzed(),
		PresignedURL:  rec.PresignedURL,
		ExpiresAt:     rec.ExpiresAt,
		SilentRanges:  make([]SilentRangeView, len(ranges)),
	}
	for i, r := range ranges {
		v.SilentRanges[i] = SilentRangeView{Start: r.Start, End: r.End}
	}
	return v
}

func detailResponse(d *repo.CallDetail) CallDetailResponse {
	return CallDetailResponse{Call: d.Call, Record: recordView(d.Record, d.Ranges)}
}

//
// Handlers
//

// CreateCall godoc
// @ID          createCall
// @Summary     Register a call
// @Description Registers a call in status created. Repeating a request with the same Idempotency-Key returns the original call with 200.
// @Tags        Calls
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Client key for safe retries"  example(2b5c0c8e-create-1)
// @Param       body             body    handlers.CreateCallRequest  true  "Call"
//
// @Success     201  {object}  domain.Call
// @Success     200  {object}  domain.Call  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls [post]
func (h *Handlers) CreateCall(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "caller and receiver are required")
		return
	}
	in := services.CreateCallInput{Caller: req.Caller, Receiver: req.Receiver}
	if req.StartedAt != nil {
		in.StartedAt = *req.StartedAt
	}
	key, _ := middleware.GetIdempotencyKey(c)

	call, replay, err := h.calls.CreateIdempotent(c.Request.Context(), key, in)
	if err != nil {
		writeError(c, err)
		return
	}
	if replay {
		c.Header("Idempotent-Replayed", "true")
		ok(c, http.StatusOK, call)
		return
	}
	c.Header("Location", c.FullPath()+"/"+call.ID)
	ok(c, http.StatusCreated, call)
}

func filterFromQuery(c *gin.Context) services.CallFilter {
	return services.CallFilter{
		Status:   c.Query("status"),
		Caller:   c.Query("caller"),
		Receiver: c.Query("receiver"),
	}
}

// listETag hashes the filter so phone numbers never appear in headers.
func listETag(f services.CallFilter, p utils.Page, count int64, last *time.Time) string {
	var ts int64
	if last != nil {
		ts = last.UnixNano()
	}
	sum := sha1.Sum([]byte(strings.Join([]string{f.Status, f.Caller, f.Receiver}, "\x00")))
	return fmt.Sprintf(`W/"calls:%s:%d:%d:%d:%d"`, hex.EncodeToString(sum[:6]), p.Number, p.Size, count, ts)
}

// ListCalls godoc
// @ID          listCalls
// @Summary     Search calls (paginated)
// @Description Returns calls newest first. caller and receiver are substring filters. Supports weak ETag via If-None-Match.
// @Tags        Calls
// @Produce     json
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       status         query   string  false  "created|processing|ready|failed"
// @Param       caller         query   string  false  "Caller substring"
// @Param       receiver       query   string  false  "Receiver substring"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListCallsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls [get]
func (h *Handlers) ListCalls(c *gin.Context) {
	ctx := c.Request.Context()
	f := filterFromQuery(c)
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)

	// ETag pre-check (best effort).
	if count, last, err := h.calls.Stats(ctx, f); err == nil {
		etag := listETag(f, p, count, last)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.calls.Search(ctx, f, p.Number, p.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListCallsResponse{Calls: items, Pagination: utils.NewPageMeta(p, total)})
}

// FindCalls godoc
// @ID          findCalls
// @Summary     Find calls by phone number
// @Description Lists calls where the number is the caller or the receiver, newest first.
// @Tags        Calls
// @Produce     json
//
// @Param       phone_number  query  string  true  "Phone number"  example(+15550000001)
//
// @Success     200  {object}  handlers.FindCallsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/find [get]
func (h *Handlers) FindCalls(c *gin.Context) {
	phone := strings.TrimSpace(c.Query("phone_number"))
	if phone == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone_number is required")
		return
	}
	calls, err := h.calls.FindByPhone(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, FindCallsResponse{Calls: calls})
}

// GetCall godoc
// @ID          getCall
// @Summary     Get a call
// @Description Returns the call and, when a recording exists, its metadata, silence intervals and a presigned URL valid for at least one more minute.
// @Tags        Calls
// @Produce     json
//
// @Param       id  path  string  true  "Call ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.CallDetailResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Object store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id} [get]
func (h *Handlers) GetCall(c *gin.Context) {
	d, err := h.calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, detailResponse(d))
}

// GetRecord godoc
// @ID          getRecord
// @Summary     Get the recording of a call
// @Tags        Calls
// @Produce     json
//
// @Param       id  path  string  true  "Call ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.RecordView
// @Failure     404  {object}  handlers.ErrorResponse  "Call or recording not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Object store unavailable"
// @Router      /calls/{id}/record [get]
func (h *Handlers) GetRecord(c *gin.Context) {
	d, err := h.calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if d.Record == nil {
		writeError(c, services.ErrRecordNotFound)
		return
	}
	ok(c, http.StatusOK, recordView(d.Record, d.Ranges))
}
