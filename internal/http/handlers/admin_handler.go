package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/utils"
)

// ListFailedTasksResponse wraps a page of dead-letter entries.
type ListFailedTasksResponse struct {
	Tasks      []domain.FailedTask `json:"tasks"`
	Pagination utils.PageMeta      `json:"pagination"`
}

// RetryResponse acknowledges a redriven record.
type RetryResponse struct {
	FailedTaskID string `json:"failed_task_id"`
	RecordID     string `json:"record_id"`
	CallID       string `json:"call_id"`
	Status       string `json:"status" example:"requeued"`
}

// ListFailedTasks godoc
// @ID          listFailedTasks
// @Summary     List dead-lettered processing tasks
// @Tags        Admin
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListFailedTasksResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/failed-tasks [get]
func (h *Handlers) ListFailedTasks(c *gin.Context) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
	items, total, err := h.recovery.ListFailed(c.Request.Context(), p.Number, p.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListFailedTasksResponse{Tasks: items, Pagination: utils.NewPageMeta(p, total)})
}

// RetryFailedTask godoc
// @ID          retryFailedTask
// @Summary     Redrive a dead-lettered record
// @Description Moves the call back to processing, removes the dead letter and enqueues the record again.
// @Tags        Admin
// @Produce     json
//
// @Param       id  path  string  true  "Failed task ID (UUID)"  format(uuid)
//
// @Success     202  {object}  handlers.RetryResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Failed task not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Call is not in a retryable state"
// @Failure     503  {object}  handlers.ErrorResponse  "Queue unavailable"
// @Router      /admin/failed-tasks/{id}/retry [post]
func (h *Handlers) RetryFailedTask(c *gin.Context) {
	ft, err := h.recovery.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusAccepted, RetryResponse{
		FailedTaskID: ft.ID,
		RecordID:     ft.RecordID,
		CallID:       ft.CallID,
		Status:       "requeued",
	})
}
