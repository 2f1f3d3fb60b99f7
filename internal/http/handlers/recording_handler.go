package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MultipartOverhead is the framing allowance on top of the file size when
// the whole request body is capped.
const MultipartOverhead = 64 << 10

// UploadResponse acknowledges a stored recording.
type UploadResponse struct {
	RecordID   string `json:"record_id"   example:"8a6e0804-2bd0-4672-b79d-d97027f9071a"`
	CallID     string `json:"call_id"     example:"2b5c0c8e-4d0c-4a43-9d8b-0b9ef1d3b0aa"`
	ObjectPath string `json:"object_path" example:"calls/2b5c0c8e-4d0c-4a43-9d8b-0b9ef1d3b0aa/8a6e0804-2bd0-4672-b79d-d97027f9071a.wav"`
}

// UploadRecording godoc
// @ID          uploadRecording
// @Summary     Upload the recording of a call
// @Description Stores the audio file, attaches it to the call and schedules analysis. A call accepts exactly one recording.
// @Tags        Recordings
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       id    path      string  true  "Call ID (UUID)"  format(uuid)
// @Param       file  formData  file    true  "Audio file"
//
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or empty file"
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Recording already exists"
// @Failure     413  {object}  handlers.ErrorResponse  "Recording too large"
// @Failure     502  {object}  handlers.ErrorResponse  "Object store unavailable"
// @Failure     503  {object}  handlers.ErrorResponse  "Processing could not be scheduled"
// @Router      /calls/{id}/recording [post]
func (h *Handlers) UploadRecording(c *gin.Context) {
	if h.maxUpload > 0 && c.Request.ContentLength > h.maxUpload+MultipartOverhead {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "recording exceeds the upload limit")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var mb *http.MaxBytesError
		if errors.As(err, &mb) || isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "recording exceeds the upload limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' is required")
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "recording exceeds the upload limit")
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	rec, err := h.recordings.Submit(c.Request.Context(), c.Param("id"), fh.Filename, f, fh.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, UploadResponse{RecordID: rec.ID, CallID: rec.CallID, ObjectPath: rec.ObjectPath})
}
