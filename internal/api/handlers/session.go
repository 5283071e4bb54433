package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pitchview/internal/api/present"
	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/pkg/dto"
)

// maxUploadBytes bounds the multipart form kept in memory; larger files
// spill to disk.
const maxUploadBytes = 32 << 20

type SessionHandler struct {
	ctrl *session.Controller
	unit models.MetricUnit
}

func NewSessionHandler(ctrl *session.Controller, unit models.MetricUnit) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, unit: unit}
}

// Upload starts an analysis from the multipart "file" field.
func (h *SessionHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	s, err := h.ctrl.StartAnalysis(c.Request.Context(), fh.Filename, f)
	if err != nil {
		var ue *backend.UploadError
		switch {
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &ue):
			c.JSON(http.StatusBadGateway, gin.H{"error": ue.Detail})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, present.Session(*s))
}

func (h *SessionHandler) Stop(c *gin.Context) {
	if err := h.ctrl.Stop(); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.state())
}

func (h *SessionHandler) Play(c *gin.Context) {
	if !h.ctrl.Play() && h.ctrl.Len() == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no frames to play"})
		return
	}
	c.JSON(http.StatusOK, present.Cursor(h.ctrl.Cursor()))
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.ctrl.Pause()
	c.JSON(http.StatusOK, present.Cursor(h.ctrl.Cursor()))
}

func (h *SessionHandler) Seek(c *gin.Context) {
	var req dto.SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frame, ok := h.ctrl.Seek(*req.Index)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no frames to seek"})
		return
	}
	cur := h.ctrl.Cursor()
	c.JSON(http.StatusOK, present.Frame(frame, cur.Position, h.ctrl.Len()))
}

func (h *SessionHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.state())
}

func (h *SessionHandler) state() dto.StateResponse {
	resp := dto.StateResponse{
		Display: present.Display(h.ctrl.Display()),
		Cursor:  present.Cursor(h.ctrl.Cursor()),
		Frames:  h.ctrl.Len(),
	}
	if s, ok := h.ctrl.Session(); ok {
		sr := present.Session(s)
		resp.Session = &sr
	}
	return resp
}

// Frame returns the frame under the cursor.
func (h *SessionHandler) Frame(c *gin.Context) {
	v := h.ctrl.View()
	if v.Total == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frames"})
		return
	}
	c.JSON(http.StatusOK, present.Frame(v.Frame, v.Index, v.Total))
}

// FrameImage serves the JPEG under the cursor.
func (h *SessionHandler) FrameImage(c *gin.Context) {
	f := h.ctrl.CurrentFrame()
	if !f.HasImage() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no image for current frame"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", f.Image)
}

// Series returns the trailing metric window ending at the cursor.
func (h *SessionHandler) Series(c *gin.Context) {
	c.JSON(http.StatusOK, present.Series(h.ctrl.View().Series, h.unit))
}
