package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pitchview/internal/api/present"
	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/internal/storage"
)

// HistorySource is the analysis backend's history API.
type HistorySource interface {
	ListHistory(ctx context.Context) ([]models.HistorySummary, error)
	GetHistory(ctx context.Context, id string) (*models.HistoryRecord, error)
}

// HistoryMirror is the local copy of completed analyses.
type HistoryMirror interface {
	ListRecords(ctx context.Context, limit int) ([]models.HistorySummary, error)
	GetRecord(ctx context.Context, id string) (*models.HistoryRecord, error)
	SimilarRecords(ctx context.Context, id string, limit int) ([]storage.SimilarMatch, error)
}

type HistoryHandler struct {
	source HistorySource
	mirror HistoryMirror // optional
	ctrl   *session.Controller
	unit   models.MetricUnit
}

func NewHistoryHandler(source HistorySource, mirror HistoryMirror, ctrl *session.Controller, unit models.MetricUnit) *HistoryHandler {
	return &HistoryHandler{source: source, mirror: mirror, ctrl: ctrl, unit: unit}
}

// List returns history summaries, newest first. ?source=mirror reads the
// local mirror instead of the backend.
func (h *HistoryHandler) List(c *gin.Context) {
	if c.Query("source") == "mirror" {
		if h.mirror == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history mirror not configured"})
			return
		}
		records, err := h.mirror.ListRecords(c.Request.Context(), queryInt(c, "limit", 50))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, present.Summaries(records, "mirror"))
		return
	}

	records, err := h.source.ListHistory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, present.Summaries(records, "backend"))
}

func (h *HistoryHandler) Get(c *gin.Context) {
	rec, err := h.record(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, present.Record(rec, h.unit))
}

// Compare aligns two records by frame number. b is optional.
func (h *HistoryHandler) Compare(c *gin.Context) {
	first, second := c.Query("a"), c.Query("b")
	if first == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter a is required"})
		return
	}

	a, err := h.record(c.Request.Context(), first)
	if err != nil {
		writeRecordError(c, err)
		return
	}
	var bMetrics []models.FrameMetrics
	if second != "" {
		b, err := h.record(c.Request.Context(), second)
		if err != nil {
			writeRecordError(c, err)
			return
		}
		bMetrics = b.AllMetrics
	}

	c.JSON(http.StatusOK, present.Comparison(first, second, series.Compare(a.AllMetrics, bMetrics)))
}

// Load puts a historical record into the playback buffer.
func (h *HistoryHandler) Load(c *gin.Context) {
	rec, err := h.ctrl.LoadHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		writeRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, present.Record(rec, h.unit))
}

func (h *HistoryHandler) Similar(c *gin.Context) {
	if h.mirror == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history mirror not configured"})
		return
	}
	id := c.Param("id")
	matches, err := h.mirror.SimilarRecords(c.Request.Context(), id, queryInt(c, "limit", 5))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, present.Similar(id, matches))
}

// record fetches from the backend and falls back to the mirror when the
// backend cannot serve the record.
func (h *HistoryHandler) record(ctx context.Context, id string) (*models.HistoryRecord, error) {
	rec, err := h.source.GetHistory(ctx, id)
	if err == nil {
		return rec, nil
	}
	if h.mirror == nil {
		return nil, err
	}
	mirrored, merr := h.mirror.GetRecord(ctx, id)
	if merr != nil {
		slog.Warn("history mirror lookup", "id", id, "error", merr)
		return nil, err
	}
	if mirrored == nil {
		return nil, err
	}
	slog.Debug("serving record from mirror", "id", id, "backend_error", err)
	return mirrored, nil
}

func writeRecordError(c *gin.Context, err error) {
	var he *backend.HTTPError
	switch {
	case errors.As(err, &he) && he.NotFound():
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
