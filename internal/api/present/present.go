// Package present converts session, playback and history values into the
// wire DTOs served to viewers.
package present

import (
	"encoding/base64"
	"time"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/playback"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/internal/storage"
	"github.com/your-org/pitchview/pkg/dto"
)

func Session(s models.JobSession) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:              s.ID,
		JobID:           s.JobID,
		Filename:        s.Filename,
		Status:          string(s.Status),
		FinalPrediction: s.FinalPrediction,
		ErrorMessage:    s.ErrorMessage,
		StartedAt:       s.StartedAt.Format(time.RFC3339),
	}
	if s.FinishedAt != nil {
		resp.FinishedAt = s.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func Display(d session.Display) dto.DisplayResponse {
	return dto.DisplayResponse{
		Status:          d.Status,
		Error:           d.Error,
		Progress:        d.Progress,
		ProgressVisible: d.ProgressVisible,
		Prediction:      d.Prediction,
		PredictionClass: string(d.PredictionClass),
		CanvasWidth:     d.CanvasWidth,
		CanvasHeight:    d.CanvasHeight,
		SliderMax:       d.SliderMax,
		UploadEnabled:   d.UploadEnabled,
		StopEnabled:     d.StopEnabled,
		PlaybackEnabled: d.PlaybackEnabled,
		RecordID:        d.RecordID,
	}
}

func Cursor(c models.Cursor) dto.CursorResponse {
	return dto.CursorResponse{Position: c.Position, Playing: c.Playing}
}

func Frame(f models.FrameRecord, index, total int) dto.FrameResponse {
	resp := dto.FrameResponse{
		Index:    index,
		Total:    total,
		FrameNum: f.FrameNum,
		Metrics:  make(map[string]float64, len(f.Metrics)),
	}
	for k, v := range f.Metrics {
		resp.Metrics[string(k)] = v
	}
	if f.HasImage() {
		resp.Image = base64.StdEncoding.EncodeToString(f.Image)
	}
	return resp
}

func Series(s series.Series, unit models.MetricUnit) dto.SeriesResponse {
	return dto.SeriesResponse{
		Labels: s.Labels,
		Lines:  lines(s.Lines),
		Legend: Legend(unit),
	}
}

// Legend maps each metric key to its chart label.
func Legend(unit models.MetricUnit) map[string]string {
	out := make(map[string]string, len(models.AllMetrics))
	for _, k := range models.AllMetrics {
		out[string(k)] = k.Label(unit)
	}
	return out
}

func lines(in map[models.MetricKey][]*float64) map[string][]*float64 {
	out := make(map[string][]*float64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func Summary(s models.HistorySummary) dto.HistorySummaryResponse {
	return dto.HistorySummaryResponse{
		ID:              s.ID.String(),
		UploadTime:      s.UploadTime,
		Filename:        s.Filename,
		AnalysisStatus:  s.AnalysisStatus,
		FinalPrediction: s.FinalPrediction,
	}
}

func Summaries(records []models.HistorySummary, source string) dto.HistoryListResponse {
	resp := dto.HistoryListResponse{
		Records: make([]dto.HistorySummaryResponse, 0, len(records)),
		Source:  source,
	}
	for _, r := range records {
		resp.Records = append(resp.Records, Summary(r))
	}
	resp.Total = len(resp.Records)
	return resp
}

func Record(r *models.HistoryRecord, unit models.MetricUnit) dto.HistoryRecordResponse {
	return dto.HistoryRecordResponse{
		HistorySummaryResponse:  Summary(r.HistorySummary),
		VideoWidth:              r.VideoWidth,
		VideoHeight:             r.VideoHeight,
		AnalysisDurationSeconds: r.AnalysisDurationSeconds,
		Frames:                  len(r.AllMetrics),
		Series:                  Series(series.FromHistory(r.AllMetrics), unit),
	}
}

func Comparison(first, second string, c series.Comparison) dto.CompareResponse {
	return dto.CompareResponse{
		First:  first,
		Second: second,
		Labels: c.Labels,
		A:      lines(c.First),
		B:      lines(c.Second),
	}
}

func Similar(id string, matches []storage.SimilarMatch) dto.SimilarResponse {
	resp := dto.SimilarResponse{ID: id, Matches: make([]dto.SimilarMatchResponse, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.SimilarMatchResponse{
			HistorySummaryResponse: Summary(m.HistorySummary),
			Distance:               m.Distance,
		})
	}
	return resp
}

// Event converts a session event into its websocket message.
func Event(ev session.Event, unit models.MetricUnit) dto.WSEvent {
	out := dto.WSEvent{Type: string(ev.Type), JobID: ev.JobID}
	if ev.Session != nil {
		s := Session(*ev.Session)
		out.Session = &s
	}
	if ev.Display != nil {
		d := Display(*ev.Display)
		out.Display = &d
	}
	if ev.View != nil {
		out.Frame, out.Cursor, out.Series = view(*ev.View, unit)
	}
	return out
}

func view(v playback.View, unit models.MetricUnit) (*dto.FrameResponse, *dto.CursorResponse, *dto.SeriesResponse) {
	f := Frame(v.Frame, v.Index, v.Total)
	c := Cursor(v.Cursor)
	s := Series(v.Series, unit)
	return &f, &c, &s
}
