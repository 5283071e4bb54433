package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type HistorySummary struct {
	ID              RecordID `json:"id"`
	UploadTime      string   `json:"upload_time"`
	Filename        string   `json:"filename"`
	AnalysisStatus  string   `json:"analysis_status"`
	FinalPrediction string   `json:"final_prediction"`
}

type HistoryRecord struct {
	HistorySummary
	VideoWidth              int            `json:"video_width"`
	VideoHeight             int            `json:"video_height"`
	AnalysisDurationSeconds float64        `json:"analysis_duration_seconds"`
	AllMetrics              []FrameMetrics `json:"all_metrics"`
}

type FrameMetrics struct {
	FrameNum int       `json:"frame_num"`
	Metrics  MetricMap `json:"metrics"`
}

// FrameMetricsOf strips images from a frame sequence.
func FrameMetricsOf(frames []FrameRecord) []FrameMetrics {
	out := make([]FrameMetrics, 0, len(frames))
	for _, f := range frames {
		out = append(out, FrameMetrics{FrameNum: f.FrameNum, Metrics: f.Metrics})
	}
	return out
}

// RecordID is the backend's opaque record identifier. The backend has sent
// it both as a JSON number and as a string.
type RecordID string

func (r *RecordID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("record id %q: %w", n, err)
	}
	*r = RecordID(n.String())
	return nil
}

func (r RecordID) String() string {
	return string(r)
}
