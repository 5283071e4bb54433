package dto

import "github.com/google/uuid"

type SessionResponse struct {
	ID              uuid.UUID `json:"id"`
	JobID           string    `json:"job_id,omitempty"`
	Filename        string    `json:"filename"`
	Status          string    `json:"status"`
	FinalPrediction string    `json:"final_prediction,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StartedAt       string    `json:"started_at"`
	FinishedAt      string    `json:"finished_at,omitempty"`
}

// DisplayResponse is the page state: status and error regions, progress,
// prediction and which controls are enabled.
type DisplayResponse struct {
	Status          string  `json:"status,omitempty"`
	Error           string  `json:"error,omitempty"`
	Progress        float64 `json:"progress"`
	ProgressVisible bool    `json:"progress_visible"`
	Prediction      string  `json:"prediction,omitempty"`
	PredictionClass string  `json:"prediction_class"`
	CanvasWidth     int     `json:"canvas_width"`
	CanvasHeight    int     `json:"canvas_height"`
	SliderMax       int     `json:"slider_max"`
	UploadEnabled   bool    `json:"upload_enabled"`
	StopEnabled     bool    `json:"stop_enabled"`
	PlaybackEnabled bool    `json:"playback_enabled"`
	RecordID        string  `json:"record_id,omitempty"`
}

type CursorResponse struct {
	Position int  `json:"position"`
	Playing  bool `json:"playing"`
}

type StateResponse struct {
	Session *SessionResponse `json:"session,omitempty"`
	Display DisplayResponse  `json:"display"`
	Cursor  CursorResponse   `json:"cursor"`
	Frames  int              `json:"frames"`
}

type SeekRequest struct {
	Index *int `json:"index" binding:"required"`
}

// FrameResponse is one frame at a cursor position. Image is base64 JPEG.
type FrameResponse struct {
	Index    int                `json:"index"`
	Total    int                `json:"total"`
	FrameNum int                `json:"frame_num"`
	Metrics  map[string]float64 `json:"metrics"`
	Image    string             `json:"image,omitempty"`
}
