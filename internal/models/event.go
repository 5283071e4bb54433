package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisEvent is published on every session status change.
type AnalysisEvent struct {
	SessionID       uuid.UUID     `json:"session_id"`
	JobID           string        `json:"job_id"`
	Filename        string        `json:"filename"`
	Status          SessionStatus `json:"status"`
	FinalPrediction string        `json:"final_prediction,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

func NewAnalysisEvent(s JobSession, at time.Time) AnalysisEvent {
	return AnalysisEvent{
		SessionID:       s.ID,
		JobID:           s.JobID,
		Filename:        s.Filename,
		Status:          s.Status,
		FinalPrediction: s.FinalPrediction,
		ErrorMessage:    s.ErrorMessage,
		Timestamp:       at,
	}
}
