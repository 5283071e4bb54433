package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionUploading SessionStatus = "uploading"
	SessionStreaming SessionStatus = "streaming"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionStopped
}

// CanTransition reports whether a session may move from one status to another.
// Failed and stopped are only reachable from streaming.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionUploading:
		return to == SessionStreaming
	case SessionStreaming:
		return to == SessionCompleted || to == SessionFailed || to == SessionStopped
	default:
		return false
	}
}

// JobSession is one upload-and-analyse run. JobID is the record id the
// backend returned from the upload.
type JobSession struct {
	ID              uuid.UUID     `json:"id"`
	JobID           string        `json:"job_id"`
	Filename        string        `json:"filename"`
	Status          SessionStatus `json:"status"`
	FinalPrediction string        `json:"final_prediction,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}
