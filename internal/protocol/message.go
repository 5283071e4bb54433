// Package protocol converts raw analysis-stream payloads into typed messages.
//
// The backend does not tag its messages; the variant is decided by which
// fields are present. Parse performs that classification once, at the
// transport boundary, so nothing downstream inspects raw JSON.
package protocol

import "github.com/your-org/pitchview/internal/models"

type Kind string

const (
	KindVideoMeta   Kind = "video_meta"
	KindProgress    Kind = "progress"
	KindFrame       Kind = "frame"
	KindBatchResult Kind = "batch_result"
	KindError       Kind = "error"
)

// Message is one of VideoMetaMsg, ProgressMsg, FrameMsg, BatchResultMsg or ErrorMsg.
type Message interface {
	Kind() Kind
	// Terminal reports whether no further messages are expected for the job.
	Terminal() bool
	sealed()
}

type VideoMetaMsg struct {
	Meta models.VideoMeta
}

type ProgressMsg struct {
	Progress models.Progress
}

type FrameMsg struct {
	Frame models.FrameRecord
}

type BatchResultMsg struct {
	Result models.BatchResult
}

type ErrorMsg struct {
	Message string
}

func (VideoMetaMsg) Kind() Kind   { return KindVideoMeta }
func (ProgressMsg) Kind() Kind    { return KindProgress }
func (FrameMsg) Kind() Kind       { return KindFrame }
func (BatchResultMsg) Kind() Kind { return KindBatchResult }
func (ErrorMsg) Kind() Kind       { return KindError }

func (VideoMetaMsg) Terminal() bool   { return false }
func (ProgressMsg) Terminal() bool    { return false }
func (FrameMsg) Terminal() bool       { return false }
func (BatchResultMsg) Terminal() bool { return true }
func (ErrorMsg) Terminal() bool       { return true }

func (VideoMetaMsg) sealed()   {}
func (ProgressMsg) sealed()    {}
func (FrameMsg) sealed()       {}
func (BatchResultMsg) sealed() {}
func (ErrorMsg) sealed()       {}
