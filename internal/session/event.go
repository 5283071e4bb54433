package session

import (
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/playback"
)

type EventType string

const (
	EventSession EventType = "session"
	EventDisplay EventType = "display"
	EventRender  EventType = "render"
)

// Event is one change published to viewers. Exactly one of Session,
// Display or View is set, matching Type.
type Event struct {
	Type    EventType          `json:"type"`
	JobID   string             `json:"job_id,omitempty"`
	Session *models.JobSession `json:"session,omitempty"`
	Display *Display           `json:"display,omitempty"`
	View    *playback.View     `json:"view,omitempty"`
}

// Broadcaster fans events out. Publish is called with internal locks held;
// it must not block and must not call back into the Controller.
type Broadcaster interface {
	Publish(ev Event)
}

type BroadcasterFunc func(Event)

func (f BroadcasterFunc) Publish(ev Event) { f(ev) }
