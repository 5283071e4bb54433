package queue

import (
	"log/slog"
	"time"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/session"
)

type asyncPublisher interface {
	PublishAnalysisAsync(ev models.AnalysisEvent) error
}

// SessionPublisher forwards session status changes to JetStream. Display
// and render events stay local.
type SessionPublisher struct {
	producer asyncPublisher
	now      func() time.Time
}

func NewSessionPublisher(p *Producer) *SessionPublisher {
	return &SessionPublisher{producer: p, now: time.Now}
}

func (p *SessionPublisher) Publish(ev session.Event) {
	if ev.Type != session.EventSession || ev.Session == nil {
		return
	}
	if err := p.producer.PublishAnalysisAsync(models.NewAnalysisEvent(*ev.Session, p.now())); err != nil {
		slog.Warn("publish analysis event", "job_id", ev.Session.JobID, "status", ev.Session.Status, "error", err)
	}
}
