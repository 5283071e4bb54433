package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/pitchview/internal/models"
)

const (
	AnalysisStreamName  = "ANALYSIS"
	AnalysisSubjectBase = "analysis"
)

// AnalysisSubject is analysis.<job>; jobs without a backend id yet use
// their local session id.
func AnalysisSubject(ev models.AnalysisEvent) string {
	key := ev.JobID
	if key == "" {
		key = ev.SessionID.String()
	}
	return fmt.Sprintf("%s.%s", AnalysisSubjectBase, key)
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the ANALYSIS stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        AnalysisStreamName,
		Subjects:    []string{AnalysisSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     100000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  time.Minute,
		Description: "Analysis session status changes",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// msgID deduplicates redeliveries of the same status change.
func msgID(ev models.AnalysisEvent) string {
	return ev.SessionID.String() + "-" + string(ev.Status)
}

// PublishAnalysis publishes a status change and waits for the ack.
func (p *Producer) PublishAnalysis(ctx context.Context, ev models.AnalysisEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal analysis event: %w", err)
	}

	_, err = p.js.Publish(ctx, AnalysisSubject(ev), payload, jetstream.WithMsgID(msgID(ev)))
	if err != nil {
		return fmt.Errorf("publish analysis event: %w", err)
	}
	return nil
}

// PublishAnalysisAsync publishes without waiting for the ack. Ack failures
// are logged.
func (p *Producer) PublishAnalysisAsync(ev models.AnalysisEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal analysis event: %w", err)
	}

	fut, err := p.js.PublishAsync(AnalysisSubject(ev), payload, jetstream.WithMsgID(msgID(ev)))
	if err != nil {
		return fmt.Errorf("publish analysis event: %w", err)
	}
	go func() {
		select {
		case <-fut.Ok():
		case err := <-fut.Err():
			slog.Warn("analysis event not acknowledged", "job_id", ev.JobID, "status", ev.Status, "error", err)
		}
	}()
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close waits briefly for pending async publishes, then disconnects.
func (p *Producer) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(2 * time.Second):
	}
	p.nc.Close()
}
