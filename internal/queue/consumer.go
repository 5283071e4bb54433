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

type AnalysisHandler func(ctx context.Context, ev models.AnalysisEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

type WatchOptions struct {
	// Durable names a durable consumer; empty creates an ephemeral one.
	Durable string
	// FromStart replays retained events before following new ones.
	FromStart bool
	// JobID limits delivery to one job.
	JobID string
}

func (o WatchOptions) consumerConfig() jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Name:          o.Durable,
		Durable:       o.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: AnalysisSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if o.FromStart {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if o.JobID != "" {
		cfg.FilterSubject = AnalysisSubjectBase + "." + o.JobID
	}
	return cfg
}

// ConsumeAnalysis delivers analysis events to handler until ctx is done.
// The returned channel closes when the fetch loop exits.
func (c *Consumer) ConsumeAnalysis(ctx context.Context, opts WatchOptions, handler AnalysisHandler) (<-chan struct{}, error) {
	stream, err := c.js.Stream(ctx, AnalysisStreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", AnalysisStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, opts.consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create consumer %q: %w", opts.Durable, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch analysis events", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				ev, err := DecodeAnalysisEvent(msg.Data())
				if err != nil {
					slog.Error("decode analysis event", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process analysis event", "job_id", ev.JobID, "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("analysis consumer started", "consumer", opts.Durable, "from_start", opts.FromStart)
	return done, nil
}

func DecodeAnalysisEvent(data []byte) (models.AnalysisEvent, error) {
	var ev models.AnalysisEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal analysis event: %w", err)
	}
	if ev.Status == "" {
		return ev, fmt.Errorf("analysis event without status")
	}
	return ev, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
