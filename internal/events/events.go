// Package events reports security-relevant gate events. Every event is
// logged; configured sinks such as Kafka receive them from a background
// queue so a slow broker never holds up a request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"participant-gate/internal/client"
	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

type Publisher interface {
	Publish(ctx context.Context, event models.SecurityEvent) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, typ models.SecurityEventType, clientID, file, detail string)
}

const publishTimeout = 5 * time.Second

type Recorder struct {
	logger *zap.Logger
	sinks  []Publisher
	queue  chan models.SecurityEvent
	clock  util.Clock
}

// NewRecorder logs events and forwards them to sinks. queueSize bounds the
// backlog; events beyond it are logged and dropped for the sinks.
func NewRecorder(logger *zap.Logger, queueSize int, clock util.Clock, sinks ...Publisher) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Recorder{
		logger: logger,
		sinks:  sinks,
		queue:  make(chan models.SecurityEvent, queueSize),
		clock:  clock.OrNow(),
	}
}

func (r *Recorder) Emit(_ context.Context, typ models.SecurityEventType, clientID, file, detail string) {
	event := models.SecurityEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		ClientID:   clientID,
		File:       file,
		Detail:     detail,
		OccurredAt: r.clock().UTC(),
	}

	fields := []zap.Field{
		util.String("event_id", event.ID),
		util.String("event_type", string(typ)),
		util.String("client_id", clientID),
		util.String("file", file),
		util.String("detail", detail),
	}
	if typ == models.EventPathViolation {
		r.logger.Error("Security event", fields...)
	} else {
		r.logger.Warn("Security event", fields...)
	}

	if len(r.sinks) == 0 {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("Security event queue full, event not forwarded", util.String("event_id", event.ID))
	}
}

// Run forwards queued events until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-r.queue:
			r.forward(ctx, event)
		}
	}
}

func (r *Recorder) forward(ctx context.Context, event models.SecurityEvent) {
	for _, sink := range r.sinks {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		if err := sink.Publish(pctx, event); err != nil {
			r.logger.Error("Failed to forward security event",
				util.String("event_id", event.ID),
				util.ErrorField(err),
			)
		}
		cancel()
	}
}

// KafkaPublisher writes events as JSON keyed by client id.
type KafkaPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaPublisher(producer *client.KafkaProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.SecurityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}
	return p.producer.ProduceMessage(ctx, p.topic, []byte(event.ClientID), payload, map[string]string{
		"event_type": string(event.Type),
		"event_id":   event.ID,
	})
}
