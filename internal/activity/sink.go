package activity

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"activity-analytics/internal/contracts"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Sink receives each recorded event after it lands in the buffer. Sinks are
// best-effort: a sink error is logged by the recorder and never reaches the
// recording call site.
type Sink interface {
	Emit(Event) error
}

// LogSink is the minimal sink: it prints events to the process log, the way
// the original console dumped them to the browser console.
type LogSink struct{}

func (LogSink) Emit(event Event) error {
	serialized, err := json.Marshal(event)
	if err != nil {
		return err
	}
	log.Printf("[Activity] %s", serialized)
	return nil
}

// KafkaSink publishes events to the activity topic wrapped in the shared
// envelope, so the ingest side can validate and route them.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	source string
}

func NewKafkaSink(client *kgo.Client, topic, source string) *KafkaSink {
	return &KafkaSink{client: client, topic: topic, source: source}
}

func (s *KafkaSink) Emit(event Event) error {
	payload := contracts.UserActivityPayload{
		Type:       contracts.ActionType(event.EventType),
		Timestamp:  event.Timestamp,
		SessionID:  event.SessionID,
		AgentInfo:  event.AgentInfo,
		Additional: event.Payload,
	}
	if event.HasUser {
		payload.UserID = event.UserID
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	envelope := contracts.Envelope{
		SpecVersion: contracts.SpecVersionV1,
		Domain:      contracts.DomainUserActivity,
		EventType:   event.EventType,
		Source:      s.source,
		Timestamp:   time.Now().UTC(),
		Correlation: map[string]string{"session_id": event.SessionID},
		Payload:     rawPayload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(event.SessionID),
		Value:     data,
		Timestamp: event.Timestamp,
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}
