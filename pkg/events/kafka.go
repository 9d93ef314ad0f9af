package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeSongAdded         EventType = "song_added"
	EventTypeHypeUpdate        EventType = "hype_update"
	EventTypeNowPlayingChanged EventType = "now_playing_changed"
	EventTypeSkipTriggered     EventType = "skip_triggered"
)

// Event is the envelope written to the broker and fanned out to live views.
type Event struct {
	Type      EventType       `json:"type"`
	VenueID   string          `json:"venue_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher pushes venue events to whatever transport is wired in. The
// engine treats publishing as best-effort; callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NewEvent wraps a payload struct into an Event envelope.
func NewEvent(eventType EventType, venueID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Event{
		Type:      eventType,
		VenueID:   venueID,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
	}
}

func (k *KafkaClient) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(uuid.New().String()),
		Value: raw,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write message: %w", err)
	}
	return nil
}

// Consume reads events until ctx is cancelled, passing each to handler.
func (k *KafkaClient) Consume(ctx context.Context, handler func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				return fmt.Errorf("events: read message: %w", err)
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("events: unmarshal event: %w", err)
			}
			if err := handler(event); err != nil {
				return fmt.Errorf("events: handle event: %w", err)
			}
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("events: close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("events: close reader: %w", err)
	}
	return nil
}

// Event payload types.

type SongAddedPayload struct {
	SongID string `json:"song_id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type HypeUpdatePayload struct {
	SongID string `json:"song_id"`
	Hype   int    `json:"hype"`
}

type NowPlayingPayload struct {
	SongID string `json:"song_id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type SkipTriggeredPayload struct {
	TrackID string `json:"track_id"`
	Votes   int    `json:"votes"`
}
