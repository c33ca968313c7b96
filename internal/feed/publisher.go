package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/fundscope/indexer/internal/platform/storage"
)

// StreamConfig defines the activity stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	Retention jetstream.RetentionPolicy
	MaxAge    time.Duration
	MaxBytes  int64
	Replicas  int
}

// DefaultStreamConfig returns the stream configuration for campaign
// activity fanout.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:      "ACTIVITY",
		Subjects:  []string{"activity.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024, // 1GB max
		Replicas:  1,
	}
}

// EnsureStream creates or updates the activity stream. Idempotent, safe
// to call on every startup.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Retention:   cfg.Retention,
		MaxAge:      cfg.MaxAge,
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
		Description: "Campaign activity events for downstream fanout",
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// SubjectForEvent returns the subject an event is published on.
// Format: activity.events.<event_name>
func SubjectForEvent(eventName string) string {
	return "activity.events." + strings.ToLower(eventName)
}

// Message is the wire form of one activity event.
type Message struct {
	TxHash      string            `json:"tx_hash"`
	LogIndex    int32             `json:"log_index"`
	BlockNumber int64             `json:"block_number"`
	Campaign    string            `json:"campaign"`
	Event       string            `json:"event"`
	Args        map[string]string `json:"args"`
	ObservedAt  time.Time         `json:"observed_at"`
}

// Publisher writes newly indexed events to the activity stream.
type Publisher struct {
	js     jetstream.JetStream
	stream string
}

// NewPublisher ensures the activity stream exists and returns a
// publisher bound to it.
func NewPublisher(ctx context.Context, client *Client, cfg StreamConfig) (*Publisher, error) {
	if _, err := EnsureStream(ctx, client.JetStream(), cfg); err != nil {
		return nil, err
	}
	return &Publisher{js: client.JetStream(), stream: cfg.Name}, nil
}

// Publish sends one event to the stream. The (tx_hash, log_index) pair
// doubles as the JetStream dedup id, so a replay that slips past the
// ledger check still publishes at most once.
func (p *Publisher) Publish(ctx context.Context, ev *storage.ChainEvent) error {
	msg := Message{
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		BlockNumber: ev.BlockNumber,
		Campaign:    ev.Campaign,
		Event:       ev.Name,
		Args:        ev.Args,
		ObservedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal activity message: %w", err)
	}

	msgID := fmt.Sprintf("%s-%d", ev.TxHash, ev.LogIndex)
	_, err = p.js.Publish(ctx, SubjectForEvent(ev.Name), payload, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}
