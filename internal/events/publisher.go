// Package events publishes session lifecycle events over watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/ieltsprep/internal/session"
)

const (
	TypeSessionStarted = "session.started"
	TypeSessionGraded  = "session.graded"
	TypeSessionClosed  = "session.closed"

	source  = "ieltsd"
	version = "1"
)

// Backend names accepted by New.
const (
	BackendNone      = "none"
	BackendGoChannel = "gochannel"
	BackendKafka     = "kafka"
)

// Envelope is the JSON body of every message.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// GradedPayload is the data of a session.graded event.
type GradedPayload struct {
	SessionID      string       `json:"session_id"`
	TestSlug       string       `json:"test_slug"`
	TestType       string       `json:"test_type"`
	User           session.User `json:"user"`
	Correct        int          `json:"correct"`
	Total          int          `json:"total"`
	Band           float64      `json:"band"`
	Scale          string       `json:"scale"`
	Reason         string       `json:"reason"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	Missing        []int        `json:"missing,omitempty"`
}

func NewGradedPayload(g session.Graded) GradedPayload {
	return GradedPayload{
		SessionID:      g.SessionID,
		TestSlug:       g.TestSlug,
		TestType:       string(g.TestType),
		User:           g.User,
		Correct:        g.Outcome.Summary.Correct,
		Total:          g.Outcome.Summary.Total,
		Band:           g.Outcome.Band,
		Scale:          g.Outcome.Scale,
		Reason:         string(g.Reason),
		ElapsedSeconds: g.ElapsedSeconds,
		Missing:        g.Missing,
	}
}

type Config struct {
	Backend      string
	KafkaBrokers []string
	Topic        string
}

// Publisher sends session events to one topic. It implements session.Observer;
// publish failures are logged and never block a session.
type Publisher struct {
	pub    message.Publisher
	topic  string
	logger *zap.Logger
	now    func() time.Time
}

// New builds the configured backend. BackendNone returns a nil Publisher,
// which callers treat as disabled.
func New(cfg Config, logger *zap.Logger) (*Publisher, error) {
	wl := NewLoggerAdapter(logger.Named("watermill"))
	var pub message.Publisher
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendGoChannel:
		pub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wl)
	case BackendKafka:
		kp, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wl)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		pub = kp
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
	return NewWithPublisher(pub, cfg.Topic, logger), nil
}

func NewWithPublisher(pub message.Publisher, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{pub: pub, topic: topic, logger: logger, now: time.Now}
}

// Publish wraps data in an Envelope and sends it.
func (p *Publisher) Publish(ctx context.Context, typ, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Source:    source,
		Version:   version,
		Timestamp: p.now().UTC(),
		Data:      raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := message.NewMessage(env.ID, body)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", typ)
	msg.Metadata.Set("source", source)
	msg.Metadata.Set("version", version)
	msg.Metadata.Set("key", key)
	msg.Metadata.Set("timestamp", env.Timestamp.Format(time.RFC3339))

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	p.logger.Debug("event published",
		zap.String("event_id", env.ID),
		zap.String("event_type", typ),
		zap.String("topic", p.topic))
	return nil
}

func (p *Publisher) SessionStarted(ctx context.Context, info session.Info) {
	p.publishLogged(ctx, TypeSessionStarted, info.SessionID, info)
}

func (p *Publisher) SessionGraded(ctx context.Context, g session.Graded) {
	p.publishLogged(ctx, TypeSessionGraded, g.SessionID, NewGradedPayload(g))
}

func (p *Publisher) SessionClosed(ctx context.Context, info session.Info) {
	p.publishLogged(ctx, TypeSessionClosed, info.SessionID, info)
}

func (p *Publisher) publishLogged(ctx context.Context, typ, key string, data any) {
	if err := p.Publish(ctx, typ, key, data); err != nil {
		p.logger.Error("event publish failed", zap.String("event_type", typ), zap.String("key", key), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}
