package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// XAdder is the slice of the redis client the publisher needs.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends envelopes to Redis streams.
type Publisher struct {
	client XAdder
}

// PublishOption allows configuring Redis XADD behaviour.
type PublishOption func(*redis.XAddArgs)

// WithMaxLenApprox sets an approximate max length for the stream.
func WithMaxLenApprox(maxLen int64) PublishOption {
	return func(args *redis.XAddArgs) {
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
	}
}

// NewPublisher creates a Publisher. *redis.Client satisfies XAdder.
func NewPublisher(client XAdder) *Publisher {
	return &Publisher{client: client}
}

// Publish validates the envelope and appends it to stream. It returns the stream entry id.
// The envelope inherits the trace id of the span in ctx unless it already carries one.
func (p *Publisher) Publish(ctx context.Context, stream string, envelope Envelope, opts ...PublishOption) (string, error) {
	if stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	if sc := trace.SpanContextFromContext(ctx); envelope.TraceID == "" && sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}
	raw, err := envelope.Marshal()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"type": envelope.EventType, "envelope": raw},
	}
	for _, opt := range opts {
		opt(args)
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishRaw wraps payload in an envelope of eventType before publishing.
func (p *Publisher) PublishRaw(ctx context.Context, stream, eventType string, payload interface{}, opts ...PublishOption) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return p.Publish(ctx, stream, Envelope{EventType: eventType, Data: data}, opts...)
}
