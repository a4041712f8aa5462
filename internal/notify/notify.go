// Package notify delivers supervisor alerts and caller follow-ups. Delivery is
// best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/queue/streams"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier sends message to target (a supervisor channel or a caller contact).
type Notifier interface {
	Notify(ctx context.Context, target, message string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, target, message string) error

func (f Func) Notify(ctx context.Context, target, message string) error {
	return f(ctx, target, message)
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// Failing fails every notification with Err.
type Failing struct{ Err error }

func (f Failing) Notify(context.Context, string, string) error {
	if f.Err == nil {
		return errors.New("notifier unavailable")
	}
	return f.Err
}

// Sent is one notification captured by a Recorder.
type Sent struct {
	Target  string
	Message string
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Notify(_ context.Context, target, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Target: target, Message: message})
	return nil
}

// Sent returns a copy of what has been delivered so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// bounded cuts every call off after timeout.
type bounded struct {
	next    Notifier
	timeout time.Duration
}

// WithTimeout bounds each Notify call on n. A non-positive timeout returns n unchanged.
func WithTimeout(n Notifier, timeout time.Duration) Notifier {
	if timeout <= 0 {
		return n
	}
	return bounded{next: n, timeout: timeout}
}

func (b bounded) Notify(ctx context.Context, target, message string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.next.Notify(ctx, target, message) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notify %s: %w", target, ctx.Err())
	}
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, target, message string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, target, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notifier selected by cfg.Driver, wrapped with cfg.Timeout.
// rdb is required for the redis driver.
func New(cfg config.NotifyConfig, rdb *redis.Client, logger *zap.Logger) (Notifier, error) {
	var n Notifier
	switch cfg.Driver {
	case config.NotifyDriverLog, "":
		n = NewLog(logger)
	case config.NotifyDriverNoop:
		n = Noop{}
	case config.NotifyDriverRedis:
		if rdb == nil {
			return nil, errors.New("notify: redis driver needs a redis client")
		}
		// the log copy keeps notifications visible when nobody consumes the stream yet
		n = Fanout{NewStream(streams.NewPublisher(rdb), cfg.Stream, cfg.StreamMaxLen), NewLog(logger)}
	default:
		return nil, fmt.Errorf("notify: unsupported driver %q", cfg.Driver)
	}
	return WithTimeout(n, cfg.Timeout), nil
}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: runtime.OrNop(logger).Named("notify")}
}

func (l *Log) Notify(_ context.Context, target, message string) error {
	l.logger.Info("notification", zap.String("target", target), zap.String("message", message))
	return nil
}

// Stream publishes notifications onto a Redis stream for downstream delivery (SMS, Slack).
type Stream struct {
	pub    *streams.Publisher
	stream string
	maxLen int64
}

func NewStream(pub *streams.Publisher, stream string, maxLen int64) *Stream {
	return &Stream{pub: pub, stream: stream, maxLen: maxLen}
}

type streamPayload struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (s *Stream) Notify(ctx context.Context, target, message string) error {
	_, err := s.pub.PublishRaw(ctx, s.stream, streams.EventNotification,
		streamPayload{Target: target, Message: message}, streams.WithMaxLenApprox(s.maxLen))
	return err
}
