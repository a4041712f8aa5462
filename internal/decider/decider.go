// Package decider chooses between answering a caller directly and escalating
// the question to a human supervisor.
package decider

import (
	"context"
	"strings"
	"time"

	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/models"
	"github.com/mohammad-safakhou/frontdesk/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Kind is the outcome of a decision.
type Kind string

const (
	Answer   Kind = "ANSWER"
	Escalate Kind = "ESCALATE"
)

// Reasons attached to a Decision.
const (
	ReasonConfident    = "confident"
	ReasonNoCandidate  = "no_candidate"
	ReasonNotConfident = "not_confident"
	ReasonJudgeFailed  = "judge_failed"
)

// Decision is what to do with an inbound question. Text is set only for Answer.
type Decision struct {
	Kind   Kind
	Text   string
	Reason string
}

// DefaultJudgeTimeout bounds a single judge call when no timeout is configured.
const DefaultJudgeTimeout = 8 * time.Second

type Decider struct {
	judge   provider.Judge
	timeout time.Duration
	logger  *zap.Logger
	metrics *runtime.Metrics
	tracer  trace.Tracer
}

type Option func(*Decider)

func WithTimeout(d time.Duration) Option {
	return func(dc *Decider) {
		if d > 0 {
			dc.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(d *Decider) { d.logger = runtime.OrNop(l) } }

func WithMetrics(m *runtime.Metrics) Option { return func(d *Decider) { d.metrics = m } }

func New(judge provider.Judge, opts ...Option) *Decider {
	d := &Decider{
		judge:   judge,
		timeout: DefaultJudgeTimeout,
		logger:  zap.NewNop(),
		tracer:  runtime.Tracer("decider"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("decider")
	return d
}

// Decide returns Answer only when a candidate exists and the judge is confident in it.
// Any judge failure, including a timeout, results in Escalate.
func (d *Decider) Decide(ctx context.Context, question, qctx string, candidate *models.Match) Decision {
	if candidate == nil {
		return Decision{Kind: Escalate, Reason: ReasonNoCandidate}
	}

	ctx, span := d.tracer.Start(ctx, "decider.Decide", trace.WithAttributes(
		attribute.String("knowledge.entry_id", candidate.Entry.ID),
		attribute.Float64("knowledge.score", candidate.Score),
	))
	defer span.End()

	jctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	j, err := d.judge.Judge(jctx, question, candidate.Entry.Answer, qctx)
	if err != nil {
		d.metrics.IncJudgeFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, "judge failed")
		d.logger.Warn("judge failed, escalating", zap.String("entry_id", candidate.Entry.ID), zap.Error(err))
		return Decision{Kind: Escalate, Reason: ReasonJudgeFailed}
	}
	if !j.Confident {
		span.SetAttributes(attribute.Bool("judge.confident", false))
		return Decision{Kind: Escalate, Reason: ReasonNotConfident}
	}

	text := strings.TrimSpace(j.Answer)
	if text == "" {
		text = candidate.Entry.Answer
	}
	span.SetAttributes(attribute.Bool("judge.confident", true))
	return Decision{Kind: Answer, Text: text, Reason: ReasonConfident}
}
