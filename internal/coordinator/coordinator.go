// Package coordinator handles an inbound question end to end: look it up,
// answer it when safe, otherwise open a help request and page a supervisor.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mohammad-safakhou/frontdesk/internal/decider"
	"github.com/mohammad-safakhou/frontdesk/internal/notify"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Canned caller-facing replies.
const (
	FollowUpText = "That's a great question. Let me check with my manager and get back to you shortly."
	RetryText    = "Sorry, something went wrong on our side. Please try again."
)

// Knowledge is the knowledge base as seen by the coordinator.
type Knowledge interface {
	Search(ctx context.Context, question string) (models.Match, bool)
	RecordUsage(ctx context.Context, id string)
	List() []models.KnowledgeEntry
	Len() int
}

// Decider chooses between answering and escalating.
type Decider interface {
	Decide(ctx context.Context, question, qctx string, candidate *models.Match) decider.Decision
}

// Requests is the help request lifecycle.
type Requests interface {
	Create(ctx context.Context, callerID, callerContact, question string, qctx *string) (models.HelpRequest, error)
	Resolve(ctx context.Context, id, answer, resolverName string) (models.HelpRequest, error)
	ListPending(ctx context.Context) ([]models.HelpRequest, error)
	ListAll(ctx context.Context, limit int) ([]models.HelpRequest, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Question is an inbound caller question.
type Question struct {
	CallerID      string  `json:"caller_id"`
	CallerContact string  `json:"caller_contact"`
	Question      string  `json:"question"`
	Context       *string `json:"context,omitempty"`
}

// Reply is what the caller hears back. RequestID is set when the question was escalated.
type Reply struct {
	Answered  bool   `json:"answered"`
	Text      string `json:"text"`
	RequestID string `json:"request_id,omitempty"`
}

type Coordinator struct {
	knowledge  Knowledge
	decider    Decider
	requests   Requests
	notifier   notify.Notifier
	supervisor string
	dashboard  string
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *runtime.Metrics
	tracer     trace.Tracer
}

type Option func(*Coordinator)

// WithNotifier sets the supervisor alert channel.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithSupervisorTarget names who receives alerts.
func WithSupervisorTarget(target string) Option {
	return func(c *Coordinator) {
		if target != "" {
			c.supervisor = target
		}
	}
}

func WithDashboardURL(url string) Option { return func(c *Coordinator) { c.dashboard = url } }

// WithRetryDelay is the pause before the single create retry.
func WithRetryDelay(d time.Duration) Option { return func(c *Coordinator) { c.retryDelay = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.logger = runtime.OrNop(l) } }

func WithMetrics(m *runtime.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func New(k Knowledge, d Decider, r Requests, opts ...Option) *Coordinator {
	c := &Coordinator{
		knowledge:  k,
		decider:    d,
		requests:   r,
		notifier:   notify.Noop{},
		supervisor: "supervisor",
		retryDelay: 200 * time.Millisecond,
		logger:     zap.NewNop(),
		tracer:     runtime.Tracer("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("coordinator")
	return c
}

// SubmitQuestion answers q from the knowledge base when the decider allows it and
// escalates otherwise. The only error it returns is a validation error; every
// other failure becomes a caller-facing reply.
func (c *Coordinator) SubmitQuestion(ctx context.Context, q Question) (Reply, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.SubmitQuestion", trace.WithAttributes(
		attribute.String("caller.id", q.CallerID),
	))
	defer span.End()

	if strings.TrimSpace(q.Question) == "" {
		return Reply{}, models.ValidationError{Field: "question", Reason: "must not be empty"}
	}

	var candidate *models.Match
	if m, ok := c.knowledge.Search(ctx, q.Question); ok {
		candidate = &m
		span.SetAttributes(attribute.String("knowledge.entry_id", m.Entry.ID), attribute.Float64("knowledge.score", m.Score))
	}

	qctx := ""
	if q.Context != nil {
		qctx = *q.Context
	}
	decision := c.decider.Decide(ctx, q.Question, qctx, candidate)
	span.SetAttributes(attribute.String("decision", string(decision.Kind)), attribute.String("decision.reason", decision.Reason))

	if decision.Kind == decider.Answer && candidate != nil {
		c.knowledge.RecordUsage(ctx, candidate.Entry.ID)
		c.metrics.IncQuestion("answered")
		c.logger.Info("answered from knowledge", zap.String("caller_id", q.CallerID), zap.String("entry_id", candidate.Entry.ID))
		return Reply{Answered: true, Text: decision.Text}, nil
	}
	return c.escalate(ctx, q, decision.Reason)
}

func (c *Coordinator) escalate(ctx context.Context, q Question, reason string) (Reply, error) {
	var req models.HelpRequest
	create := func() error {
		var err error
		req, err = c.requests.Create(ctx, q.CallerID, q.CallerContact, q.Question, q.Context)
		if errors.Is(err, models.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	if err := backoff.Retry(create, policy); err != nil {
		if errors.Is(err, models.ErrValidation) {
			return Reply{}, err
		}
		c.metrics.IncQuestion("failed")
		c.logger.Error("escalation failed", zap.String("caller_id", q.CallerID), zap.Error(err))
		return Reply{Answered: false, Text: RetryText}, nil
	}

	// the request exists now; a vanished caller does not undo it or the alert
	ctx = context.WithoutCancel(ctx)
	c.metrics.IncQuestion("escalated")
	c.logger.Info("question escalated", zap.String("request_id", req.ID), zap.String("reason", reason))

	alert := notify.SupervisorAlert(notify.Alert{
		RequestID:     req.ID,
		Question:      req.Question,
		CallerContact: req.CallerContact,
		Context:       deref(req.Context),
		DashboardURL:  c.dashboard,
	})
	if err := c.notifier.Notify(ctx, c.supervisor, alert); err != nil {
		c.metrics.IncNotifyFailure("supervisor")
		c.logger.Warn("supervisor alert failed", zap.String("request_id", req.ID), zap.Error(err))
	}
	return Reply{Answered: false, Text: FollowUpText, RequestID: req.ID}, nil
}

// ResolveRequest records a supervisor answer. A *models.LearningError comes back
// together with the resolved request when only the learning step failed.
func (c *Coordinator) ResolveRequest(ctx context.Context, id, answer, resolverName string) (models.HelpRequest, error) {
	return c.requests.Resolve(ctx, id, answer, resolverName)
}

func (c *Coordinator) ListPending(ctx context.Context) ([]models.HelpRequest, error) {
	return c.requests.ListPending(ctx)
}

func (c *Coordinator) ListAll(ctx context.Context, limit int) ([]models.HelpRequest, error) {
	return c.requests.ListAll(ctx, limit)
}

func (c *Coordinator) ListKnowledge() []models.KnowledgeEntry { return c.knowledge.List() }

// Stats adds the knowledge base size to the request statistics.
func (c *Coordinator) Stats(ctx context.Context) (models.Stats, error) {
	st, err := c.requests.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.KnowledgeEntries = c.knowledge.Len()
	return st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
