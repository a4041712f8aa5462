// Package lifecycle owns help requests: creation, resolution, timeout and the
// read-only projections the dashboard uses.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/frontdesk/internal/notify"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/internal/store"
	"github.com/mohammad-safakhou/frontdesk/models"
	"go.uber.org/zap"
)

// DefaultResolver is recorded when a resolution names nobody.
const DefaultResolver = "Supervisor"

// DefaultRequestTimeout is the sweep cutoff used when none is given.
const DefaultRequestTimeout = 24 * time.Hour

// Learner receives supervisor answers once a request is resolved.
type Learner interface {
	Ingest(ctx context.Context, question, answer, originHelpRequestID string) (models.KnowledgeEntry, error)
}

type Lifecycle struct {
	coll     store.Collection
	learner  Learner
	notifier notify.Notifier
	now      func() time.Time
	logger   *zap.Logger
	metrics  *runtime.Metrics
	business string
	timeout  time.Duration
}

type Option func(*Lifecycle)

func WithLearner(l Learner) Option { return func(lc *Lifecycle) { lc.learner = l } }

// WithNotifier sets the notifier used for caller follow-ups.
func WithNotifier(n notify.Notifier) Option {
	return func(lc *Lifecycle) {
		if n != nil {
			lc.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(lc *Lifecycle) { lc.now = now } }

func WithLogger(l *zap.Logger) Option { return func(lc *Lifecycle) { lc.logger = runtime.OrNop(l) } }

func WithMetrics(m *runtime.Metrics) Option { return func(lc *Lifecycle) { lc.metrics = m } }

// WithBusinessName is used in caller follow-up messages.
func WithBusinessName(name string) Option { return func(lc *Lifecycle) { lc.business = name } }

// WithRequestTimeout sets the default TimeoutStale cutoff.
func WithRequestTimeout(d time.Duration) Option {
	return func(lc *Lifecycle) {
		if d > 0 {
			lc.timeout = d
		}
	}
}

func New(coll store.Collection, opts ...Option) *Lifecycle {
	lc := &Lifecycle{
		coll:     coll,
		notifier: notify.Noop{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
		timeout:  DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.logger = lc.logger.Named("lifecycle")
	return lc
}

// Create persists a new PENDING request. A failure here means nobody will follow up,
// so it is always returned.
func (l *Lifecycle) Create(ctx context.Context, callerID, callerContact, question string, qctx *string) (models.HelpRequest, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.HelpRequest{}, models.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if qctx != nil && strings.TrimSpace(*qctx) == "" {
		qctx = nil
	}
	req := models.HelpRequest{
		ID:            uuid.NewString(),
		CallerID:      callerID,
		CallerContact: callerContact,
		Question:      question,
		Context:       qctx,
		Status:        models.RequestStatusPending,
		CreatedAt:     l.now(),
	}
	if err := l.coll.Put(ctx, models.CollectionHelpRequests, req.ID, req); err != nil {
		return models.HelpRequest{}, models.Persistence("create help request", err)
	}
	l.metrics.IncTransition(string(models.RequestStatusPending))
	l.logger.Info("help request created", zap.String("request_id", req.ID), zap.String("caller_id", callerID))
	return req, nil
}

// Get returns one request.
func (l *Lifecycle) Get(ctx context.Context, id string) (models.HelpRequest, error) {
	req, err := store.GetAs[models.HelpRequest](ctx, l.coll, models.CollectionHelpRequests, id)
	if errors.Is(err, models.ErrNotFound) {
		return req, fmt.Errorf("help request %s: %w", id, models.ErrNotFound)
	}
	return req, models.Persistence("get help request", err)
}

// finalize moves id out of PENDING. apply runs on the stored copy and only if it is
// still PENDING; otherwise the current status is reported as a FinalizedError.
func (l *Lifecycle) finalize(ctx context.Context, id string, to models.RequestStatus, apply func(*models.HelpRequest)) (models.HelpRequest, error) {
	req, err := store.UpdateAs(ctx, l.coll, models.CollectionHelpRequests, id, func(r *models.HelpRequest) error {
		if r.Status != models.RequestStatusPending {
			return models.FinalizedError{ID: r.ID, Status: r.Status}
		}
		r.Status = to
		apply(r)
		return nil
	})
	switch {
	case err == nil:
		l.metrics.IncTransition(string(to))
		return req, nil
	case errors.Is(err, models.ErrNotFound):
		return models.HelpRequest{}, fmt.Errorf("help request %s: %w", id, models.ErrNotFound)
	case errors.Is(err, models.ErrAlreadyFinalized):
		return models.HelpRequest{}, err
	default:
		return models.HelpRequest{}, models.Persistence("update help request", err)
	}
}

// Resolve records a supervisor's answer, then teaches it to the knowledge base and
// texts the caller. When learning fails the resolution still stands: the resolved
// request is returned together with a *models.LearningError.
func (l *Lifecycle) Resolve(ctx context.Context, id, answer, resolverName string) (models.HelpRequest, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return models.HelpRequest{}, models.ValidationError{Field: "answer", Reason: "must not be empty"}
	}
	resolverName = strings.TrimSpace(resolverName)
	if resolverName == "" {
		resolverName = DefaultResolver
	}

	req, err := l.finalize(ctx, id, models.RequestStatusResolved, func(r *models.HelpRequest) {
		now := l.now()
		r.ResolvedAt = &now
		r.Answer = &answer
		r.ResolverName = &resolverName
	})
	if err != nil {
		return models.HelpRequest{}, err
	}
	l.logger.Info("help request resolved", zap.String("request_id", req.ID), zap.String("resolver", resolverName))

	// committed; the caller disconnecting must not stop learning or the follow-up
	ctx = context.WithoutCancel(ctx)

	var learnErr error
	if l.learner != nil {
		if _, err := l.learner.Ingest(ctx, req.Question, answer, req.ID); err != nil {
			l.logger.Error("knowledge ingestion failed", zap.String("request_id", req.ID), zap.Error(err))
			learnErr = &models.LearningError{RequestID: req.ID, Err: err}
		}
	}

	if req.CallerContact != "" {
		msg := notify.CallerFollowUp(notify.FollowUp{Business: l.business, Question: req.Question, Answer: answer})
		if err := l.notifier.Notify(ctx, req.CallerContact, msg); err != nil {
			l.metrics.IncNotifyFailure("caller")
			l.logger.Warn("caller follow-up failed", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	return req, learnErr
}

// Timeout moves a single PENDING request to TIMEOUT.
func (l *Lifecycle) Timeout(ctx context.Context, id string) (models.HelpRequest, error) {
	return l.finalize(ctx, id, models.RequestStatusTimeout, func(*models.HelpRequest) {})
}

// TimeoutStale times out every PENDING request created before now-cutoff and
// returns the ones it transitioned. Requests resolved concurrently are skipped.
// A non-positive cutoff uses the configured request timeout.
func (l *Lifecycle) TimeoutStale(ctx context.Context, cutoff time.Duration) ([]models.HelpRequest, error) {
	if cutoff <= 0 {
		cutoff = l.timeout
	}
	pending, err := l.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	deadline := l.now().Add(-cutoff)

	var (
		out  []models.HelpRequest
		errs []error
	)
	for _, r := range pending {
		if !r.CreatedAt.Before(deadline) {
			// ListPending is oldest first
			break
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		done, err := l.Timeout(ctx, r.ID)
		switch {
		case err == nil:
			out = append(out, done)
		case errors.Is(err, models.ErrAlreadyFinalized), errors.Is(err, models.ErrNotFound):
			l.logger.Debug("sweep skipped request", zap.String("request_id", r.ID), zap.Error(err))
		default:
			errs = append(errs, err)
		}
	}
	if len(out) > 0 {
		l.logger.Info("timed out stale help requests", zap.Int("count", len(out)), zap.Duration("cutoff", cutoff))
	}
	return out, errors.Join(errs...)
}

// ListPending returns PENDING requests, oldest first.
func (l *Lifecycle) ListPending(ctx context.Context) ([]models.HelpRequest, error) {
	raws, err := l.coll.QueryByField(ctx, models.CollectionHelpRequests, "status", string(models.RequestStatusPending))
	if err != nil {
		return nil, models.Persistence("list pending", err)
	}
	reqs, err := store.DecodeAll[models.HelpRequest](raws)
	if err != nil {
		return nil, models.Persistence("list pending", err)
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
	return reqs, nil
}

// ListAll returns every request, newest first, truncated to limit when limit > 0.
func (l *Lifecycle) ListAll(ctx context.Context, limit int) ([]models.HelpRequest, error) {
	reqs, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
		}
		return reqs[i].ID > reqs[j].ID
	})
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (l *Lifecycle) all(ctx context.Context) ([]models.HelpRequest, error) {
	raws, err := l.coll.ListAll(ctx, models.CollectionHelpRequests)
	if err != nil {
		return nil, models.Persistence("list help requests", err)
	}
	reqs, err := store.DecodeAll[models.HelpRequest](raws)
	if err != nil {
		return nil, models.Persistence("list help requests", err)
	}
	return reqs, nil
}

// Stats summarises every request. KnowledgeEntries is left for the caller to fill.
func (l *Lifecycle) Stats(ctx context.Context) (models.Stats, error) {
	reqs, err := l.all(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	var (
		st      models.Stats
		minutes float64
		timed   int
	)
	st.TotalRequests = len(reqs)
	for _, r := range reqs {
		switch r.Status {
		case models.RequestStatusPending:
			st.Pending++
		case models.RequestStatusResolved:
			st.Resolved++
			if r.ResolvedAt != nil {
				minutes += r.ResolvedAt.Sub(r.CreatedAt).Minutes()
				timed++
			}
		case models.RequestStatusTimeout:
			st.Timeout++
		}
	}
	if timed > 0 {
		st.AvgResolutionTimeMinutes = round1(minutes / float64(timed))
	}
	if st.TotalRequests > 0 {
		st.ResolutionRate = round1(float64(st.Resolved) / float64(st.TotalRequests) * 100)
	}
	return st, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
