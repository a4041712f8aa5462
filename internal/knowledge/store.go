package knowledge

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/internal/store"
	"github.com/mohammad-safakhou/frontdesk/models"
	"go.uber.org/zap"
)

type cachedEntry struct {
	entry  models.KnowledgeEntry
	tokens TokenSet
}

// Store owns the knowledge base: the backing collection is authoritative and
// the in-process cache is a read-through projection of it.
//
// The cache is a copy-on-write slice: readers grab the current slice under a
// read lock and scan it without holding any lock; writers build a new slice and
// swap it in. Only this process writes through its cache, so several instances
// sharing one collection each see their own (possibly stale) view until reload.
type Store struct {
	coll      store.Collection
	threshold float64
	logger    *zap.Logger
	metrics   *runtime.Metrics
	now       func() time.Time
	useIndex  bool

	mu      sync.RWMutex
	entries []*cachedEntry
	index   *Index

	writeMu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

func WithThreshold(t float64) Option {
	return func(s *Store) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = runtime.OrNop(l) } }

func WithMetrics(m *runtime.Metrics) Option { return func(s *Store) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithTextIndex keeps a bleve index alongside the cache for TextSearch.
func WithTextIndex() Option { return func(s *Store) { s.useIndex = true } }

// New creates an empty Store; call Load before serving.
func New(coll store.Collection, opts ...Option) *Store {
	s := &Store{
		coll:      coll,
		threshold: config.DefaultMatchThreshold,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("knowledge")
	return s
}

// Threshold is the inclusive similarity cutoff used by Search and Ingest.
func (s *Store) Threshold() float64 { return s.threshold }

// Load replaces the cache with the full contents of the backing collection.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raws, err := s.coll.ListAll(ctx, models.CollectionKnowledge)
	if err != nil {
		return models.Persistence("load knowledge", err)
	}
	entries, err := store.DecodeAll[models.KnowledgeEntry](raws)
	if err != nil {
		return models.Persistence("load knowledge", err)
	}
	cache := make([]*cachedEntry, 0, len(entries))
	for _, e := range entries {
		cache = append(cache, &cachedEntry{entry: e, tokens: Tokenize(e.Question)})
	}

	var idx *Index
	if s.useIndex {
		if idx, err = NewIndex(); err != nil {
			return err
		}
		for _, c := range cache {
			if err := idx.Put(c.entry); err != nil {
				_ = idx.Close()
				return err
			}
		}
	}

	s.mu.Lock()
	old := s.index
	s.entries = cache
	s.index = idx
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	s.metrics.SetKnowledgeEntries(len(cache))
	s.logger.Info("knowledge cache loaded", zap.Int("entries", len(cache)))
	return nil
}

// Close releases the text index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.index
	s.index = nil
	return idx.Close()
}

func (s *Store) snapshot() []*cachedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries
}

// best scans entries for the highest-scoring candidate at or above the threshold.
// Ties go to the higher usage count, then the earlier creation time.
func (s *Store) best(entries []*cachedEntry, tokens TokenSet) (*cachedEntry, float64) {
	var winner *cachedEntry
	var top float64
	for _, c := range entries {
		score := Jaccard(tokens, c.tokens)
		if score < s.threshold {
			continue
		}
		if winner == nil || better(c, score, winner, top) {
			winner, top = c, score
		}
	}
	return winner, top
}

func better(c *cachedEntry, score float64, cur *cachedEntry, curScore float64) bool {
	if score != curScore {
		return score > curScore
	}
	if c.entry.UsageCount != cur.entry.UsageCount {
		return c.entry.UsageCount > cur.entry.UsageCount
	}
	if !c.entry.CreatedAt.Equal(cur.entry.CreatedAt) {
		return c.entry.CreatedAt.Before(cur.entry.CreatedAt)
	}
	return c.entry.ID < cur.entry.ID
}

// Search returns the best cached match for question, if any reaches the threshold.
func (s *Store) Search(_ context.Context, question string) (models.Match, bool) {
	start := time.Now()
	defer func() { s.metrics.ObserveSearch(time.Since(start).Seconds()) }()

	tokens := Tokenize(question)
	if len(tokens) == 0 {
		return models.Match{}, false
	}
	c, score := s.best(s.snapshot(), tokens)
	if c == nil {
		return models.Match{}, false
	}
	return models.Match{Entry: c.entry, Score: score}, true
}

// RecordUsage increments the usage counter of id. Failures are logged and dropped:
// usage counts are telemetry and must never fail the question being answered.
func (s *Store) RecordUsage(ctx context.Context, id string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := store.UpdateAs(ctx, s.coll, models.CollectionKnowledge, id, func(e *models.KnowledgeEntry) error {
		e.UsageCount++
		e.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.metrics.IncUsageWriteFailure()
		s.logger.Warn("record usage failed", zap.String("entry_id", id), zap.Error(err))
		return
	}
	s.replace(stored)
}

// Ingest stores a supervisor answer. When a near-duplicate question already
// exists its answer is updated in place instead of adding another entry.
func (s *Store) Ingest(ctx context.Context, question, answer, originHelpRequestID string) (models.KnowledgeEntry, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" {
		return models.KnowledgeEntry{}, models.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if answer == "" {
		return models.KnowledgeEntry{}, models.ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	origin := originHelpRequestID
	if dup, _ := s.best(s.snapshot(), Tokenize(question)); dup != nil {
		stored, err := store.UpdateAs(ctx, s.coll, models.CollectionKnowledge, dup.entry.ID, func(e *models.KnowledgeEntry) error {
			e.Answer = answer
			e.UpdatedAt = now
			e.Source = models.KnowledgeSourceSupervisor
			e.OriginHelpRequestID = &origin
			return nil
		})
		if err != nil {
			return models.KnowledgeEntry{}, models.Persistence("ingest knowledge", err)
		}
		s.replace(stored)
		s.metrics.IncIngest("update")
		s.logger.Info("knowledge updated", zap.String("entry_id", stored.ID), zap.String("origin", origin))
		return stored, nil
	}

	entry := models.KnowledgeEntry{
		ID:                  uuid.NewString(),
		Question:            question,
		Answer:              answer,
		Source:              models.KnowledgeSourceSupervisor,
		OriginHelpRequestID: &origin,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.coll.Put(ctx, models.CollectionKnowledge, entry.ID, entry); err != nil {
		return models.KnowledgeEntry{}, models.Persistence("ingest knowledge", err)
	}
	s.add(entry)
	s.metrics.IncIngest("insert")
	s.logger.Info("knowledge learned", zap.String("entry_id", entry.ID), zap.String("origin", origin))
	return entry, nil
}

// SeedEntry is a question/answer pair loaded from a seed file.
type SeedEntry struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Seed inserts SEEDED entries, skipping any question that already has a near-duplicate.
// It returns the number of entries inserted.
func (s *Store) Seed(ctx context.Context, seeds []SeedEntry) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	inserted := 0
	for i, seed := range seeds {
		q, a := strings.TrimSpace(seed.Question), strings.TrimSpace(seed.Answer)
		if q == "" || a == "" {
			return inserted, models.ValidationError{Field: "seed", Reason: "entry " + strconv.Itoa(i) + " needs question and answer"}
		}
		if dup, _ := s.best(s.snapshot(), Tokenize(q)); dup != nil {
			s.logger.Debug("seed skipped, near-duplicate exists", zap.String("question", q), zap.String("existing", dup.entry.ID))
			continue
		}
		now := s.now()
		entry := models.KnowledgeEntry{
			ID:        uuid.NewString(),
			Question:  q,
			Answer:    a,
			Source:    models.KnowledgeSourceSeeded,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.coll.Put(ctx, models.CollectionKnowledge, entry.ID, entry); err != nil {
			return inserted, models.Persistence("seed knowledge", err)
		}
		s.add(entry)
		inserted++
	}
	return inserted, nil
}

// add appends e to a fresh copy of the cache. Callers hold writeMu.
func (s *Store) add(e models.KnowledgeEntry) {
	c := &cachedEntry{entry: e, tokens: Tokenize(e.Question)}
	s.mu.Lock()
	next := make([]*cachedEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	s.entries = append(next, c)
	n := len(s.entries)
	s.indexLocked(e)
	s.mu.Unlock()
	s.metrics.SetKnowledgeEntries(n)
}

// replace swaps the cached copy of e for the stored one. Callers hold writeMu.
func (s *Store) replace(e models.KnowledgeEntry) {
	c := &cachedEntry{entry: e, tokens: Tokenize(e.Question)}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*cachedEntry, len(s.entries))
	copy(next, s.entries)
	found := false
	for i, old := range next {
		if old.entry.ID == e.ID {
			next[i] = c
			found = true
			break
		}
	}
	if !found {
		next = append(next, c)
	}
	s.entries = next
	s.indexLocked(e)
}

func (s *Store) indexLocked(e models.KnowledgeEntry) {
	if s.index == nil {
		return
	}
	if err := s.index.Put(e); err != nil {
		s.logger.Warn("index knowledge entry", zap.String("entry_id", e.ID), zap.Error(err))
	}
}

// List returns every cached entry, newest first.
func (s *Store) List() []models.KnowledgeEntry {
	entries := s.snapshot()
	out := make([]models.KnowledgeEntry, 0, len(entries))
	for _, c := range entries {
		out = append(out, c.entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len is the number of cached entries.
func (s *Store) Len() int { return len(s.snapshot()) }

// TopByUsage returns up to limit entries ordered by usage count, most used first.
func (s *Store) TopByUsage(limit int) []models.KnowledgeEntry {
	out := s.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].UsageCount > out[j].UsageCount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ErrNoIndex is returned by TextSearch when the store was built without WithTextIndex.
var ErrNoIndex = errors.New("knowledge text index disabled")

// TextSearch runs a free-text query over questions and answers. It does not
// count usage and is not used for answering callers.
func (s *Store) TextSearch(text string, limit int) ([]models.KnowledgeEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ValidationError{Field: "q", Reason: "must not be empty"}
	}
	s.mu.RLock()
	idx, entries := s.index, s.entries
	s.mu.RUnlock()
	if idx == nil {
		return nil, ErrNoIndex
	}
	ids, err := idx.Search(text, limit)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.KnowledgeEntry, len(entries))
	for _, c := range entries {
		byID[c.entry.ID] = c.entry
	}
	out := make([]models.KnowledgeEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
