package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/metrics"
	"github.com/spigell/jd-validator/internal/portfolio"
)

// SkillIndex owns the indexed portfolio corpus. Load, Clear and SetCorpus take
// the write lock; Query and Count take the read lock, so a query never
// observes a collection that is being cleared or reloaded.
type SkillIndex struct {
	mu     sync.RWMutex
	store  Store
	logger *zap.Logger

	corpus    []portfolio.Entry
	hasCorpus bool

	newID func() string
}

// New creates a SkillIndex on top of store.
func New(store Store, log *zap.Logger) *SkillIndex {
	return &SkillIndex{
		store:  store,
		logger: logger.OrNop(log),
		newID:  func() string { return uuid.NewString() },
	}
}

// SetCorpus replaces the source corpus used by subsequent loads. It does not
// touch indexed documents.
func (s *SkillIndex) SetCorpus(entries []portfolio.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corpus = append([]portfolio.Entry(nil), entries...)
	s.hasCorpus = true
}

// HasCorpus reports whether a source corpus is available.
func (s *SkillIndex) HasCorpus() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCorpus
}

// Collection returns the name of the underlying collection.
func (s *SkillIndex) Collection() string {
	return s.store.Collection()
}

// Load ingests the corpus when the collection is empty. With force the
// collection is cleared first, so stale entries never survive a forced reload.
// Without force, a populated collection is left untouched.
func (s *SkillIndex) Load(ctx context.Context, force bool) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { observe("load", err) }()

	if force {
		if err := s.clear(ctx); err != nil {
			return err
		}
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return unavailable("count", err)
	}

	if count > 0 {
		s.logger.Debug("skill index already populated", zap.Int("documents", count))
		return nil
	}

	if !s.hasCorpus {
		s.logger.Info("skill index is empty and no portfolio corpus is available")
		return nil
	}

	docs := make([]Document, 0, len(s.corpus))
	for _, entry := range s.corpus {
		docs = append(docs, Document{
			ID:       s.newID(),
			Text:     entry.Techstack,
			Metadata: Metadata{MetadataLinks: entry.Links},
		})
	}

	if len(docs) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.Add(ctx, docs); err != nil {
		s.rollback(ctx, docs)
		return unavailable("add", err)
	}

	metrics.IndexDocuments.WithLabelValues(s.store.Collection()).Set(float64(len(docs)))
	s.logger.Info("portfolio loaded into skill index", zap.Int("documents", len(docs)), zap.Bool("forced", force))

	return nil
}

// rollback removes documents of a failed insert. It runs on a context that
// ignores cancellation so an aborted load cannot leave a partial corpus behind.
func (s *SkillIndex) rollback(ctx context.Context, docs []Document) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	if err := s.store.Delete(context.WithoutCancel(ctx), ids); err != nil {
		s.logger.Error("rolling back partial load failed", zap.Int("documents", len(ids)), zap.Error(err))
	}
}

// Clear removes every indexed document and re-establishes an empty collection
// under the same name. It is safe to call on an empty index.
func (s *SkillIndex) Clear(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { observe("clear", err) }()

	return s.clear(ctx)
}

func (s *SkillIndex) clear(ctx context.Context) error {
	ids, err := s.store.IDs(ctx)
	if err != nil {
		return unavailable("list ids", err)
	}

	if len(ids) > 0 {
		if err := s.store.Delete(ctx, ids); err != nil {
			return unavailable("delete", err)
		}
	}

	if err := s.store.Ensure(ctx); err != nil {
		return unavailable("ensure collection", err)
	}

	metrics.IndexDocuments.WithLabelValues(s.store.Collection()).Set(0)
	s.logger.Info("skill index cleared", zap.Int("deleted", len(ids)))

	return nil
}

// Count returns the number of indexed documents.
func (s *SkillIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.store.Count(ctx)
	observe("count", err)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return count, nil
}

// Query runs one batched nearest-neighbour search with every skill as a query
// text and returns the metadata groups aligned with skills. Matches are not
// deduplicated across skills.
func (s *SkillIndex) Query(ctx context.Context, skills []string) (MatchGroup, error) {
	if len(skills) == 0 {
		return MatchGroup{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.store.Query(ctx, skills, NeighborsPerSkill)
	observe("query", err)
	if err != nil {
		return nil, unavailable("query", err)
	}

	if len(results) != len(skills) {
		return nil, fmt.Errorf("index returned %d result groups for %d skills", len(results), len(skills))
	}

	group := make(MatchGroup, len(skills))
	for i, matches := range results {
		if len(matches) > NeighborsPerSkill {
			matches = matches[:NeighborsPerSkill]
		}
		group[i] = append(make([]Metadata, 0, len(matches)), matches...)
	}

	return group, nil
}

func observe(op string, err error) {
	metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
}
