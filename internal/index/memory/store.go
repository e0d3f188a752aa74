// Package memory is an in-process vector store for the skill index.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/index"
)

type document struct {
	id       string
	metadata index.Metadata
	vector   []float32
}

// Store keeps documents and their embeddings in memory. Documents are
// kept in insertion order, which also breaks similarity ties.
type Store struct {
	mu         sync.RWMutex
	collection string
	embedder   ai.Embedder
	docs       []document
}

// NewStore creates an empty store for collection. Documents and queries are
// embedded with embedder.
func NewStore(collection string, embedder ai.Embedder) *Store {
	if collection == "" {
		collection = index.DefaultCollection
	}
	return &Store{collection: collection, embedder: embedder}
}

func (s *Store) Collection() string { return s.collection }

// Ensure is a no-op: the collection always exists.
func (s *Store) Ensure(context.Context) error { return nil }

// Add embeds every document before storing any of them.
func (s *Store) Add(ctx context.Context, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range docs {
		s.docs = append(s.docs, document{id: d.ID, metadata: copyMetadata(d.Metadata), vector: vectors[i]})
	}

	return nil
}

func (s *Store) Query(ctx context.Context, texts []string, k int) ([][]index.Metadata, error) {
	results := make([][]index.Metadata, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.docs) == 0 {
		for i := range results {
			results[i] = []index.Metadata{}
		}
		return results, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(texts))
	}

	type scored struct {
		pos   int
		score float64
	}

	for i, q := range vectors {
		ranked := make([]scored, len(s.docs))
		for j, d := range s.docs {
			ranked[j] = scored{pos: j, score: cosine(q, d.vector)}
		}
		sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

		n := min(k, len(ranked))
		matches := make([]index.Metadata, 0, n)
		for _, r := range ranked[:n] {
			matches = append(matches, copyMetadata(s.docs[r.pos].metadata))
		}
		results[i] = matches
	}

	return results, nil
}

func (s *Store) IDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.docs))
	for i, d := range s.docs {
		ids[i] = d.id
	}
	return ids, nil
}

// Delete removes the given documents. Unknown ids are ignored.
func (s *Store) Delete(_ context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.docs[:0]
	for _, d := range s.docs {
		if _, ok := drop[d.id]; !ok {
			kept = append(kept, d)
		}
	}
	clear(s.docs[len(kept):])
	s.docs = kept

	return nil
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(-1)
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func copyMetadata(m index.Metadata) index.Metadata {
	out := make(index.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
