package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/jd-validator/internal/ai/hashing"
	"github.com/spigell/jd-validator/internal/index"
)

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, []string) ([][]float32, error) { return nil, f.err }

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(), []index.Document{
		{ID: "1", Text: "React, Node.js, MongoDB", Metadata: index.Metadata{"links": "https://example.com/react"}},
		{ID: "2", Text: "Python, Django, PostgreSQL", Metadata: index.Metadata{"links": "https://example.com/python"}},
		{ID: "3", Text: "Kubernetes, Terraform, AWS", Metadata: index.Metadata{"links": "https://example.com/devops"}},
	}))
}

func TestStoreQueryRanksBySimilarity(t *testing.T) {
	s := NewStore("", hashing.New(0))
	seed(t, s)

	got, err := s.Query(context.Background(), []string{"Python Django", "Terraform"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Len(t, got[0], 2)
	assert.Equal(t, "https://example.com/python", got[0][0]["links"])
	require.Len(t, got[1], 2)
	assert.Equal(t, "https://example.com/devops", got[1][0]["links"])
	assert.Equal(t, index.DefaultCollection, s.Collection())
}

func TestStoreQueryCapsAtStoreSize(t *testing.T) {
	s := NewStore("c", hashing.New(0))
	require.NoError(t, s.Add(context.Background(), []index.Document{
		{ID: "1", Text: "Go", Metadata: index.Metadata{"links": "l1"}},
	}))

	got, err := s.Query(context.Background(), []string{"Go"}, 2)
	require.NoError(t, err)
	assert.Len(t, got[0], 1)
}

func TestStoreQueryEmptyStore(t *testing.T) {
	s := NewStore("c", failingEmbedder{err: errors.New("must not embed")})

	got, err := s.Query(context.Background(), []string{"Go", "Rust"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]index.Metadata{{}, {}}, got)
}

func TestStoreQueryReturnsCopies(t *testing.T) {
	s := NewStore("c", hashing.New(0))
	seed(t, s)

	got, err := s.Query(context.Background(), []string{"React"}, 1)
	require.NoError(t, err)
	got[0][0]["links"] = "mutated"

	again, err := s.Query(context.Background(), []string{"React"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/react", again[0][0]["links"])
}

func TestStoreAddIsAtomicOnEmbedFailure(t *testing.T) {
	s := NewStore("c", failingEmbedder{err: errors.New("boom")})

	err := s.Add(context.Background(), []index.Document{{ID: "1", Text: "Go"}})
	require.Error(t, err)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore("c", hashing.New(0))
	seed(t, s)

	require.NoError(t, s.Delete(context.Background(), []string{"1", "3", "unknown"}))

	ids, err := s.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
}
