// Package index maintains the skill index: a mutable, named collection of
// portfolio documents queried with nearest-neighbour search per skill.
package index

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "portfolio"
	// NeighborsPerSkill is the number of nearest documents returned per query text.
	NeighborsPerSkill = 2
	// MetadataLinks is the metadata key holding a portfolio entry's links.
	MetadataLinks = "links"
)

// ErrUnavailable marks failures of the underlying vector store.
var ErrUnavailable = errors.New("index unavailable")

// Metadata is the data attached to an indexed document.
type Metadata map[string]string

// MatchGroup holds, for every queried skill and in the same order, up to
// NeighborsPerSkill metadata records of the nearest documents.
type MatchGroup [][]Metadata

// Links flattens the group into the links it references, skill by skill.
// Duplicates are preserved.
func (g MatchGroup) Links() []string {
	var links []string
	for _, matches := range g {
		for _, m := range matches {
			if l := m[MetadataLinks]; l != "" {
				links = append(links, l)
			}
		}
	}
	return links
}

// Document is a single indexed item.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Store is the vector store engine behind a SkillIndex. Implementations embed
// document and query texts themselves.
type Store interface {
	// Collection returns the collection name.
	Collection() string
	// Ensure makes sure the collection exists and is usable.
	Ensure(ctx context.Context) error
	// Add inserts documents. It either stores all of them or returns an error.
	Add(ctx context.Context, docs []Document) error
	// Query returns, for every text, up to k metadata records ordered by similarity.
	Query(ctx context.Context, texts []string, k int) ([][]Metadata, error)
	// IDs lists the identifiers of all stored documents.
	IDs(ctx context.Context) ([]string, error)
	// Delete removes documents by identifier.
	Delete(ctx context.Context, ids []string) error
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
