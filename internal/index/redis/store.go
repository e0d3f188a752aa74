// Package redis stores the skill index in Redis (Redis Stack / Redis 8 search
// or valkey-search) using hashes and an HNSW vector index.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/logger"
)

const (
	fieldText   = "__text"
	fieldVector = "__vector"
	// vectorAlias is the schema name of fieldVector; KNN clauses refer to it.
	vectorAlias = "vector"
	// fieldScore is the distance yielded by the KNN clause.
	fieldScore = "__knn_score"
)

var _ index.Store = (*Store)(nil)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	Collection string
}

// Store keeps every document as a hash under "<collection>:doc:<id>". The
// search index "<collection>_idx" is created on the first insert, once the
// embedding dimension is known.
type Store struct {
	client     rueidis.Client
	embedder   ai.Embedder
	logger     *zap.Logger
	collection string
	prefix     string
	indexName  string

	ready atomic.Bool
}

// NewStore connects to Redis.
func NewStore(cfg Config, embedder ai.Embedder, log *zap.Logger) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return newStore(client, cfg.Collection, embedder, log), nil
}

func newStore(client rueidis.Client, collection string, embedder ai.Embedder, log *zap.Logger) *Store {
	if collection == "" {
		collection = index.DefaultCollection
	}

	return &Store{
		client:     client,
		embedder:   embedder,
		logger:     logger.WithIndex(logger.OrNop(log), "redis", collection),
		collection: collection,
		prefix:     collection + ":doc:",
		indexName:  collection + "_idx",
	}
}

func (s *Store) Collection() string { return s.collection }

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// Ensure checks connectivity and whether the search index already exists.
func (s *Store) Ensure(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	_, err := s.indexExists(ctx)
	return err
}

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

	if err := s.createIndex(ctx, len(vectors[0])); err != nil {
		return err
	}

	cmds := make(rueidis.Commands, len(docs))
	for i, d := range docs {
		cmd := s.client.B().Hset().Key(s.prefix+d.ID).FieldValue().
			FieldValue(fieldText, d.Text).
			FieldValue(fieldVector, vectorToBytes(vectors[i]))
		for k, v := range d.Metadata {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("hset %s: %w", docs[i].ID, err)
		}
	}

	return nil
}

func (s *Store) createIndex(ctx context.Context, dim int) error {
	if s.ready.Load() {
		return nil
	}
	if dim <= 0 {
		return errors.New("embedding dimension must be positive")
	}

	args := []string{
		s.indexName, "ON", "HASH", "PREFIX", "1", s.prefix,
		"SCHEMA", fieldVector, "AS", vectorAlias, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "index already exists") {
		return fmt.Errorf("create index %s: %w", s.indexName, err)
	}

	s.ready.Store(true)
	s.logger.Info("search index ready", zap.String("index", s.indexName), zap.Int("dim", dim))

	return nil
}

func (s *Store) indexExists(ctx context.Context) (bool, error) {
	if s.ready.Load() {
		return true, nil
	}

	cmd := s.client.B().Arbitrary("FT.INFO").Args(s.indexName).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, fmt.Errorf("index info: %w", err)
	}

	s.ready.Store(true)
	return true, nil
}

// Query sends one KNN search per text in a single round-trip.
func (s *Store) Query(ctx context.Context, texts []string, k int) ([][]index.Metadata, error) {
	results := make([][]index.Metadata, len(texts))
	for i := range results {
		results[i] = []index.Metadata{}
	}
	if len(texts) == 0 {
		return results, nil
	}

	exists, err := s.indexExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return results, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(texts))
	}

	query := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", k, vectorAlias, fieldScore)
	cmds := make(rueidis.Commands, len(vectors))
	for i, v := range vectors {
		cmds[i] = s.client.B().Arbitrary("FT.SEARCH").Args(
			s.indexName, query,
			"PARAMS", "2", "BLOB", vectorToBytes(v),
			"SORTBY", fieldScore,
			"LIMIT", "0", strconv.Itoa(k),
			"DIALECT", "2",
		).Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		raw, err := res.ToArray()
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", texts[i], err)
		}
		results[i] = parseSearch(raw)
	}

	return results, nil
}

// IDs scans the collection key prefix.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64

	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		res, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for _, key := range res.Elements {
			ids = append(ids, strings.TrimPrefix(key, s.prefix))
		}
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return ids, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + id
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Count reads the total from a zero-length search; a missing index counts as empty.
func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(s.indexName, "*", "LIMIT", "0", "0").Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		// Dropped behind our back; the next Add recreates it.
		if isRedisErr(err, "no such index") {
			s.ready.Store(false)
			return 0, nil
		}
		return 0, fmt.Errorf("count: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// parseSearch reads a RESP2 reply [total, key1, fields1, key2, fields2, ...]
// and drops internal fields from every entry.
func parseSearch(raw []rueidis.RedisMessage) []index.Metadata {
	matches := []index.Metadata{}

	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		m := index.Metadata{}
		for j := 0; j+1 < len(fields); j += 2 {
			name, err := fields[j].ToString()
			if err != nil || strings.HasPrefix(name, "__") {
				continue
			}
			value, err := fields[j+1].ToString()
			if err != nil {
				continue
			}
			m[name] = value
		}
		matches = append(matches, m)
	}

	return matches
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// isRedisErr checks if err is a Redis server error containing substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
