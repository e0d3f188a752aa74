package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/ai/gemini"
	"github.com/spigell/jd-validator/internal/ai/hashing"
	"github.com/spigell/jd-validator/internal/ai/openai"
	"github.com/spigell/jd-validator/internal/composer"
	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/index/memory"
	"github.com/spigell/jd-validator/internal/index/redis"
	"github.com/spigell/jd-validator/internal/jobs"
	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/page"
	"github.com/spigell/jd-validator/internal/pipeline"
	"github.com/spigell/jd-validator/internal/portfolio"
	"github.com/spigell/jd-validator/internal/secrets"
)

// application holds the components shared by every command.
type application struct {
	config *Config
	logger *zap.Logger
	index  *index.SkillIndex
	reader *portfolio.Reader

	closers []func()
}

func newApplication(ctx context.Context, log *zap.Logger) (*application, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a := &application{config: config, logger: log, reader: portfolio.NewReader(log)}

	embedder, err := newEmbedder(ctx, config.Embedding, config.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	store, err := a.newStore(embedder)
	if err != nil {
		return nil, fmt.Errorf("building index store: %w", err)
	}

	a.index = index.New(store, logger.WithIndex(log, config.Index.Backend, store.Collection()))

	if err := a.readCorpus(config.Portfolio.File); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Warn("portfolio file not found; the skill index can only be loaded from an upload",
			zap.String("file", config.Portfolio.File),
		)
	}

	return a, nil
}

// readCorpus parses a portfolio file and makes it the corpus of the index.
func (a *application) readCorpus(path string) error {
	if strings.TrimSpace(path) == "" {
		return fs.ErrNotExist
	}

	corpus, err := a.reader.ReadFile(path)
	if err != nil {
		return err
	}

	a.index.SetCorpus(corpus.Entries)
	return nil
}

func (a *application) Close() {
	for _, c := range a.closers {
		c()
	}
}

func (a *application) newStore(embedder ai.Embedder) (index.Store, error) {
	cfg := a.config.Index
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return memory.NewStore(cfg.Collection, embedder), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("index.redis configuration is required for the redis backend")
		}

		password := ""
		if cfg.Redis.Password != "" || cfg.Redis.PasswordFile != "" {
			var err error
			password, err = secrets.Load(secrets.Source{
				Name:  "redis password",
				Value: cfg.Redis.Password,
				File:  cfg.Redis.PasswordFile,
			})
			if err != nil {
				return nil, err
			}
		}

		store, err := redis.NewStore(redis.Config{
			Addrs:      cfg.Redis.Addrs,
			Username:   cfg.Redis.Username,
			Password:   password,
			DB:         cfg.Redis.DB,
			Collection: cfg.Collection,
		}, embedder, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}

// newRunner builds the generative pipeline. Only commands that compose
// documents need a model API key.
func (a *application) newRunner(ctx context.Context) (*pipeline.Runner, error) {
	cfg := a.config.AI

	generator, err := newGenerator(ctx, cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("building generator: %w", err)
	}

	p, err := pipeline.New(pipeline.Deps{
		Index:     a.index,
		Extractor: jobs.NewExtractor(generator, a.logger, cfg.MaxLogLength),
		Matcher:   jobs.NewMatcher(a.index, a.logger),
		Composer:  composer.NewComposer(generator, a.logger, cfg.MaxLogLength),
		Logger:    a.logger,
	}, pipeline.Options{Concurrency: a.config.Pipeline.Concurrency})
	if err != nil {
		return nil, err
	}

	fetcher := page.NewFetcher(page.Options{
		Timeout:   a.config.Page.Timeout,
		UserAgent: a.config.Page.UserAgent,
	}, a.logger)

	return pipeline.NewRunner(fetcher, p, a.logger), nil
}

var keyEnv = map[string][]string{
	ai.ProviderGroq:   {"GROQ_API_KEY"},
	ai.ProviderOpenAI: {"OPENAI_API_KEY"},
	ai.ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func providerName(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func apiKey(provider, value, file string) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  provider + " api key",
		Value: value,
		File:  file,
		Env:   keyEnv[provider],
	})
	if err != nil {
		return "", fmt.Errorf("%w (set the api-key-file option or %s)", err, strings.Join(keyEnv[provider], "/"))
	}
	return key, nil
}

func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generator, error) {
	provider := providerName(cfg.Provider)

	key, err := apiKey(provider, cfg.APIKey, cfg.APIKeyFile)
	if err != nil {
		return nil, err
	}

	var (
		gen       ai.Generator
		model     string
		retryable func(error) bool
	)

	switch provider {
	case ai.ProviderGemini:
		client, err := gemini.NewClient(ctx, key)
		if err != nil {
			return nil, err
		}
		g := gemini.NewGenerator(client, cfg.Model, cfg.Temperature, log)
		gen, model, retryable = g, g.Model(), gemini.IsTemporary
	case ai.ProviderGroq, ai.ProviderOpenAI:
		oc := &openai.Config{
			Provider:    provider,
			APIKey:      key,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Logger:      log,
		}
		client, err := openai.NewClient(oc)
		if err != nil {
			return nil, err
		}
		g := openai.NewGenerator(client, oc)
		gen, model, retryable = g, g.Model(), openai.IsTemporary
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	policy := ai.Policy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		Retryable:  retryable,
	}

	log.Info("generative model ready",
		zap.String(logger.FieldProvider, provider),
		zap.String(logger.FieldModel, model),
		zap.Int("ai_retry_attempts", cfg.MaxRetries),
	)

	return ai.WithRetry(ai.Instrument(gen, provider, model), policy, logger.WithAI(log, provider, model)), nil
}

// newEmbedder builds the embedding model. API keys fall back to the ai
// section when the embedding provider matches the generative one.
func newEmbedder(ctx context.Context, cfg *EmbeddingConfig, aiCfg *AIConfig, log *zap.Logger) (ai.Embedder, error) {
	provider := providerName(cfg.Provider)

	value, file := cfg.APIKey, cfg.APIKeyFile
	if value == "" && file == "" && aiCfg != nil && providerName(aiCfg.Provider) == provider {
		value, file = aiCfg.APIKey, aiCfg.APIKeyFile
	}

	var (
		emb       ai.Embedder
		model     string
		retryable func(error) bool
	)

	switch provider {
	case "", ai.ProviderHashing:
		h := hashing.New(cfg.Dimensions)
		log.Info("using local hashing embedder", zap.Int("dimensions", h.Dimensions()))
		return h, nil
	case ai.ProviderGemini:
		key, err := apiKey(provider, value, file)
		if err != nil {
			return nil, err
		}
		client, err := gemini.NewClient(ctx, key)
		if err != nil {
			return nil, err
		}
		e := gemini.NewEmbedder(client, cfg.Model)
		emb, model, retryable = e, e.Model(), gemini.IsTemporary
	case ai.ProviderOpenAI:
		key, err := apiKey(provider, value, file)
		if err != nil {
			return nil, err
		}
		client, err := openai.NewClient(&openai.Config{Provider: provider, APIKey: key, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		e := openai.NewEmbedder(client, cfg.Model, cfg.Dimensions)
		emb, model, retryable = e, e.Model(), openai.IsTemporary
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	var policy ai.Policy
	if aiCfg != nil {
		policy = ai.Policy{MaxRetries: aiCfg.MaxRetries, Backoff: aiCfg.RetryBackoff}
	}
	policy.Retryable = retryable

	log.Info("embedding model ready", zap.String(logger.FieldProvider, provider), zap.String(logger.FieldModel, model))

	return ai.WithEmbedRetry(
		ai.InstrumentEmbedder(emb, provider, model),
		policy,
		logger.WithAI(log, provider, model),
	), nil
}

// redacted returns a copy of the config safe for logging.
func redacted(c *Config) *Config {
	out := *c
	if c.AI != nil {
		aiCfg := *c.AI
		aiCfg.APIKey = mask(aiCfg.APIKey)
		out.AI = &aiCfg
	}
	if c.Embedding != nil {
		emb := *c.Embedding
		emb.APIKey = mask(emb.APIKey)
		out.Embedding = &emb
	}
	if c.Index != nil && c.Index.Redis != nil {
		idx := *c.Index
		r := *c.Index.Redis
		r.Password = mask(r.Password)
		idx.Redis = &r
		out.Index = &idx
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
