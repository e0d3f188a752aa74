// Package openai talks to OpenAI-compatible chat and embedding endpoints,
// which covers both OpenAI itself and Groq.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/logger"
)

// GroqBaseURL is the OpenAI-compatible Groq endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultEmbeddingModel = string(openai.SmallEmbedding3)
)

// api is the subset of *openai.Client used here.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config holds connection settings for an OpenAI-compatible provider.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// NewClient builds the underlying go-openai client. Groq gets its base URL by default.
func NewClient(cfg *Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s api key is required", cfg.Provider)
	}

	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	switch {
	case strings.TrimSpace(cfg.BaseURL) != "":
		clientCfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	case cfg.Provider == ai.ProviderGroq:
		clientCfg.BaseURL = GroqBaseURL
	}

	return openai.NewClientWithConfig(clientCfg), nil
}

// Generator produces text with chat completions.
type Generator struct {
	client      api
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewGenerator creates a chat-completion Generator.
func NewGenerator(client *openai.Client, cfg *Config) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
		if cfg.Provider == ai.ProviderGroq {
			model = defaultGroqModel
		}
	}

	return &Generator{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger.WithAI(cfg.Logger, cfg.Provider, model),
	}
}

// GenerateContent sends the prompt as a single user message and returns the first choice.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("chat completion request", zap.Int("prompt_length", utf8.RuneCountInString(prompt)))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("chat completion returned empty content")
	}

	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		g.logger.Warn("chat completion truncated by token limit", zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	}

	return output, nil
}

func (g *Generator) Model() string {
	return g.model
}

// Embedder produces embeddings through the embeddings endpoint.
type Embedder struct {
	client     api
	model      openai.EmbeddingModel
	dimensions int
}

// NewEmbedder creates an Embedder. dimensions <= 0 keeps the model default.
func NewEmbedder(client *openai.Client, model string, dimensions int) *Embedder {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{client: client, model: openai.EmbeddingModel(model), dimensions: dimensions}
}

// Embed implements ai.Embedder. Results are reordered by the index the API reports.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding api returned out of range index %d", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding api returned no vector for text %d", i)
		}
	}

	return out, nil
}

func (e *Embedder) Model() string {
	return string(e.model)
}

// StatusError carries the HTTP status of a failed API call.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }

// parseAPIError extracts a readable message and status from go-openai errors.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = strings.TrimSpace(string(reqErr.Body))
		}
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	return fmt.Errorf("request failed: %w", err)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error.Message
}

// IsTemporary reports whether err is a rate limit, a server-side failure or a
// transport error without a status code.
func IsTemporary(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return err != nil
}
