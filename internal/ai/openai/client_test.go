package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
)

type fakeAPI struct {
	chatResp  openai.ChatCompletionResponse
	embedResp openai.EmbeddingResponse
	err       error

	lastChat  openai.ChatCompletionRequest
	lastEmbed openai.EmbeddingRequest
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastChat = req
	return f.chatResp, f.err
}

func (f *fakeAPI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.lastEmbed = conv.Convert()
	return f.embedResp, f.err
}

func TestGeneratorSendsSingleUserMessage(t *testing.T) {
	fake := &fakeAPI{chatResp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  {\"role\": \"SRE\"}  "}}},
	}}
	g := &Generator{client: fake, model: "llama-3.3-70b-versatile", temperature: 0.7, logger: zap.NewNop()}

	out, err := g.GenerateContent(context.Background(), "extract")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{\"role\": \"SRE\"}" {
		t.Fatalf("unexpected output: %q", out)
	}

	if fake.lastChat.Model != "llama-3.3-70b-versatile" || fake.lastChat.Temperature != 0.7 {
		t.Fatalf("unexpected request: %+v", fake.lastChat)
	}
	if len(fake.lastChat.Messages) != 1 || fake.lastChat.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("unexpected messages: %+v", fake.lastChat.Messages)
	}
}

func TestGeneratorNoChoices(t *testing.T) {
	g := &Generator{client: &fakeAPI{}, model: "m", logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "p"); err == nil {
		t.Fatal("expected error when no choices returned")
	}
}

func TestGeneratorMapsAPIError(t *testing.T) {
	fake := &fakeAPI{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"}}
	g := &Generator{client: fake, model: "m", logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "p")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests || statusErr.Message != "rate limited" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if !IsTemporary(err) {
		t.Fatalf("expected rate limit to be temporary")
	}
}

func TestNewGeneratorDefaultsPerProvider(t *testing.T) {
	client, err := NewClient(&Config{Provider: ai.ProviderGroq, APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := NewGenerator(client, &Config{Provider: ai.ProviderGroq})
	if g.Model() != defaultGroqModel {
		t.Fatalf("expected groq default model, got %s", g.Model())
	}

	g = NewGenerator(client, &Config{Provider: ai.ProviderOpenAI})
	if g.Model() != defaultOpenAIModel {
		t.Fatalf("expected openai default model, got %s", g.Model())
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(&Config{Provider: ai.ProviderOpenAI, APIKey: " "}); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestEmbedderReordersByIndex(t *testing.T) {
	fake := &fakeAPI{embedResp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}}
	e := &Embedder{client: fake, model: openai.SmallEmbedding3, dimensions: 2}

	vectors, err := e.Embed(context.Background(), []string{"Python", "React"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("vectors not reordered: %v", vectors)
	}
	if fake.lastEmbed.Dimensions != 2 {
		t.Fatalf("expected dimensions to be forwarded, got %d", fake.lastEmbed.Dimensions)
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	fake := &fakeAPI{err: errors.New("must not be called")}
	e := &Embedder{client: fake, model: openai.SmallEmbedding3}

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("expected nil result, got %v, %v", vectors, err)
	}
}

func TestIsTemporary(t *testing.T) {
	if IsTemporary(&StatusError{StatusCode: http.StatusUnauthorized}) {
		t.Fatal("401 must not be temporary")
	}
	if !IsTemporary(&StatusError{StatusCode: http.StatusBadGateway}) {
		t.Fatal("502 must be temporary")
	}
	if !IsTemporary(errors.New("connection reset")) {
		t.Fatal("transport errors must be temporary")
	}
}
