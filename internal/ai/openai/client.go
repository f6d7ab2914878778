// Package openai talks to OpenAI-compatible chat and embedding endpoints.
// Groq is the default target: it serves the same API under its own base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/utils"
)

const (
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// DefaultGroqModel is used when no chat model is configured for Groq.
	DefaultGroqModel = "gemma2-9b-it"
	// DefaultEmbeddingModel is used when no embedding model is configured.
	DefaultEmbeddingModel = string(goopenai.SmallEmbedding3)
)

var wait = utils.WaitFor

// Config configures both the generator and the embedder.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

func newClient(cfg Config) (*goopenai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}

	clientCfg := goopenai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return goopenai.NewClientWithConfig(clientCfg), nil
}

// Generator implements ai.Generator with chat completions.
type Generator struct {
	client     *goopenai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewGenerator creates a chat generator. An empty model defaults to the Groq model.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("openai generator: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGroqModel
	}

	return &Generator{
		client:     client,
		model:      model,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: retryDelay(cfg.RetryDelay),
		logger:     logger.WithCommonFields(log, "openai", model),
	}, nil
}

func (g *Generator) Model() string {
	return g.model
}

// Generate runs one chat completion and returns the first choice's content.
func (g *Generator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	if req == nil || len(req.Messages) == 0 {
		return "", errors.New("generate request needs at least one message")
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	// A zero temperature is dropped by omitempty and the server default applies.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	request := goopenai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        1,
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, utils.Backoff(g.retryDelay, attempt)); err != nil {
				return "", fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
			}
		}

		resp, err := g.client.CreateChatCompletion(ctx, request)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			if !retryable(err) {
				break
			}
			g.logger.Debug("chat completion failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %w", ai.ErrUnavailable, lastErr)
}

// Embedder implements ai.Embedder with the embeddings endpoint.
type Embedder struct {
	client *goopenai.Client
	model  string
	logger *zap.Logger
}

// NewEmbedder creates a batch embedder.
func NewEmbedder(cfg Config, log *zap.Logger) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &Embedder{
		client: client,
		model:  model,
		logger: logger.WithCommonFields(log, "openai", model),
	}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

// Embed sends all texts in one request. Vectors are reordered by the index
// the service reports so they line up with texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create embeddings: %w", ai.ErrUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ai.ErrUnavailable, len(texts), len(resp.Data))
	}

	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ai.ErrUnavailable, idx)
		}
		if vectors[idx] != nil {
			return nil, fmt.Errorf("%w: embedding index %d repeated", ai.ErrUnavailable, idx)
		}
		vec := make([]float64, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float64(v)
		}
		vectors[idx] = vec
	}

	e.logger.Debug("embeddings created", zap.Int("count", len(vectors)))
	return vectors, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	return true
}

func retryDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}
