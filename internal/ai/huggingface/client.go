// Package huggingface calls the Hugging Face inference feature-extraction
// pipeline to embed short texts.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/utils"
)

const (
	DefaultModel   = "sentence-transformers/all-MiniLM-L6-v2"
	defaultBaseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"
	contentType    = "application/json"
	// Bodies of failed responses are logged up to this many runes.
	errorBodyLimit = 300
)

type request struct {
	Inputs  []string       `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Client embeds a batch of texts in a single request.
type Client struct {
	token      string
	model      string
	logger     *zap.Logger
	HTTPClient *http.Client
	// URL is the full endpoint. It defaults to the feature-extraction
	// pipeline of the configured model.
	URL string
}

// New creates a client. An empty model uses all-MiniLM-L6-v2.
func New(token, model string, timeout time.Duration, log *zap.Logger) *Client {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		token:  strings.TrimSpace(token),
		model:  model,
		logger: logger.WithCommonFields(log, "huggingface", model),
		URL:    fmt.Sprintf("%s/%s", defaultBaseURL, model),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Model() string {
	return c.model
}

// Embed returns one vector per text in input order. Any non-200 answer,
// undecodable body or shape mismatch is reported as ai.ErrUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	payload, err := json.Marshal(request{
		Inputs:  texts,
		Options: requestOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal feature extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	c.logger.Debug("make request", zap.String("url", req.URL.String()), zap.Int("inputs", len(texts)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ai.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("feature extraction failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.TruncateForLog(string(data), errorBodyLimit)),
		)
		return nil, fmt.Errorf("%w: bad status: %s", ai.ErrUnavailable, resp.Status)
	}

	var vectors [][]float64
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("%w: decode embeddings: %w", ai.ErrUnavailable, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ai.ErrUnavailable, len(texts), len(vectors))
	}

	return vectors, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
}
