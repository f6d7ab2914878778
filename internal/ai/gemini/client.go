package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/utils"
)

const (
	defaultModel = "gemini-2.5-flash"
	retryBase    = time.Second
	// Quota errors asking to wait longer than this are not retried.
	maxQuotaWait = 20 * time.Second
)

var wait = utils.WaitFor

var retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Generator wraps the Google GenAI client behind ai.Generator.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	logger     *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
// maxRetries is the number of extra attempts after a transient failure.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: maxRetries,
		logger:     logger.WithCommonFields(log, "gemini", model),
	}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate sends the conversation to Gemini. System messages become the
// system instruction, the last user message is sent and everything before it
// is passed as history.
func (g *Generator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	if req == nil {
		return "", errors.New("generate request is required")
	}

	history, message, err := splitConversation(req.Messages)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.System()); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, utils.Backoff(retryBase, attempt)); err != nil {
				return "", fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
			}
		}

		output, err := g.send(ctx, config, history, message)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}

		g.logger.Debug("gemini request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", g.maxRetries),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("%w: %w", ai.ErrUnavailable, lastErr)
}

func (g *Generator) send(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content, message string) (string, error) {
	chat, err := g.chats.Create(ctx, g.model, config, history)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return responseText(resp)
}

func splitConversation(messages []ai.Message) ([]*genai.Content, string, error) {
	last := -1
	for i, m := range messages {
		if m.Role == ai.RoleUser {
			last = i
		}
	}
	if last == -1 || strings.TrimSpace(messages[last].Content) == "" {
		return nil, "", errors.New("a non-empty user message is required")
	}

	var history []*genai.Content
	for _, m := range messages[:last] {
		role := genai.RoleUser
		switch m.Role {
		case ai.RoleSystem:
			continue
		case ai.RoleAssistant:
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	return history, messages[last].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned no response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// Transport level failures and deadline hits are worth another try.
		return true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return quotaDelay(apiErr.Message) <= maxQuotaWait
	case apiErr.Code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func quotaDelay(message string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(message)
	if len(m) != 2 {
		return 0
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
