// Package extraction turns free text into technical and soft skill lists by
// asking a chat model for a two-key JSON object.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/skills"
	"github.com/spigell/resume-gpt/internal/utils"
)

const (
	systemPrompt        = "You are a helpful assistant that extracts skills from text."
	temperature         = 0
	maxTokens           = 1024
	defaultMaxLogLength = 200
	defaultTimeout      = 30 * time.Second
)

//go:embed prompt.md
var promptTemplate string

// ErrMalformedResponse is returned by Parse when the model did not answer with the expected JSON.
var ErrMalformedResponse = errors.New("malformed skill extraction response")

// Extractor extracts skills with a Generator. It never fails: any upstream or
// parsing problem yields an empty Extraction.
type Extractor struct {
	generator ai.Generator
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

// New creates an Extractor. timeout bounds each generator call.
func New(generator ai.Generator, timeout time.Duration, maxLogLength int, log *zap.Logger) *Extractor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		generator: generator,
		timeout:   timeout,
		maxLogLen: maxLogLength,
		logger:    logger.WithStage(logger.OrNop(log), "extraction"),
	}
}

// Model identifies the generator, used to scope cached extractions.
func (e *Extractor) Model() string {
	return e.generator.Model()
}

// Extract returns the technical and soft skills found in text.
func (e *Extractor) Extract(ctx context.Context, text string) skills.Extraction {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := BuildPrompt(text)
	e.logger.Debug("skill extraction request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.Generate(ctx, &ai.GenerateRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		e.logger.Warn("skill extraction failed, continuing without skills", zap.Error(err))
		return skills.Extraction{Technical: skills.SkillSet{}, Soft: skills.SkillSet{}}
	}

	e.logger.Debug("skill extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	extraction, err := Parse(raw)
	if err != nil {
		e.logger.Warn("skill extraction response is not valid JSON, continuing without skills",
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
		)
		return skills.Extraction{Technical: skills.SkillSet{}, Soft: skills.SkillSet{}}
	}

	e.logger.Debug("extracted skills",
		zap.Strings("technical_skills", extraction.Technical),
		zap.Strings("soft_skills", extraction.Soft),
	)

	return extraction
}

// BuildPrompt renders the extraction prompt for text.
func BuildPrompt(text string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Return \"technical_skills\" and \"soft_skills\" as JSON for:\n{{TEXT}}"
	}
	return strings.ReplaceAll(template, "{{TEXT}}", text)
}

type payload struct {
	Technical []string `mapstructure:"technical_skills"`
	Soft      []string `mapstructure:"soft_skills"`
}

// Parse reads the model answer. The first JSON object in raw is decoded
// and anything after it is ignored, so code fences and prose around the
// object are tolerated. An object cut off by the token limit is closed
// before decoding. Missing keys become empty lists.
func Parse(raw string) (skills.Extraction, error) {
	data, err := firstObject(raw)
	if err != nil {
		return skills.Extraction{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var p payload
	if err := mapstructure.WeakDecode(data, &p); err != nil {
		return skills.Extraction{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return skills.Extraction{
		Technical: clean(p.Technical),
		Soft:      clean(p.Soft),
	}, nil
}

func firstObject(raw string) (map[string]any, error) {
	first := strings.Index(raw, "{")
	if first == -1 {
		return nil, errors.New("no JSON object in answer")
	}

	var firstErr error
	for i := first; i != -1; {
		data, err := decodeFirst(raw[i:])
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		next := strings.Index(raw[i+1:], "{")
		if next == -1 {
			break
		}
		i += next + 1
	}

	// Nothing decoded as is. Treat the answer as truncated and close it,
	// dropping trailing members one at a time until it decodes.
	text := raw[first:]
	for {
		repaired, cut := closeTruncated(text)
		if data, err := decodeFirst(repaired); err == nil {
			return data, nil
		}
		if cut < 0 {
			return nil, firstErr
		}
		text = text[:cut]
	}
}

// decodeFirst decodes the JSON object at the start of s; trailing data is
// not read.
func decodeFirst(s string) (map[string]any, error) {
	var data map[string]any
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("answer is not a JSON object")
	}
	return data, nil
}

// closeTruncated terminates an open string and appends the closers for
// every bracket still open at the end of s. cut is the offset of the last
// comma outside a string, or -1.
func closeTruncated(s string) (repaired string, cut int) {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	cut = -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			cut = i
		}
	}

	var b strings.Builder
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		s = strings.TrimRight(s, " \t\r\n")
		s = strings.TrimSuffix(s, ",")
		b.WriteString(s)
		if strings.HasSuffix(s, ":") {
			b.WriteString("null")
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), cut
}

func clean(in []string) skills.SkillSet {
	out := make(skills.SkillSet, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
