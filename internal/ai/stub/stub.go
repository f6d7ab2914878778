// Package stub provides deterministic stand-ins for the remote model services.
// They back the tests and the offline "stub" provider.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	"github.com/spigell/resume-gpt/internal/ai"
)

// Generator answers chat requests with Respond and records every request.
type Generator struct {
	Respond   func(req *ai.GenerateRequest) (string, error)
	ModelName string

	mu       sync.Mutex
	requests []*ai.GenerateRequest
}

// NewGenerator returns a generator that always answers with respond.
func NewGenerator(respond func(req *ai.GenerateRequest) (string, error)) *Generator {
	return &Generator{Respond: respond, ModelName: "stub"}
}

// Fixed returns a generator that always answers text.
func Fixed(text string) *Generator {
	return NewGenerator(func(*ai.GenerateRequest) (string, error) { return text, nil })
}

// Failing returns a generator that always fails with ai.ErrUnavailable.
func Failing() *Generator {
	return NewGenerator(func(*ai.GenerateRequest) (string, error) {
		return "", fmt.Errorf("%w: stub failure", ai.ErrUnavailable)
	})
}

func (g *Generator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}
	if g.Respond == nil {
		return "", fmt.Errorf("%w: no responder", ai.ErrUnavailable)
	}
	return g.Respond(req)
}

func (g *Generator) Model() string {
	if g.ModelName == "" {
		return "stub"
	}
	return g.ModelName
}

// Requests returns the recorded requests.
func (g *Generator) Requests() []*ai.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*ai.GenerateRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastUserMessage returns the last user message of req.
func LastUserMessage(req *ai.GenerateRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// KeywordResponder answers skill extraction prompts (those mentioning
// "technical_skills") with the catalog entries found in the prompt as whole
// words, case-insensitively. Any other prompt gets suggestion.
func KeywordResponder(technical, soft []string, suggestion string) func(req *ai.GenerateRequest) (string, error) {
	techRe := compileCatalog(technical)
	softRe := compileCatalog(soft)

	return func(req *ai.GenerateRequest) (string, error) {
		msg := LastUserMessage(req)
		if !strings.Contains(msg, "technical_skills") {
			return suggestion, nil
		}

		body, err := json.Marshal(map[string][]string{
			"technical_skills": findAll(techRe, msg),
			"soft_skills":      findAll(softRe, msg),
		})
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
}

type catalogEntry struct {
	name string
	re   *regexp.Regexp
}

func compileCatalog(names []string) []catalogEntry {
	entries := make([]catalogEntry, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)(^|[^\pL\pN])` + regexp.QuoteMeta(name) + `($|[^\pL\pN])`)
		entries = append(entries, catalogEntry{name: name, re: re})
	}
	return entries
}

func findAll(entries []catalogEntry, text string) []string {
	found := make([]string, 0)
	for _, e := range entries {
		if e.re.MatchString(text) {
			found = append(found, e.name)
		}
	}
	return found
}

// Embedder returns fixed vectors for known texts. Unknown texts go through
// Fallback, or fail with ai.ErrUnavailable when Fallback is nil.
type Embedder struct {
	Vectors   map[string][]float64
	Fallback  func(text string) []float64
	Err       error
	ModelName string

	mu    sync.Mutex
	calls [][]string
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}

	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := e.Vectors[t]; ok {
			out[i] = append([]float64(nil), v...)
			continue
		}
		if e.Fallback == nil {
			return nil, fmt.Errorf("%w: no vector for %q", ai.ErrUnavailable, t)
		}
		out[i] = e.Fallback(t)
	}
	return out, nil
}

func (e *Embedder) Model() string {
	if e.ModelName == "" {
		return "stub"
	}
	return e.ModelName
}

// Calls returns the batches Embed was called with.
func (e *Embedder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.calls))
	copy(out, e.calls)
	return out
}

const trigramDims = 64

// Trigrams embeds text as a hashed bag of lower-cased character trigrams.
// Similar spellings land close together, which is enough for offline runs.
func Trigrams(text string) []float64 {
	vec := make([]float64, trigramDims)
	runes := []rune(" " + strings.ToLower(strings.TrimSpace(text)) + " ")
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%trigramDims]++
	}
	return vec
}
