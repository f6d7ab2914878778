package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/skills"
	"github.com/spigell/resume-gpt/internal/utils"
)

// SkillExtractor is the extraction contract the cache decorates.
type SkillExtractor interface {
	Extract(ctx context.Context, text string) skills.Extraction
	Model() string
}

// Extractor caches extractions by model and document text. Empty extractions
// are not stored since they usually mean the model was unavailable.
type Extractor struct {
	next   SkillExtractor
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewExtractor(next SkillExtractor, store Store, ttl time.Duration, log *zap.Logger) *Extractor {
	return &Extractor{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.WithStage(logger.OrNop(log), "extraction-cache"),
	}
}

func (e *Extractor) Model() string {
	return e.next.Model()
}

func (e *Extractor) Extract(ctx context.Context, text string) skills.Extraction {
	key := "extraction:" + utils.ContentHash(e.next.Model(), text)

	if raw, err := e.store.Get(ctx, key); err == nil {
		var cached skills.Extraction
		if err := json.Unmarshal(raw, &cached); err == nil {
			e.logger.Debug("extraction served from cache", zap.String("key", key))
			return cached
		}
		e.logger.Warn("dropping undecodable cached extraction", zap.String("key", key))
	} else if !errors.Is(err, ErrMiss) {
		e.logger.Warn("extraction cache read failed", zap.Error(err))
	}

	result := e.next.Extract(ctx, text)
	if result.IsEmpty() {
		return result
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return result
	}
	if err := e.store.Set(ctx, key, raw, e.ttl); err != nil {
		e.logger.Warn("extraction cache write failed", zap.Error(err))
	}

	return result
}

// Embedder caches one vector per model and text. Only the texts missing from
// the cache are sent to the wrapped embedder, in a single batch.
type Embedder struct {
	next   ai.Embedder
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewEmbedder(next ai.Embedder, store Store, ttl time.Duration, log *zap.Logger) *Embedder {
	return &Embedder{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.WithStage(logger.OrNop(log), "embedding-cache"),
	}
}

func (e *Embedder) Model() string {
	return e.next.Model()
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		keys[i] = "embedding:" + utils.ContentHash(e.next.Model(), t)
		if v, ok := e.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		e.logger.Debug("embeddings served from cache", zap.Int("count", len(texts)))
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, errors.Join(ai.ErrUnavailable, errors.New("embedding count does not match input count"))
	}

	for j, v := range vectors {
		i := missIdx[j]
		out[i] = v
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if err := e.store.Set(ctx, keys[i], raw, e.ttl); err != nil {
			e.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}

	e.logger.Debug("embeddings fetched",
		zap.Int("cached", len(texts)-len(missTexts)),
		zap.Int("fetched", len(missTexts)),
	)

	return out, nil
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float64, bool) {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			e.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}
