// Package matching compares the skills of a resume with the skills a job
// description asks for and produces a skills.Comparison.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/similarity"
	"github.com/spigell/resume-gpt/internal/skills"
	"github.com/spigell/resume-gpt/internal/utils"
)

const (
	// DefaultThreshold is the minimum rounded similarity for a job skill to count as matched.
	DefaultThreshold = 0.40
	// FallbackSuggestion replaces the suggestion when the generator fails.
	FallbackSuggestion = "Error: Unable to generate suggestions."

	suggestionSystemPrompt = "You are a helpful career coach and resume expert."
	suggestionTemperature  = 0.7
	suggestionMaxTokens    = 1000

	defaultTimeout      = 30 * time.Second
	defaultMaxLogLength = 200
)

//go:embed suggestion_prompt.md
var suggestionTemplate string

// ErrInvalidArgument is returned when a document to analyze is blank.
var ErrInvalidArgument = errors.New("invalid argument")

// Extractor pulls technical and soft skills out of a document. Implementations
// absorb upstream failures and return empty lists instead.
type Extractor interface {
	Extract(ctx context.Context, text string) skills.Extraction
}

// Options tune a Matcher. Zero values fall back to the defaults.
type Options struct {
	Threshold         float64
	EmbeddingTimeout  time.Duration
	GenerationTimeout time.Duration
	MaxLogLength      int
}

// Matcher runs the analysis pipeline: extraction of both documents, per
// category embedding and best-match search, then a suggestion.
//
// Matching runs from resume to job: every resume skill picks its single best
// job skill, and a job skill is matched only when some resume skill picked it
// with a similarity at or above the threshold. A job skill that is merely the
// second best candidate of every resume skill stays missing however close it
// is. The first resume skill (in resume order) to claim a job skill is the one
// reported.
//
// A Matcher holds no per-analysis state and is safe for concurrent use.
type Matcher struct {
	extractor Extractor
	embedder  ai.Embedder
	generator ai.Generator

	threshold         float64
	embeddingTimeout  time.Duration
	generationTimeout time.Duration
	maxLogLen         int
	logger            *zap.Logger
}

// New wires a Matcher from its collaborators.
func New(extractor Extractor, embedder ai.Embedder, generator ai.Generator, opts Options, log *zap.Logger) *Matcher {
	m := &Matcher{
		extractor:         extractor,
		embedder:          embedder,
		generator:         generator,
		threshold:         opts.Threshold,
		embeddingTimeout:  opts.EmbeddingTimeout,
		generationTimeout: opts.GenerationTimeout,
		maxLogLen:         opts.MaxLogLength,
		logger:            logger.OrNop(log),
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.embeddingTimeout <= 0 {
		m.embeddingTimeout = defaultTimeout
	}
	if m.generationTimeout <= 0 {
		m.generationTimeout = defaultTimeout
	}
	if m.maxLogLen <= 0 {
		m.maxLogLen = defaultMaxLogLength
	}

	return m
}

// Threshold returns the similarity threshold in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Analyze compares a resume with a job description. Upstream failures never
// surface here: they leave the affected lists empty or the suggestion set to
// FallbackSuggestion. The only error is ErrInvalidArgument for blank input.
func (m *Matcher) Analyze(ctx context.Context, resumeText, jobDescription string) (*skills.Comparison, error) {
	if strings.TrimSpace(resumeText) == "" {
		return nil, fmt.Errorf("%w: resume text is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(jobDescription) == "" {
		return nil, fmt.Errorf("%w: job description is empty", ErrInvalidArgument)
	}

	log := m.logger.With(zap.String(logger.FieldAnalysisID, uuid.NewString()))
	started := time.Now()
	log.Info("analysis started",
		zap.Int("resume_length", utf8.RuneCountInString(resumeText)),
		zap.Int("job_description_length", utf8.RuneCountInString(jobDescription)),
	)

	var resume, job skills.Extraction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resume = m.extractor.Extract(gctx, resumeText)
		return nil
	})
	g.Go(func() error {
		job = m.extractor.Extract(gctx, jobDescription)
		return nil
	})
	_ = g.Wait()

	log.Debug("skills extracted",
		zap.Int("resume_technical", len(resume.Technical)),
		zap.Int("resume_soft", len(resume.Soft)),
		zap.Int("job_technical", len(job.Technical)),
		zap.Int("job_soft", len(job.Soft)),
	)

	cmp := &skills.Comparison{}
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		cmp.MatchedTech, cmp.MissingTech = m.matchSkills(gctx, log, skills.Technical, resume.Technical, job.Technical)
		return nil
	})
	g.Go(func() error {
		cmp.MatchedSoft, cmp.MissingSoft = m.matchSkills(gctx, log, skills.Soft, resume.Soft, job.Soft)
		return nil
	})
	_ = g.Wait()

	cmp.Suggestions = m.suggest(ctx, log, resumeText, jobDescription, cmp)
	cmp.Normalize()

	log.Info("analysis finished",
		zap.Int("matched_technical", len(cmp.MatchedTech)),
		zap.Int("matched_soft", len(cmp.MatchedSoft)),
		zap.Int("missing_technical", len(cmp.MissingTech)),
		zap.Int("missing_soft", len(cmp.MissingSoft)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return cmp, nil
}

// MatchSkills partitions jobSkills into matched and missing against resumeSkills.
// When either side is empty, or embeddings are unavailable, nothing is matched
// and missing is a copy of jobSkills.
func (m *Matcher) MatchSkills(ctx context.Context, resumeSkills, jobSkills skills.SkillSet) ([]skills.MatchedSkill, skills.SkillSet) {
	return m.matchSkills(ctx, m.logger, "", resumeSkills, jobSkills)
}

func (m *Matcher) matchSkills(ctx context.Context, log *zap.Logger, category skills.Category, resumeSkills, jobSkills skills.SkillSet) ([]skills.MatchedSkill, skills.SkillSet) {
	matched := []skills.MatchedSkill{}
	if len(resumeSkills) == 0 || len(jobSkills) == 0 {
		return matched, jobSkills.Clone()
	}

	log = logger.WithStage(log, "embedding")
	if category != "" {
		log = log.With(zap.String("category", string(category)))
	}

	var resumeVectors, jobVectors [][]float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resumeVectors, err = m.embed(gctx, resumeSkills)
		return err
	})
	g.Go(func() error {
		var err error
		jobVectors, err = m.embed(gctx, jobSkills)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Warn("embeddings unavailable, reporting all job skills as missing", zap.Error(err))
		return matched, jobSkills.Clone()
	}

	best, err := similarity.BestMatches(resumeVectors, resumeSkills, jobVectors, jobSkills)
	if err != nil {
		log.Warn("embeddings unusable, reporting all job skills as missing", zap.Error(err))
		return matched, jobSkills.Clone()
	}

	claimed := make(map[string]bool, len(jobSkills))
	for _, bm := range best.Entries() {
		if bm.Similarity < m.threshold || claimed[bm.Target] {
			continue
		}
		claimed[bm.Target] = true
		matched = append(matched, skills.MatchedSkill{
			JobSkill:    bm.Target,
			ResumeSkill: bm.Source,
			Similarity:  bm.Similarity,
		})
	}

	missing := make(skills.SkillSet, 0, len(jobSkills))
	for _, s := range jobSkills {
		if !claimed[s] {
			missing = append(missing, s)
		}
	}

	log.Debug("skills matched", zap.Int("matched", len(matched)), zap.Int("missing", len(missing)))

	return matched, missing
}

func (m *Matcher) embed(ctx context.Context, texts skills.SkillSet) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.embeddingTimeout)
	defer cancel()

	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d skills", ai.ErrUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}

func (m *Matcher) suggest(ctx context.Context, log *zap.Logger, resumeText, jobDescription string, cmp *skills.Comparison) string {
	ctx, cancel := context.WithTimeout(ctx, m.generationTimeout)
	defer cancel()

	log = logger.WithStage(log, "suggestion")
	prompt := BuildSuggestionPrompt(resumeText, jobDescription, cmp)
	log.Debug("suggestion request", zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)))

	text, err := m.generator.Generate(ctx, &ai.GenerateRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: suggestionSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
		Temperature: suggestionTemperature,
		MaxTokens:   suggestionMaxTokens,
	})
	if err != nil {
		log.Warn("suggestion generation failed", zap.Error(err))
		return FallbackSuggestion
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("suggestion generation returned nothing")
		return FallbackSuggestion
	}

	return strings.TrimSpace(text)
}

// BuildSuggestionPrompt renders the suggestion prompt from both documents and the skill lists.
func BuildSuggestionPrompt(resumeText, jobDescription string, cmp *skills.Comparison) string {
	r := strings.NewReplacer(
		"{{RESUME}}", resumeText,
		"{{JOB_DESCRIPTION}}", jobDescription,
		"{{MATCHED_TECH}}", formatMatched(cmp.MatchedTech),
		"{{MATCHED_SOFT}}", formatMatched(cmp.MatchedSoft),
		"{{MISSING_TECH}}", formatMissing(cmp.MissingTech),
		"{{MISSING_SOFT}}", formatMissing(cmp.MissingSoft),
	)
	return r.Replace(suggestionTemplate)
}

func formatMatched(matched []skills.MatchedSkill) string {
	if len(matched) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(matched))
	for _, ms := range matched {
		parts = append(parts, fmt.Sprintf("%s (resume: %s, similarity %.2f)", ms.JobSkill, ms.ResumeSkill, ms.Similarity))
	}
	return strings.Join(parts, ", ")
}

func formatMissing(missing skills.SkillSet) string {
	if len(missing) == 0 {
		return "none"
	}
	return strings.Join(missing, ", ")
}
