package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-gpt/internal/ai"
	"github.com/spigell/resume-gpt/internal/ai/stub"
	"github.com/spigell/resume-gpt/internal/skills"
)

func TestExtractSendsPromptAndParsesAnswer(t *testing.T) {
	gen := stub.Fixed(`{"technical_skills": ["Go", "Kubernetes"], "soft_skills": ["Teamwork"]}`)
	ex := New(gen, time.Second, 0, nil)

	got := ex.Extract(context.Background(), "Five years of Go on Kubernetes.")

	assert.Equal(t, skills.SkillSet{"Go", "Kubernetes"}, got.Technical)
	assert.Equal(t, skills.SkillSet{"Teamwork"}, got.Soft)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, systemPrompt, req.System())
	assert.Equal(t, float32(0), req.Temperature)
	assert.Equal(t, 1024, req.MaxTokens)

	user := stub.LastUserMessage(req)
	assert.Contains(t, user, `"technical_skills"`)
	assert.Contains(t, user, `"soft_skills"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(user), "Five years of Go on Kubernetes."))
}

func TestExtractDegradesOnGeneratorFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ex := New(stub.Failing(), time.Second, 0, zap.New(core))

	got := ex.Extract(context.Background(), "anything")

	assert.NotNil(t, got.Technical)
	assert.NotNil(t, got.Soft)
	assert.True(t, got.IsEmpty())

	entries := logs.FilterMessage("skill extraction failed, continuing without skills").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "extraction", entries[0].ContextMap()["stage"])
}

func TestExtractDegradesOnMalformedAnswer(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ex := New(stub.Fixed("I could not find any skills, sorry."), time.Second, 0, zap.New(core))

	got := ex.Extract(context.Background(), "anything")

	assert.True(t, got.IsEmpty())
	assert.Equal(t, 1, logs.FilterMessage("skill extraction response is not valid JSON, continuing without skills").Len())
}

func TestExtractAppliesTimeout(t *testing.T) {
	gen := stub.NewGenerator(func(*ai.GenerateRequest) (string, error) {
		return `{"technical_skills": ["Go"]}`, nil
	})
	blocking := &blockingGenerator{Generator: gen}
	ex := New(blocking, 20*time.Millisecond, 0, nil)

	got := ex.Extract(context.Background(), "anything")

	assert.True(t, got.IsEmpty())
	assert.ErrorIs(t, blocking.err, context.DeadlineExceeded)
}

type blockingGenerator struct {
	*stub.Generator
	err error
}

func (b *blockingGenerator) Generate(ctx context.Context, _ *ai.GenerateRequest) (string, error) {
	<-ctx.Done()
	b.err = ctx.Err()
	return "", errors.Join(ai.ErrUnavailable, ctx.Err())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTech  skills.SkillSet
		wantSoft  skills.SkillSet
		wantError bool
	}{
		{
			name:     "plain object",
			raw:      `{"technical_skills": ["Python"], "soft_skills": ["Leadership"]}`,
			wantTech: skills.SkillSet{"Python"},
			wantSoft: skills.SkillSet{"Leadership"},
		},
		{
			name:     "fenced",
			raw:      "```json\n{\"technical_skills\": [\"SQL\"], \"soft_skills\": []}\n```",
			wantTech: skills.SkillSet{"SQL"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "prose around object",
			raw:      "Sure! Here you go: {\"technical_skills\": [\"Docker\"], \"soft_skills\": [\"Communication\"]} Hope it helps.",
			wantTech: skills.SkillSet{"Docker"},
			wantSoft: skills.SkillSet{"Communication"},
		},
		{
			name:     "missing key",
			raw:      `{"technical_skills": ["Rust"]}`,
			wantTech: skills.SkillSet{"Rust"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "blank entries dropped, duplicates and case kept",
			raw:      `{"technical_skills": [" Go ", "", "go", "Go"], "soft_skills": ["  "]}`,
			wantTech: skills.SkillSet{"Go", "go", "Go"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "numbers coerced to strings",
			raw:      `{"technical_skills": ["C", 99], "soft_skills": []}`,
			wantTech: skills.SkillSet{"C", "99"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "trailing prose",
			raw:      "{\"technical_skills\": [\"Go\"], \"soft_skills\": [\"Teamwork\"]}\n\nThese are the skills I found.",
			wantTech: skills.SkillSet{"Go"},
			wantSoft: skills.SkillSet{"Teamwork"},
		},
		{
			name:     "trailing prose with braces",
			raw:      "{\"technical_skills\": [\"Go\"], \"soft_skills\": []}\nNote: {braces} are not skills.",
			wantTech: skills.SkillSet{"Go"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "braces in prose before and after object",
			raw:      "Format {as requested}: {\"technical_skills\": [\"Terraform\"], \"soft_skills\": [\"Mentoring\"]} (see {docs})",
			wantTech: skills.SkillSet{"Terraform"},
			wantSoft: skills.SkillSet{"Mentoring"},
		},
		{
			name:     "fenced with trailing prose",
			raw:      "```json\n{\"technical_skills\": [\"SQL\"]}\n```\nLet me know if you need more.",
			wantTech: skills.SkillSet{"SQL"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "truncated inside a string",
			raw:      `{"technical_skills": ["Go", "Kubernetes"], "soft_skills": ["Team`,
			wantTech: skills.SkillSet{"Go", "Kubernetes"},
			wantSoft: skills.SkillSet{"Team"},
		},
		{
			name:     "truncated after a comma",
			raw:      `{"technical_skills": ["Go", "Kubernetes"],`,
			wantTech: skills.SkillSet{"Go", "Kubernetes"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "truncated inside a key",
			raw:      `{"technical_skills": ["Go"], "soft_sk`,
			wantTech: skills.SkillSet{"Go"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:     "truncated after a colon",
			raw:      `{"technical_skills": ["Go"], "soft_skills":`,
			wantTech: skills.SkillSet{"Go"},
			wantSoft: skills.SkillSet{},
		},
		{
			name:      "not json",
			raw:       "no skills here",
			wantError: true,
		},
		{
			name:      "braces without json",
			raw:       "I found {no skills} in {this text}",
			wantError: true,
		},
		{
			name:      "wrong shape",
			raw:       `{"technical_skills": {"name": "Go"}}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantError {
				require.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTech, got.Technical)
			assert.Equal(t, tt.wantSoft, got.Soft)
		})
	}
}

func TestBuildPromptEmbedsText(t *testing.T) {
	prompt := BuildPrompt("Led a team of five.")
	assert.Contains(t, prompt, "Extract all technical skills and soft skills")
	assert.NotContains(t, prompt, "{{TEXT}}")
	assert.Contains(t, prompt, "Led a team of five.")
}
