package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/resume-gpt/internal/matching"
	"github.com/spigell/resume-gpt/internal/skills"
	"github.com/spigell/resume-gpt/internal/storage"
)

type fixedMatcher struct {
	cmp   skills.Comparison
	calls []string
}

func (m *fixedMatcher) Analyze(_ context.Context, resumeText, jobDescription string) (*skills.Comparison, error) {
	if resumeText == "" || jobDescription == "" {
		return nil, matching.ErrInvalidArgument
	}
	m.calls = append(m.calls, resumeText)
	out := m.cmp
	return &out, nil
}

func sampleComparison() skills.Comparison {
	cmp := skills.Comparison{
		MatchedTech: []skills.MatchedSkill{{JobSkill: "Python", ResumeSkill: "Python", Similarity: 0.95}},
		MissingTech: skills.SkillSet{"Node.js"},
		Suggestions: "Add a Node.js project.",
	}
	cmp.Normalize()
	return cmp
}

func TestAnalyzeCreatesUploadedResume(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := New(&fixedMatcher{cmp: sampleComparison()}, store, nil)

	res, err := svc.Analyze(ctx, 7, nil, "Python developer", "Python and Node.js")
	require.NoError(t, err)

	assert.Equal(t, uint(1), res.ID)
	assert.Equal(t, uint(1), res.ResumeID)
	assert.NotNil(t, res.CreatedAt)
	assert.Equal(t, sampleComparison(), res.Comparison)

	resume, err := store.GetResume(ctx, 7, res.ResumeID)
	require.NoError(t, err)
	assert.Equal(t, UploadedResumeName, resume.Name)
	assert.Equal(t, "Python developer", resume.Content)
}

func TestAnalyzeStoredUsesResumeContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	matcher := &fixedMatcher{cmp: sampleComparison()}
	svc := New(matcher, store, nil)

	resume, err := svc.UploadResume(ctx, 3, "Backend CV", "Go and Python", "")
	require.NoError(t, err)

	res, err := svc.AnalyzeStored(ctx, 3, resume.ID, "Python role")
	require.NoError(t, err)
	assert.Equal(t, resume.ID, res.ResumeID)
	assert.Equal(t, []string{"Go and Python"}, matcher.calls)

	_, err = svc.AnalyzeStored(ctx, 4, resume.ID, "Python role")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := svc.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.ID, history[0].ID)
}

func TestAnalyzeWithoutStore(t *testing.T) {
	ctx := context.Background()
	svc := New(&fixedMatcher{cmp: sampleComparison()}, nil, nil)
	assert.False(t, svc.HasStore())

	res, err := svc.Analyze(ctx, 1, nil, "resume", "job")
	require.NoError(t, err)
	assert.Zero(t, res.ID)
	assert.Equal(t, "Add a Node.js project.", res.Suggestions)

	_, err = svc.History(ctx, 1)
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = svc.AnalyzeStored(ctx, 1, 1, "job")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestAnalyzeInvalidInputStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := New(&fixedMatcher{}, store, nil)

	_, err := svc.Analyze(ctx, 1, nil, "", "job")
	require.ErrorIs(t, err, matching.ErrInvalidArgument)

	_, err = store.GetResume(ctx, 1, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUploadResumeValidates(t *testing.T) {
	svc := New(&fixedMatcher{}, storage.NewMemoryStore(), nil)

	_, err := svc.UploadResume(context.Background(), 1, " ", "content", "")
	assert.ErrorIs(t, err, matching.ErrInvalidArgument)

	_, err = svc.UploadResume(context.Background(), 1, "cv", "", "")
	assert.ErrorIs(t, err, matching.ErrInvalidArgument)
}
