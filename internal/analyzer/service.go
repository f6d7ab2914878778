// Package analyzer ties the skill matcher to resume storage: it runs an
// analysis and records the result for the requesting user.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/matching"
	"github.com/spigell/resume-gpt/internal/skills"
	"github.com/spigell/resume-gpt/internal/storage"
)

// UploadedResumeName names resumes created implicitly for a text-only analysis.
const UploadedResumeName = "Uploaded Resume"

// ErrNoStore is returned by operations that need persistence when none is configured.
var ErrNoStore = errors.New("persistence is not configured")

// Matcher runs one analysis.
type Matcher interface {
	Analyze(ctx context.Context, resumeText, jobDescription string) (*skills.Comparison, error)
}

// Store is the persistence the service needs.
type Store interface {
	CreateResume(ctx context.Context, r *storage.Resume) error
	GetResume(ctx context.Context, userID, resumeID uint) (*storage.Resume, error)
	SaveAnalysis(ctx context.Context, a *storage.ResumeAnalysis) error
	History(ctx context.Context, userID uint) ([]storage.ResumeAnalysis, error)
}

// Result is an analysis as shown to callers. ID is zero when it was not stored.
type Result struct {
	ID        uint       `json:"id"`
	ResumeID  uint       `json:"resume_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	skills.Comparison
}

type Service struct {
	matcher Matcher
	store   Store
	logger  *zap.Logger
}

// New creates a Service. store may be nil, in which case analyses are not persisted.
func New(matcher Matcher, store Store, log *zap.Logger) *Service {
	return &Service{
		matcher: matcher,
		store:   store,
		logger:  logger.OrNop(log),
	}
}

// HasStore reports whether analyses can be persisted.
func (s *Service) HasStore() bool {
	return s.store != nil
}

// Compare runs the matcher without touching storage.
func (s *Service) Compare(ctx context.Context, resumeText, jobDescription string) (*skills.Comparison, error) {
	return s.matcher.Analyze(ctx, resumeText, jobDescription)
}

// Analyze compares resumeText with jobDescription and stores the result for
// userID. When resumeID is nil the text is stored as a new resume first.
// Without a store the comparison is returned with a zero ID.
func (s *Service) Analyze(ctx context.Context, userID uint, resumeID *uint, resumeText, jobDescription string) (*Result, error) {
	cmp, err := s.Compare(ctx, resumeText, jobDescription)
	if err != nil {
		return nil, err
	}

	if s.store == nil {
		return &Result{Comparison: *cmp}, nil
	}

	return s.Save(ctx, userID, resumeID, resumeText, jobDescription, cmp)
}

// AnalyzeStored analyzes a resume previously uploaded by userID.
func (s *Service) AnalyzeStored(ctx context.Context, userID, resumeID uint, jobDescription string) (*Result, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	resume, err := s.store.GetResume(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}

	return s.Analyze(ctx, userID, &resume.ID, resume.Content, jobDescription)
}

// Save persists a finished comparison.
func (s *Service) Save(ctx context.Context, userID uint, resumeID *uint, resumeText, jobDescription string, cmp *skills.Comparison) (*Result, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	var id uint
	if resumeID != nil {
		id = *resumeID
	} else {
		resume, err := s.UploadResume(ctx, userID, UploadedResumeName, resumeText, "")
		if err != nil {
			return nil, err
		}
		id = resume.ID
	}

	row := storage.NewAnalysis(userID, id, jobDescription, cmp)
	if err := s.store.SaveAnalysis(ctx, row); err != nil {
		return nil, err
	}

	s.logger.Info("analysis saved",
		zap.Uint("analysis_id", row.ID),
		zap.Uint("resume_id", id),
		zap.Uint("user_id", userID),
	)

	return toResult(row), nil
}

// UploadResume stores a resume for userID.
func (s *Service) UploadResume(ctx context.Context, userID uint, name, content, filePath string) (*storage.Resume, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: resume name is empty", matching.ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: resume content is empty", matching.ErrInvalidArgument)
	}

	r := &storage.Resume{
		Name:     name,
		Content:  content,
		FilePath: filePath,
		UserID:   userID,
	}
	if err := s.store.CreateResume(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// History lists the stored analyses of userID, newest first.
func (s *Service) History(ctx context.Context, userID uint) ([]Result, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	rows, err := s.store.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(rows))
	for i := range rows {
		out = append(out, *toResult(&rows[i]))
	}
	return out, nil
}

func toResult(row *storage.ResumeAnalysis) *Result {
	r := &Result{
		ID:         row.ID,
		ResumeID:   row.ResumeID,
		Comparison: *row.Comparison(),
	}
	if !row.CreatedAt.IsZero() {
		created := row.CreatedAt
		r.CreatedAt = &created
	}
	return r
}
