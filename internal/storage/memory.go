package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps resumes and analyses in process memory. The API server
// falls back to it when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	resumes  []Resume
	analyses []ResumeAnalysis
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) CreateResume(_ context.Context, r *Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r.ID = uint(len(s.resumes) + 1)
	r.CreatedAt, r.UpdatedAt = now, now
	s.resumes = append(s.resumes, *r)
	return nil
}

func (s *MemoryStore) GetResume(_ context.Context, userID, resumeID uint) (*Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.resumes {
		if r.ID == resumeID && r.UserID == userID {
			out := r
			return &out, nil
		}
	}
	return nil, fmt.Errorf("resume %d: %w", resumeID, ErrNotFound)
}

func (s *MemoryStore) SaveAnalysis(_ context.Context, a *ResumeAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = uint(len(s.analyses) + 1)
	a.CreatedAt = s.now()
	row := *a
	row.Resume = nil
	s.analyses = append(s.analyses, row)
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID uint) ([]ResumeAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ResumeAnalysis, 0)
	for _, a := range s.analyses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	// Newest first; ids are increasing so they break timestamp ties.
	slices.Reverse(out)
	return out, nil
}
