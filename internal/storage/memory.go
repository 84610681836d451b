package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"phylon/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	epochs      map[string][]model.EpochRecord
	fronts      map[string][]model.FrontMember
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.epochs = make(map[string][]model.EpochRecord)
	s.fronts = make(map[string][]model.FrontMember)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveEpochs(_ context.Context, runID string, epochs []model.EpochRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.epochs[runID] = cloneEpochs(epochs)
	return nil
}

func (s *MemoryStore) GetEpochs(_ context.Context, runID string) ([]model.EpochRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	epochs, ok := s.epochs[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneEpochs(epochs), true, nil
}

func (s *MemoryStore) SaveFront(_ context.Context, runID string, front []model.FrontMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.fronts[runID] = cloneFront(front)
	return nil
}

func (s *MemoryStore) GetFront(_ context.Context, runID string) ([]model.FrontMember, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	front, ok := s.fronts[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneFront(front), true, nil
}

// sortRuns orders runs newest first, breaking ties by id.
func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Objective = append([]string(nil), run.Objective...)
	run.BestScore = append([]float64(nil), run.BestScore...)
	run.Config = append([]byte(nil), run.Config...)
	return run
}

func cloneEpochs(epochs []model.EpochRecord) []model.EpochRecord {
	copied := make([]model.EpochRecord, len(epochs))
	for i, epoch := range epochs {
		epoch.BestScore = append([]float64(nil), epoch.BestScore...)
		copied[i] = epoch
	}
	return copied
}

func cloneFront(front []model.FrontMember) []model.FrontMember {
	copied := make([]model.FrontMember, len(front))
	for i, member := range front {
		member.Scores = append([]float64(nil), member.Scores...)
		member.Alleles = append([]string(nil), member.Alleles...)
		copied[i] = member
	}
	return copied
}
