package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "contract-analyzer/errors"
	"contract-analyzer/web/types"
)

// JobStore is the in-memory job registry. Durable storage is out of scope by
// design: jobs live for the process lifetime or until the retention sweeper
// removes them.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*types.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*types.Job)}
}

// Create registers a new pending job and returns its id.
func (s *JobStore) Create(filename string, sizeBytes int64) uuid.UUID {
	now := time.Now().UTC()
	job := &types.Job{
		JobID:         uuid.New(),
		Status:        types.JobPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Filename:      filename,
		FileSizeBytes: sizeBytes,
	}

	s.mu.Lock()
	s.jobs[job.JobID] = job
	s.mu.Unlock()
	return job.JobID
}

// Get returns a snapshot copy of the job. The snapshot shares the immutable
// document/chunks/results values but callers cannot race on job fields.
func (s *JobStore) Get(id uuid.UUID) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return *job, true
}

// Update applies a mutation under the store lock.
func (s *JobStore) Update(id uuid.UUID, mutate func(*types.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return apperrors.WrapErrorf(apperrors.ErrNotFound, "job %s", id)
	}
	mutate(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetProgress updates the progress percentage and, when non-empty, the stage
// text. An empty stage keeps the previous one so slow LLM calls stay labeled.
func (s *JobStore) SetProgress(id uuid.UUID, percent int, stage string) {
	_ = s.Update(id, func(job *types.Job) {
		job.Progress = percent
		if stage != "" {
			job.Stage = stage
		}
	})
}

func (s *JobStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// OlderThan lists ids of jobs whose last update precedes the cutoff.
func (s *JobStore) OlderThan(cutoff time.Time) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []uuid.UUID
	for id, job := range s.jobs {
		if job.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
