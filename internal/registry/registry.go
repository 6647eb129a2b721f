// Package registry tracks the active job per sender identity. Admission is
// check-and-set under one lock, which is what enforces the
// one-active-job-per-identity rule.
package registry

import (
	"errors"
	"sync"

	"SendFlow/internal/models"
)

// ErrDuplicateJob means the identity already has an active job. Submissions
// are rejected, never queued.
var ErrDuplicateJob = errors.New("a job is already active for this sender")

type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*models.EmailJob
}

func New() *Registry {
	return &Registry{jobs: make(map[string]*models.EmailJob)}
}

// Admit registers job under its identity, failing if one is already active.
func (r *Registry) Admit(job *models.EmailJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Identity]; exists {
		return ErrDuplicateJob
	}
	r.jobs[job.Identity] = job
	return nil
}

func (r *Registry) Get(identity string) (*models.EmailJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[identity]
	return job, ok
}

func (r *Registry) Delete(identity string) {
	r.mu.Lock()
	delete(r.jobs, identity)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
