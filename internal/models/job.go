package models

import "sync"

type JobKind string

const (
	KindInitial      JobKind = "initial"
	KindFollowUp     JobKind = "followup"
	KindBulkFollowUp JobKind = "bulk-followup"
)

type JobStatus string

const (
	StatusPreparing  JobStatus = "preparing"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// EmailJob is one batch sending run for one sender identity. It lives only
// in memory: created at intake, mutated by the single processing loop that
// owns it, and dropped from the registry when the loop ends.
//
// Counter mutation goes through RecordSuccess/RecordFailure so that a
// progress snapshot taken from another goroutine (a subscriber connecting
// mid-job) always observes current == success+failed.
type EmailJob struct {
	ID       string
	Identity string
	UserType string
	Kind     JobKind

	CustomTemplate string
	Subject        string
	Rows           []RecipientRow

	mu      sync.Mutex
	status  JobStatus
	total   int
	current int
	success int
	failed  int
}

func NewJob(id, identity, userType string, kind JobKind, rows []RecipientRow) *EmailJob {
	return &EmailJob{
		ID:       id,
		Identity: identity,
		UserType: userType,
		Kind:     kind,
		Rows:     rows,
		status:   StatusPreparing,
		total:    len(rows),
	}
}

func (j *EmailJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *EmailJob) SetStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *EmailJob) Total() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

func (j *EmailJob) RecordSuccess() {
	j.mu.Lock()
	j.success++
	j.current++
	j.mu.Unlock()
}

func (j *EmailJob) RecordFailure() {
	j.mu.Lock()
	j.failed++
	j.current++
	j.mu.Unlock()
}

// Progress returns a consistent snapshot of the counters.
func (j *EmailJob) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{
		Current: j.current,
		Total:   j.total,
		Success: j.success,
		Failed:  j.failed,
	}
}
