// Package audit writes the durable per-attempt record trail. Persistence
// failures are retried once and then surfaced to the caller; they never
// abort a running job.
package audit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"SendFlow/internal/metrics"
	"SendFlow/internal/models"
	"SendFlow/internal/store"
)

// Outcome describes one send attempt. MessageID and ThreadID are minted
// here when the caller has not already done so.
type Outcome struct {
	Status       models.AuditStatus
	ErrorDetails string

	MessageID         string
	ThreadID          string
	IsFollowUp        bool
	OriginalMessageID string
	EmailType         string
}

type Recorder struct {
	Store store.AuditStore
	Log   *zap.Logger

	// RetryWait is the pause before the single synchronous retry of a
	// failed insert. Zero means the default.
	RetryWait time.Duration
}

// RecordAttempt persists one audit record for the given job and row. A
// failed insert is retried exactly once; if the retry also fails the error
// is returned so the caller can emit a diagnostic, but the attempt's
// counters stay as the send outcome determined them.
func (r *Recorder) RecordAttempt(ctx context.Context, job *models.EmailJob, row models.RecipientRow, out Outcome) (string, error) {
	if out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}
	if out.ThreadID == "" {
		out.ThreadID = uuid.NewString()
	}
	if out.EmailType == "" {
		out.EmailType = models.EmailTypeMain
	}

	rec := &models.EmailAudit{
		JobID:             job.ID,
		UserProfile:       job.UserType,
		Name:              row.Name,
		Company:           row.Company,
		Email:             row.Email,
		Role:              row.Role,
		Link:              row.Link,
		Status:            out.Status,
		ErrorDetails:      out.ErrorDetails,
		MessageID:         out.MessageID,
		ThreadID:          out.ThreadID,
		IsFollowUp:        out.IsFollowUp,
		OriginalMessageID: out.OriginalMessageID,
		EmailType:         out.EmailType,
	}

	wait := r.RetryWait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), 1), ctx)

	id, err := backoff.RetryWithData(func() (string, error) {
		return r.Store.Insert(ctx, rec)
	}, b)
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		r.Log.Error("audit record lost after retry",
			zap.String("job_id", job.ID),
			zap.String("recipient", row.Email),
			zap.Error(err),
		)
		return "", err
	}
	return id, nil
}

// ToggleReplied flips the reply-received flag and returns the new value.
func (r *Recorder) ToggleReplied(ctx context.Context, recordID string) (bool, error) {
	rec, err := r.Store.FindOne(ctx, store.AuditFilter{ID: recordID}, store.Unsorted)
	if err != nil {
		return false, err
	}

	replied := !rec.ReplyReceived
	if err := r.Store.Update(ctx, recordID, store.AuditPatch{ReplyReceived: &replied}); err != nil {
		return false, err
	}
	return replied, nil
}

// IncrementFollowUp bumps the original record's follow-up count and
// refreshes its last-follow-up timestamp.
func (r *Recorder) IncrementFollowUp(ctx context.Context, recordID string) error {
	now := time.Now().UTC()
	return r.Store.Update(ctx, recordID, store.AuditPatch{
		IncrementFollowUps: true,
		LastFollowUpDate:   &now,
	})
}

// BulkMarkReplied marks every unanswered record in the inclusive date range
// as replied. Profile "all" (or empty) spans all sender profiles.
func (r *Recorder) BulkMarkReplied(ctx context.Context, profile string, from, to time.Time) (int64, error) {
	end := store.EndOfDay(to)
	replied := true

	f := store.AuditFilter{
		ReplyReceived: new(bool),
		CreatedFrom:   &from,
		CreatedTo:     &end,
	}
	if profile != "" && profile != "all" {
		f.UserProfile = profile
	}
	return r.Store.UpdateMany(ctx, f, store.AuditPatch{ReplyReceived: &replied})
}
