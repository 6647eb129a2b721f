// Package engine owns the email job lifecycle: intake, the sequential
// per-recipient processing loop, and termination bookkeeping. One job runs
// per sender identity; jobs for different identities run concurrently and
// share no mutable state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"SendFlow/internal/audit"
	"SendFlow/internal/metrics"
	"SendFlow/internal/models"
	"SendFlow/internal/notifier"
	"SendFlow/internal/registry"
	"SendFlow/internal/store"
	"SendFlow/internal/template"
	"SendFlow/internal/templates"
	"SendFlow/internal/transport"
)

var (
	ErrEmptyInput         = errors.New("no valid recipient rows")
	ErrMissingCredentials = errors.New("email credentials are required")
	ErrMissingRange       = errors.New("start and end dates are required")
	// ErrAlreadyFollowUp rejects a follow-up aimed at a record that is
	// itself a follow-up, before anything is sent.
	ErrAlreadyFollowUp = errors.New("record is already a follow-up")
)

const defaultSubject = "Interview Opportunity at ${Company}"

// SubmitRequest is a validated-at-intake job submission. The secret is held
// only long enough to build the transport handle.
type SubmitRequest struct {
	Identity string
	Secret   string
	UserType string
	Kind     models.JobKind

	Rows           []map[string]string
	CustomTemplate string
	Subject        string

	// Bulk follow-up only: the inclusive creation-date range of original
	// records to follow up on.
	RangeFrom time.Time
	RangeTo   time.Time
}

type Engine struct {
	Registry  *registry.Registry
	Dialer    transport.Dialer
	Recorder  *audit.Recorder
	Store     store.AuditStore
	Notifier  *notifier.Notifier
	Templates *templates.Source
	Log       *zap.Logger

	// Limiter paces sends across all jobs. Optional.
	Limiter *rate.Limiter
}

// Submit validates the request, admits the job and starts its processing
// loop in the background. It returns as soon as the job is admitted; all
// further feedback flows through the progress notifier.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*models.EmailJob, error) {
	if req.Identity == "" || req.Secret == "" {
		return nil, ErrMissingCredentials
	}

	userType := strings.ToLower(strings.TrimSpace(req.UserType))
	kind := req.Kind
	if kind == "" {
		kind = models.KindInitial
	}

	var rows []models.RecipientRow
	if kind == models.KindBulkFollowUp {
		derived, err := e.deriveFollowUpRows(ctx, userType, req.RangeFrom, req.RangeTo)
		if err != nil {
			return nil, err
		}
		rows = derived
	} else {
		rows = models.NormalizeRows(req.Rows)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	job := models.NewJob(uuid.NewString(), req.Identity, userType, kind, rows)
	job.CustomTemplate = req.CustomTemplate
	job.Subject = req.Subject

	if err := e.Registry.Admit(job); err != nil {
		return nil, err
	}

	metrics.JobsStarted.Inc()
	e.Log.Info("email job admitted",
		zap.String("job_id", job.ID),
		zap.String("identity", job.Identity),
		zap.String("kind", string(kind)),
		zap.Int("total", job.Total()),
	)

	go e.run(job, req.Secret)
	return job, nil
}

// deriveFollowUpRows builds the row set for a bulk follow-up job from the
// audit records eligible in the date range: unanswered, not themselves
// follow-ups, and carrying the identifiers a reply can thread onto.
func (e *Engine) deriveFollowUpRows(ctx context.Context, userType string, from, to time.Time) ([]models.RecipientRow, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingRange
	}

	notReplied := false
	end := store.EndOfDay(to)
	recs, err := e.Store.Find(ctx, store.AuditFilter{
		UserProfile:      userType,
		ReplyReceived:    &notReplied,
		ExcludeEmailType: models.EmailTypeFollowUp,
		RequireThreadIDs: true,
		CreatedFrom:      &from,
		CreatedTo:        &end,
	}, store.CreatedAsc)
	if err != nil {
		return nil, fmt.Errorf("querying eligible records: %w", err)
	}

	rows := make([]models.RecipientRow, 0, len(recs))
	for _, rec := range recs {
		if rec.IsFollowUp {
			return nil, fmt.Errorf("%w: record %s", ErrAlreadyFollowUp, rec.ID)
		}
		rows = append(rows, models.RecipientRow{
			Name:              rec.Name,
			Company:           rec.Company,
			Email:             rec.Email,
			Role:              rec.Role,
			Link:              rec.Link,
			OriginalRecordID:  rec.ID,
			OriginalMessageID: rec.MessageID,
			ThreadID:          rec.ThreadID,
		})
	}
	return rows, nil
}

// run is the processing loop. It owns all mutation of the job and always
// retires the job from the registry on the way out.
func (e *Engine) run(job *models.EmailJob, secret string) {
	ctx := context.Background()
	defer e.Registry.Delete(job.Identity)

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	handle, err := e.Dialer.Connect(job.Identity, secret)
	if err != nil {
		e.failSetup(job, err)
		return
	}
	defer handle.Close()

	job.SetStatus(models.StatusProcessing)
	e.Notifier.Publish(job.Identity, models.ProgressEvent(models.StatusProcessing, job.Progress()))

	for _, row := range job.Rows {
		if e.Limiter != nil {
			_ = e.Limiter.Wait(ctx)
		}
		e.processRow(ctx, job, handle, row)
	}

	job.SetStatus(models.StatusCompleted)
	p := job.Progress()
	e.Notifier.Publish(job.Identity, models.CompleteEvent(models.StatusCompleted, p))
	metrics.JobsCompleted.WithLabelValues(string(models.StatusCompleted)).Inc()

	e.Log.Info("email job finished",
		zap.String("job_id", job.ID),
		zap.Int("success", p.Success),
		zap.Int("failed", p.Failed),
	)
}

// failSetup reports a fatal pre-loop failure. No row was processed, so the
// final tally is success 0, failed total.
func (e *Engine) failSetup(job *models.EmailJob, err error) {
	job.SetStatus(models.StatusFailed)

	p := job.Progress()
	p.Failed = p.Total

	e.Notifier.Publish(job.Identity, models.LogEvent("Failed to connect to mail relay: "+err.Error()))
	e.Notifier.Publish(job.Identity, models.CompleteEvent(models.StatusFailed, p))
	metrics.JobsCompleted.WithLabelValues(string(models.StatusFailed)).Inc()

	e.Log.Error("email job setup failed",
		zap.String("job_id", job.ID),
		zap.String("identity", job.Identity),
		zap.Error(err),
	)
}

func (e *Engine) processRow(ctx context.Context, job *models.EmailJob, handle transport.Mailer, row models.RecipientRow) {
	out := audit.Outcome{EmailType: models.EmailTypeMain}
	if job.Kind != models.KindInitial {
		out.IsFollowUp = true
		out.EmailType = models.EmailTypeFollowUp
	}

	if row.MissingRequired() {
		job.RecordFailure()
		out.Status = models.AuditFailure
		out.ErrorDetails = models.ReasonMissingFields
		e.record(ctx, job, row, out)
		e.Notifier.Publish(job.Identity, models.LogEvent(
			fmt.Sprintf("Skipped %s: %s", row.Email, models.ReasonMissingFields)))
		e.publishProgress(job)
		metrics.EmailFailures.Inc()
		return
	}

	// A plain follow-up job threads onto the recipient's most recent
	// original send when one exists; the bulk variant arrives with the
	// threading already resolved.
	if job.Kind == models.KindFollowUp && row.OriginalMessageID == "" {
		e.resolveThreading(ctx, job, &row)
	}
	out.MessageID = uuid.NewString()
	out.ThreadID = row.ThreadID
	if out.ThreadID == "" {
		out.ThreadID = uuid.NewString()
	}
	out.OriginalMessageID = row.OriginalMessageID

	body, senderName, err := e.renderBody(ctx, job, row)
	if err == nil {
		err = handle.Send(e.buildMessage(job, row, out, senderName, body))
	}

	if err != nil {
		job.RecordFailure()
		out.Status = models.AuditFailure
		out.ErrorDetails = err.Error()
		e.record(ctx, job, row, out)
		e.Notifier.Publish(job.Identity, models.LogEvent(
			fmt.Sprintf("Failed to send email to %s: %s", row.Email, err.Error())))
		e.publishProgress(job)
		metrics.EmailFailures.Inc()
		return
	}

	job.RecordSuccess()
	out.Status = models.AuditSuccess
	e.record(ctx, job, row, out)

	if out.IsFollowUp && row.OriginalRecordID != "" {
		if err := e.Recorder.IncrementFollowUp(ctx, row.OriginalRecordID); err != nil {
			e.Log.Error("failed to update original record's follow-up count",
				zap.String("record_id", row.OriginalRecordID),
				zap.Error(err),
			)
		}
		metrics.FollowUpsSent.Inc()
	}

	e.Notifier.Publish(job.Identity, models.LogEvent(
		fmt.Sprintf("Successfully sent email to %s", row.Email)))
	e.publishProgress(job)
	metrics.EmailsSent.Inc()
}

// resolveThreading finds the recipient's latest original send for this
// profile and carries its identifiers onto the row. A recipient without a
// prior record is sent on a fresh thread.
func (e *Engine) resolveThreading(ctx context.Context, job *models.EmailJob, row *models.RecipientRow) {
	isFollowUp := false
	rec, err := e.Store.FindOne(ctx, store.AuditFilter{
		UserProfile:      job.UserType,
		Email:            row.Email,
		Status:           models.AuditSuccess,
		IsFollowUp:       &isFollowUp,
		RequireThreadIDs: true,
	}, store.CreatedDesc)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.Log.Warn("threading lookup failed",
				zap.String("recipient", row.Email),
				zap.Error(err),
			)
		}
		return
	}
	row.OriginalRecordID = rec.ID
	row.OriginalMessageID = rec.MessageID
	row.ThreadID = rec.ThreadID
}

// renderBody resolves the template for the job kind and substitutes the
// row. Resolution order: caller override, then main or follow-up template
// per kind.
func (e *Engine) renderBody(ctx context.Context, job *models.EmailJob, row models.RecipientRow) (body, senderName string, err error) {
	tmpl := job.CustomTemplate
	if tmpl == "" {
		if job.Kind == models.KindInitial {
			tmpl, err = e.Templates.Main(ctx, job.UserType)
		} else {
			tmpl, err = e.Templates.FollowUp(ctx, job.UserType)
		}
		if err != nil {
			return "", "", err
		}
	}

	values := template.Values{
		Name:    row.Name,
		Company: row.Company,
		Role:    row.Role,
		Link:    row.Link,
	}
	return template.Render(tmpl, values), e.Templates.SenderName(ctx, job.UserType), nil
}

func (e *Engine) buildMessage(job *models.EmailJob, row models.RecipientRow, out audit.Outcome, senderName, body string) *gomail.Message {
	subject := job.Subject
	if subject == "" {
		subject = defaultSubject
	}
	subject = template.Render(subject, template.Values{
		Name:    row.Name,
		Company: row.Company,
		Role:    row.Role,
		Link:    row.Link,
	})
	if out.IsFollowUp && !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", job.Identity, senderName)
	m.SetHeader("To", row.Email)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", "<"+out.MessageID+">")
	m.SetHeader("Thread-ID", out.ThreadID)
	if out.OriginalMessageID != "" {
		m.SetHeader("In-Reply-To", "<"+out.OriginalMessageID+">")
		m.SetHeader("References", "<"+out.OriginalMessageID+">")
	}
	m.SetBody("text/html", body)
	return m
}

// record persists the attempt. The recorder already retried once; a record
// that is still lost becomes a diagnostic log event, never a job abort.
func (e *Engine) record(ctx context.Context, job *models.EmailJob, row models.RecipientRow, out audit.Outcome) {
	if _, err := e.Recorder.RecordAttempt(ctx, job, row, out); err != nil {
		e.Notifier.Publish(job.Identity, models.LogEvent(
			fmt.Sprintf("Audit entry for %s could not be saved: %s", row.Email, err.Error())))
	}
}

func (e *Engine) publishProgress(job *models.EmailJob) {
	e.Notifier.Publish(job.Identity, models.ProgressEvent(models.StatusProcessing, job.Progress()))
}

// ProgressSnapshot is the notifier's snapshot source: the progress of the
// identity's active job, if any.
func (e *Engine) ProgressSnapshot(identity string) (models.Event, bool) {
	job, ok := e.Registry.Get(identity)
	if !ok {
		return models.Event{}, false
	}
	return models.ProgressEvent(job.Status(), job.Progress()), true
}
