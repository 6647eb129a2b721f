// Package store persists audit records, templates and sender profiles.
// Callers treat it as a generic record store keyed by opaque ids; the
// Postgres implementation is an engine detail behind the interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"SendFlow/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Sort int

const (
	Unsorted Sort = iota
	CreatedAsc
	CreatedDesc
)

// AuditFilter selects audit records. Zero-valued fields are ignored;
// pointer fields distinguish "unset" from "match false".
type AuditFilter struct {
	ID               string
	JobID            string
	UserProfile      string
	Email            string
	Status           models.AuditStatus
	ReplyReceived    *bool
	IsFollowUp       *bool
	ExcludeEmailType string
	// RequireThreadIDs keeps only records with both a message id and a
	// thread id, i.e. records a follow-up can thread onto.
	RequireThreadIDs bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// AuditPatch is the set of mutations permitted on an existing record.
type AuditPatch struct {
	ReplyReceived      *bool
	IncrementFollowUps bool
	LastFollowUpDate   *time.Time
}

// EndOfDay extends t to 23:59:59.999 so a caller-given end date bounds the
// whole day inclusively.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

type AuditStore interface {
	Insert(ctx context.Context, rec *models.EmailAudit) (string, error)
	Update(ctx context.Context, id string, patch AuditPatch) error
	UpdateMany(ctx context.Context, f AuditFilter, patch AuditPatch) (int64, error)
	Find(ctx context.Context, f AuditFilter, sort Sort) ([]models.EmailAudit, error)
	FindOne(ctx context.Context, f AuditFilter, sort Sort) (*models.EmailAudit, error)
	Delete(ctx context.Context, id string) error
}

// TemplateStore holds the per-profile email templates and sender profiles.
type TemplateStore interface {
	UserTemplate(ctx context.Context, profile string) (string, error)
	SaveUserTemplate(ctx context.Context, profile, body string) error
	FollowUpTemplate(ctx context.Context, profile string) (string, error)
	SaveFollowUpTemplate(ctx context.Context, profile, body string) error
	Profiles(ctx context.Context) ([]models.UserProfile, error)
	Profile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, p models.UserProfile) error
}
