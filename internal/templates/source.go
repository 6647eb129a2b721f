// Package templates resolves the email body template and sender display
// name for a job's user profile.
package templates

import (
	"context"
	"errors"
	"fmt"

	"SendFlow/internal/store"
)

// ErrNoTemplate means no template could be resolved for the profile.
var ErrNoTemplate = errors.New("no email template found")

type Source struct {
	Store store.TemplateStore

	// DefaultSender is the From display name used when the profile has
	// none.
	DefaultSender string
}

// Main returns the profile's main email template.
func (s *Source) Main(ctx context.Context, userType string) (string, error) {
	body, err := s.Store.UserTemplate(ctx, userType)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w for user type %q", ErrNoTemplate, userType)
	}
	return body, err
}

// FollowUp returns the profile's follow-up template. Resolution order: the
// template embedded on the user profile first, the legacy follow-up
// template store second.
func (s *Source) FollowUp(ctx context.Context, userType string) (string, error) {
	p, err := s.Store.Profile(ctx, userType)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if err == nil && p.FollowUpTemplate != "" {
		return p.FollowUpTemplate, nil
	}

	body, err := s.Store.FollowUpTemplate(ctx, userType)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w for user type %q", ErrNoTemplate, userType)
	}
	return body, err
}

// SenderName returns the From display name for the profile, falling back
// to the configured default.
func (s *Source) SenderName(ctx context.Context, userType string) string {
	p, err := s.Store.Profile(ctx, userType)
	if err == nil && p.Name != "" {
		return p.Name
	}
	return s.DefaultSender
}
