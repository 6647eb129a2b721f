package models

// UserProfile is one sender profile: the display name used in the From
// header and, optionally, a follow-up template embedded directly on the
// profile. The embedded template takes precedence over the legacy
// follow-up template store.
type UserProfile struct {
	UserID           string `json:"userId"`
	Name             string `json:"name"`
	FollowUpTemplate string `json:"followUpTemplate,omitempty"`
}
