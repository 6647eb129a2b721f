package models

import "time"

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

const (
	EmailTypeMain     = "Main Email"
	EmailTypeFollowUp = "Follow-up Email"
)

// ReasonMissingFields is recorded as the error detail for rows that were
// rejected before any send attempt.
const ReasonMissingFields = "missing required fields"

// EmailAudit is the durable record of one send attempt. Records are
// append-only; the only mutations after creation are the reply-received
// toggle and the follow-up bookkeeping (count + last date).
type EmailAudit struct {
	ID          string `json:"id"`
	JobID       string `json:"jobId"`
	UserProfile string `json:"userProfile"`

	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Link    string `json:"link,omitempty"`

	Status       AuditStatus `json:"status"`
	ErrorDetails string      `json:"errorDetails,omitempty"`

	MessageID         string `json:"messageId"`
	ThreadID          string `json:"threadId"`
	IsFollowUp        bool   `json:"isFollowUp"`
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	EmailType         string `json:"emailType"`

	ReplyReceived    bool       `json:"replyReceived"`
	FollowUpCount    int        `json:"followUpCount"`
	LastFollowUpDate *time.Time `json:"lastFollowUpDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
