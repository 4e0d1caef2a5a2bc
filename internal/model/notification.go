package model

import "time"

// Severity classifies a notification for display purposes.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ParseSeverity maps an arbitrary server-supplied string onto a known
// severity, defaulting to info.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeveritySuccess, SeverityError, SeverityWarning:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

// Notification is a single user-facing notification record.
type Notification struct {
	// ID is the unique identifier. Locally created notifications get a
	// generated ID; records fetched from the backend keep theirs.
	ID string `json:"id"`

	// Severity is the display classification.
	Severity Severity `json:"type"`

	// Title is the short headline.
	Title string `json:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// ScheduledAt is the optional time the notification relates to
	// (e.g. a scheduled task window), not when it was created.
	ScheduledAt *time.Time `json:"scheduledTime,omitempty"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"timestamp"`
}
