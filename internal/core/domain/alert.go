package domain

import "time"

// Severity of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is an open or resolved "provider is down" window.
type Alert struct {
	ID         string     `json:"id"                    db:"id"`
	ProviderID string     `json:"provider_id"           db:"provider_id"`
	Severity   Severity   `json:"severity"              db:"severity"`
	Message    string     `json:"message"               db:"message"`
	Resolved   bool       `json:"resolved"              db:"resolved"`
	CreatedAt  time.Time  `json:"created_at"            db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Transition is the alert effect of recording one probe result.
type Transition string

const (
	TransitionNone     Transition = "none"
	TransitionOpened   Transition = "opened"
	TransitionResolved Transition = "resolved"
)
