package domain

import "time"

// Verdict is the binary outcome of one probe.
type Verdict string

const (
	VerdictOnline  Verdict = "online"
	VerdictOffline Verdict = "offline"
)

// HealthRecord is the immutable result of one probe attempt.
type HealthRecord struct {
	ID             string    `json:"id"                          db:"id"`
	ProviderID     string    `json:"provider_id"                 db:"provider_id"`
	Verdict        Verdict   `json:"status"                      db:"status"`
	ResponseTimeMs *float64  `json:"response_time_ms,omitempty"  db:"response_time_ms"`
	Error          *string   `json:"error_message,omitempty"     db:"error_message"`
	CheckedAt      time.Time `json:"checked_at"                  db:"checked_at"`
}

// Online reports whether the record carries an online verdict.
func (r *HealthRecord) Online() bool {
	return r.Verdict == VerdictOnline
}
