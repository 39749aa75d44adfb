package domain

import "time"

// Provider is a remote JSON-RPC endpoint being monitored.
type Provider struct {
	ID          string    `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"`
	URL         string    `json:"url"         db:"url"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
}
