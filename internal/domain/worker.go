package domain

import "time"

// OnlineThreshold is how recent a worker's last activity must be for the
// derived online signal. Staleness is computed lazily on read; nothing
// sweeps in the background.
const OnlineThreshold = 5 * time.Minute

// WorkerInfo is a worker account as seen by administrators.
type WorkerInfo struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	TaskCount      int        `json:"task_count"`
	IsOnline       bool       `json:"is_online"`
}

// ComputeOnline derives the online flag from last activity.
func (w *WorkerInfo) ComputeOnline(now time.Time) {
	w.IsOnline = w.LastActivityAt != nil && now.Sub(*w.LastActivityAt) < OnlineThreshold
}

// UserAuth is the credential row consulted at login.
type UserAuth struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	IsAdmin      bool
	IsWorker     bool
	IsActive     bool
}
