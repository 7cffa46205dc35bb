package store

import "time"

// StepRecord is the persisted data of one completed onboarding step.
type StepRecord struct {
	StepNumber  int       `json:"step_number"`
	Data        string    `json:"data"` // raw JSON object
	CompletedAt time.Time `json:"completed_at"`
}

// Progress is the onboarding state of one user.
type Progress struct {
	UserID      string       `json:"user_id"`
	SessionID   string       `json:"session_id"`
	CurrentStep int          `json:"current_step"` // 1-based
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Steps       []StepRecord `json:"steps"`
}
