// Package progress talks to the onboarding progress service and provides a
// reference implementation of it backed by sqlite.
package progress

import (
	"context"
	"time"
)

// Service is the remote onboarding progress contract. Step numbers are
// 1-based.
type Service interface {
	GetCurrentStep(ctx context.Context) (int, error)
	SetCurrentStep(ctx context.Context, step int, payload map[string]any) error
	GetInit(ctx context.Context) (InitResponse, error)
}

// InitResponse is the batch bootstrap snapshot.
type InitResponse struct {
	Onboarding Onboarding `json:"onboarding"`
	Session    Session    `json:"session"`
}

type Onboarding struct {
	CurrentStep          int        `json:"current_step"`
	CompletionPercentage float64    `json:"completion_percentage"`
	Steps                []StepData `json:"steps"`
}

type StepData struct {
	StepNumber int            `json:"step_number"`
	Data       map[string]any `json:"data"`
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

type stepResponse struct {
	Step int `json:"step"`
}

type completeRequest struct {
	Data map[string]any `json:"data"`
}

type completeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
