package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoProgress is returned when a user has never started onboarding.
var ErrNoProgress = errors.New("no onboarding progress")

// ProgressStore persists onboarding progress per user.
type ProgressStore struct {
	DB         *sql.DB
	TotalSteps int
	NewSession func() string
}

func NewProgressStore(db *sql.DB, totalSteps int, newSession func() string) *ProgressStore {
	return &ProgressStore{
		DB:         db,
		TotalSteps: totalSteps,
		NewSession: newSession,
	}
}

// Start creates the progress row for userID if it does not exist yet and
// returns the current progress.
func (p *ProgressStore) Start(userID string) (*Progress, error) {
	query := `INSERT INTO onboarding (user_id, current_step, session_id) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO NOTHING`
	if _, err := p.DB.Exec(query, userID, p.NewSession()); err != nil {
		return nil, err
	}
	return p.Get(userID)
}

func (p *ProgressStore) Get(userID string) (*Progress, error) {
	prog := &Progress{UserID: userID}
	var completed sql.NullTime
	err := p.DB.QueryRow(
		`SELECT current_step, session_id, started_at, completed_at FROM onboarding WHERE user_id = ?`,
		userID,
	).Scan(&prog.CurrentStep, &prog.SessionID, &prog.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		prog.CompletedAt = &t
	}

	rows, err := p.DB.Query(
		`SELECT step_number, data, completed_at FROM onboarding_steps WHERE user_id = ? ORDER BY step_number`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.StepNumber, &rec.Data, &rec.CompletedAt); err != nil {
			return nil, err
		}
		prog.Steps = append(prog.Steps, rec)
	}
	return prog, rows.Err()
}

// CurrentStep returns the 1-based step the user should work on next.
func (p *ProgressStore) CurrentStep(userID string) (int, error) {
	var step int
	err := p.DB.QueryRow(`SELECT current_step FROM onboarding WHERE user_id = ?`, userID).Scan(&step)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoProgress
	}
	return step, err
}

// CompleteStep stores the data for step and moves the user's current step
// past it. Completing the final step marks onboarding as complete.
func (p *ProgressStore) CompleteStep(userID string, step int, data string) error {
	if step < 1 || step > p.TotalSteps {
		return fmt.Errorf("step %d out of range 1..%d", step, p.TotalSteps)
	}
	if _, err := p.Start(userID); err != nil {
		return err
	}

	tx, err := p.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO onboarding_steps (user_id, step_number, data, completed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, step_number) DO UPDATE SET data = excluded.data, completed_at = excluded.completed_at`,
		userID, step, data, time.Now().UTC())
	if err != nil {
		return err
	}

	next := step + 1
	if next > p.TotalSteps {
		next = p.TotalSteps
	}
	_, err = tx.Exec(`UPDATE onboarding SET current_step = MAX(current_step, ?) WHERE user_id = ?`, next, userID)
	if err != nil {
		return err
	}
	if step == p.TotalSteps {
		_, err = tx.Exec(`UPDATE onboarding SET completed_at = ? WHERE user_id = ? AND completed_at IS NULL`, time.Now().UTC(), userID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Reset drops every trace of userID's onboarding.
func (p *ProgressStore) Reset(userID string) error {
	if _, err := p.DB.Exec(`DELETE FROM onboarding_steps WHERE user_id = ?`, userID); err != nil {
		return err
	}
	_, err := p.DB.Exec(`DELETE FROM onboarding WHERE user_id = ?`, userID)
	return err
}
