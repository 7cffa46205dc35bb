// Package wizard drives the onboarding step sequence: it validates what each
// step reports, persists completed steps through the progress service and
// moves the active step forward or backward.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/progress"
)

var (
	ErrStepIncomplete    = errors.New("step has not reported any data")
	ErrStepInvalid       = errors.New("step is not valid yet")
	ErrTransitionPending = errors.New("another transition is in progress")
	ErrStepOutOfRange    = errors.New("step cannot be selected")
	ErrWizardDone        = errors.New("onboarding is already complete")
	ErrClosed            = errors.New("wizard is closed")
)

// CompletionNotifier is told once the final step has been persisted.
type CompletionNotifier interface {
	OnboardingComplete(ctx context.Context, s State) error
}

// Orchestrator is the wizard state machine. It is safe for concurrent use;
// transitions are strictly sequential.
type Orchestrator struct {
	mu       sync.Mutex
	steps    []StepDescriptor
	engine   Engine
	progress progress.Service
	notifier CompletionNotifier
	logger   *observability.Logger

	state     State
	reports   map[int]Report
	sessionID string
	pending   bool
	closed    bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithNotifier(n CompletionNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a wizard at step 0 with no payloads. Call Hydrate to resume a
// previous session.
func New(steps []StepDescriptor, svc progress.Service, opts ...Option) (*Orchestrator, error) {
	if err := checkSteps(steps); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errors.New("wizard: nil progress service")
	}
	o := &Orchestrator{
		steps:    steps,
		engine:   NewEngine(steps),
		progress: svc,
		logger:   observability.Nop(),
		state:    newState(),
		reports:  make(map[int]Report),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.refreshValidity()
	return o, nil
}

// Steps returns the step catalog.
func (o *Orchestrator) Steps() []StepDescriptor {
	return append([]StepDescriptor(nil), o.steps...)
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// SessionID returns the session reported by the progress service on Hydrate.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Dispatch routes a step event.
func (o *Orchestrator) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case Completed:
		return o.Next(ctx, ev.Payload)
	case ValidityChanged:
		return o.ReportValidity(ev.Valid)
	default:
		return fmt.Errorf("wizard: unknown event %T", ev)
	}
}

// ReportValidity records the self-reported validity of the active step.
func (o *Orchestrator) ReportValidity(valid bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	idx := o.state.ActiveStep
	o.reports[idx] = ReportOf(valid)
	o.state.Validity[idx] = o.validAt(idx, o.state.Payloads[idx])
	o.logger.LogValidation(o.sessionID, idx, o.state.Validity[idx], "reported")
	return nil
}

// Next completes the active step with payload and advances. The merged
// payload is persisted before anything changes locally; when persistence
// fails the wizard stays on the step with its stored payload untouched.
func (o *Orchestrator) Next(ctx context.Context, payload Payload) error {
	o.mu.Lock()
	if err := o.checkIdle(); err != nil {
		o.mu.Unlock()
		return err
	}
	idx := o.state.ActiveStep
	desc := o.steps[idx]

	if len(payload) == 0 && !desc.Exempt && !desc.Optional && !o.state.Completed[idx] {
		o.logger.LogValidation(o.sessionID, idx, false, "no payload")
		o.mu.Unlock()
		return fmt.Errorf("step %d (%s): %w", idx, desc.Label, ErrStepIncomplete)
	}
	candidate, err := Merge(desc, o.state.Payloads[idx], payload)
	if err != nil {
		o.logger.LogValidation(o.sessionID, idx, false, err.Error())
		o.mu.Unlock()
		return fmt.Errorf("step %d (%s): %w", idx, desc.Label, err)
	}
	if !o.validAt(idx, candidate) {
		o.logger.LogValidation(o.sessionID, idx, false, "validation failed")
		o.mu.Unlock()
		return fmt.Errorf("step %d (%s): %w", idx, desc.Label, ErrStepInvalid)
	}
	session := o.sessionID
	o.pending = true
	o.mu.Unlock()

	if !desc.Exempt {
		err = o.progress.SetCurrentStep(ctx, idx+1, candidate)
		o.logger.LogPersist(session, idx, err)
	}

	o.mu.Lock()
	o.pending = false
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("persist step %d (%s): %w", idx, desc.Label, err)
	}

	o.state.Payloads[idx] = candidate
	o.state.Validity[idx] = true
	o.state.Completed[idx] = true
	next := idx + 1
	if next == len(o.steps) {
		o.state.Done = true
		next = idx
	} else {
		o.state.ActiveStep = next
	}
	snapshot := o.state.clone()
	o.mu.Unlock()

	o.logger.LogTransition(session, idx, next, "next")
	if !desc.Exempt {
		o.checkRemoteStep(ctx, expectedRemoteStep(snapshot.Completed, len(o.steps)))
	}
	if snapshot.Done && o.notifier != nil {
		if err := o.notifier.OnboardingComplete(ctx, snapshot); err != nil {
			log.Printf("[wizard] completion notification failed: %v", err)
		}
	}
	return nil
}

// Back moves to the previous step. It is a no-op on the first step and
// never persists or touches payloads.
func (o *Orchestrator) Back() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkIdle(); err != nil {
		return err
	}
	from := o.state.ActiveStep
	if from == 0 {
		return nil
	}
	o.state.ActiveStep--
	o.logger.LogTransition(o.sessionID, from, o.state.ActiveStep, "back")
	return nil
}

// Select jumps to an earlier (or the current) step. Skipping ahead is
// refused.
func (o *Orchestrator) Select(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkIdle(); err != nil {
		return err
	}
	from := o.state.ActiveStep
	if index < 0 || index > from {
		return fmt.Errorf("select step %d while on step %d: %w", index, from, ErrStepOutOfRange)
	}
	o.state.ActiveStep = index
	o.logger.LogTransition(o.sessionID, from, index, "select")
	return nil
}

// Hydrate resumes from the progress service's bootstrap snapshot. A missing
// snapshot leaves the wizard at step 0.
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	o.mu.Lock()
	if err := o.checkIdle(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.pending = true
	o.mu.Unlock()

	init, err := o.progress.GetInit(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = false
	if o.closed {
		return ErrClosed
	}
	if errors.Is(err, progress.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load onboarding progress: %w", err)
	}

	st := newState()
	for _, sd := range init.Onboarding.Steps {
		idx := sd.StepNumber - 1
		if idx < 0 || idx >= len(o.steps) {
			log.Printf("[wizard] ignoring progress for unknown step %d", sd.StepNumber)
			continue
		}
		st.Payloads[idx] = Payload(sd.Data)
		if st.Payloads[idx] == nil {
			st.Payloads[idx] = Payload{}
		}
		st.Completed[idx] = true
	}
	st.ActiveStep = min(max(init.Onboarding.CurrentStep-1, 0), len(o.steps)-1)
	st.Done = st.Completed[len(o.steps)-1]

	o.state = st
	o.reports = make(map[int]Report)
	o.sessionID = init.Session.ID
	o.refreshValidity()
	return nil
}

// Close discards the wizard. Results of calls still in flight are dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

func (o *Orchestrator) checkIdle() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.pending:
		return ErrTransitionPending
	case o.state.Done:
		return ErrWizardDone
	}
	return nil
}

// validAt validates a payload for step idx. A mounted delegated step has an
// (empty) working payload even before it reports data.
func (o *Orchestrator) validAt(idx int, p Payload) bool {
	if p == nil && o.steps[idx].Policy == PolicyDelegated {
		p = Payload{}
	}
	return o.engine.Valid(idx, p, o.reports[idx])
}

func (o *Orchestrator) refreshValidity() {
	for i := range o.steps {
		o.state.Validity[i] = o.validAt(i, o.state.Payloads[i])
	}
}

// expectedRemoteStep is the 1-based step the progress service should report.
// The service never moves backwards, so it follows the furthest completed
// step rather than the one just completed.
func expectedRemoteStep(completed map[int]bool, total int) int {
	furthest := -1
	for i, done := range completed {
		if done && i > furthest {
			furthest = i
		}
	}
	return min(furthest+2, total)
}

// checkRemoteStep compares the service's idea of the current step with ours.
// It only logs; local state always wins.
func (o *Orchestrator) checkRemoteStep(ctx context.Context, want int) {
	got, err := o.progress.GetCurrentStep(ctx)
	if err != nil {
		log.Printf("[wizard] could not confirm current step: %v", err)
		return
	}
	if got != want {
		log.Printf("[wizard] progress service reports step %d, expected %d", got, want)
	}
}
