package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/progress"
	"github.com/rahul/contentpilot/internal/wizard"
)

// Driver runs a wizard on a console until it is done, the user quits or the
// input ends.
type Driver struct {
	Wizard  *wizard.Orchestrator
	Steps   map[int]Step
	Console *Console
	Out     io.Writer
}

func NewDriver(w *wizard.Orchestrator, steps map[int]Step, c *Console, out io.Writer) *Driver {
	return &Driver{Wizard: w, Steps: steps, Console: c, Out: out}
}

// Run returns nil once onboarding is complete, ErrQuit when the user quits
// and the read error (usually io.EOF) when input ends.
func (d *Driver) Run(ctx context.Context) error {
	catalog := d.Wizard.Steps()
	observability.SetStatus(observability.PhaseOnboarding, "")
	defer observability.SetStatus(observability.PhaseIdle, "")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := d.Wizard.Snapshot()
		if s.Done {
			observability.SetStatus(observability.PhaseDone, "")
			observability.PrintProgress(d.Out, s.CompletedCount(), len(catalog), "Complete")
			fmt.Fprintln(d.Out, "Onboarding complete.")
			return nil
		}

		idx := s.ActiveStep
		desc := catalog[idx]
		observability.PrintProgress(d.Out, s.CompletedCount(), len(catalog), desc.Label)
		fmt.Fprintf(d.Out, "Step %d/%d: %s  (:back, :goto N, :quit)\n", idx+1, len(catalog), desc.Label)

		payload, err := d.collect(ctx, idx, s)
		if err != nil {
			if done, rerr := d.navigate(err, true); done {
				return rerr
			}
			continue
		}

		observability.SetStatus(observability.PhaseWorking, "saving "+desc.Label)
		err = d.Wizard.Dispatch(ctx, wizard.Completed{Payload: payload})
		observability.SetStatus(observability.PhaseOnboarding, "")
		switch {
		case err == nil:
		case errors.Is(err, wizard.ErrStepIncomplete):
			fmt.Fprintln(d.Out, "This step needs an answer before you can continue.")
		case errors.Is(err, wizard.ErrStepInvalid):
			fmt.Fprintln(d.Out, "This step is not complete yet.")
		case errors.Is(err, progress.ErrUnauthorized):
			return err
		case progress.IsTransient(err):
			fmt.Fprintf(d.Out, "Could not save progress, please try again: %v\n", err)
		case errors.Is(err, wizard.ErrTransitionPending):
		default:
			fmt.Fprintf(d.Out, "Could not continue: %v\n", err)
		}
	}
}

func (d *Driver) collect(ctx context.Context, idx int, s wizard.State) (wizard.Payload, error) {
	step, ok := d.Steps[idx]
	if !ok {
		return wizard.Payload{}, nil
	}
	report := func(valid bool) {
		if err := d.Wizard.Dispatch(ctx, wizard.ValidityChanged{Valid: valid}); err != nil {
			log.Printf("[steps] validity report dropped: %v", err)
		}
	}
	return step.Collect(ctx, d.Console, s.Payloads[idx], s.Merged(), report)
}

// navigate handles errors from collecting a step. It reports whether Run
// should stop.
func (d *Driver) navigate(err error, retry bool) (bool, error) {
	var gotoErr *GotoError
	switch {
	case errors.Is(err, ErrQuit):
		return true, ErrQuit
	case errors.Is(err, ErrBack):
		if err := d.Wizard.Back(); err != nil {
			fmt.Fprintf(d.Out, "Cannot go back: %v\n", err)
		}
	case errors.As(err, &gotoErr):
		if err := d.Wizard.Select(gotoErr.Step); err != nil {
			fmt.Fprintf(d.Out, "Cannot go to step %d: only completed steps and the current one can be selected.\n", gotoErr.Step+1)
		}
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		return true, err
	default:
		fmt.Fprintf(d.Out, "%v\n", err)
		if retry {
			// Wait for the user so failing work is not retried in a loop.
			if _, err := d.Console.Ask("Press Enter to retry", ""); err != nil {
				return d.navigate(err, false)
			}
		}
	}
	return false, nil
}

// DefaultSteps wires the collaborators to the default step catalog.
func DefaultSteps(analyzer WebsiteAnalyzer, researcher CompetitorResearcher, generator PersonaGenerator, platforms []string) map[int]Step {
	return map[int]Step{
		0: &APIKeys{},
		1: &Website{Analyzer: analyzer},
		2: &Research{Researcher: researcher},
		3: &Persona{Generator: generator, Platforms: platforms},
		4: &Integrations{},
		5: &Finish{},
	}
}
