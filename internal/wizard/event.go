package wizard

// Event is a message a step sends to the orchestrator.
type Event interface {
	isEvent()
}

// Completed is sent when the user finishes the active step. Payload may be
// empty for optional or exempt steps and for revisits of completed steps.
type Completed struct {
	Payload Payload
}

// ValidityChanged is sent by delegated steps whenever their own validity
// changes. It applies to the active step.
type ValidityChanged struct {
	Valid bool
}

func (Completed) isEvent()       {}
func (ValidityChanged) isEvent() {}
