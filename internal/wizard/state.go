package wizard

import "sort"

// State is the runtime state of one wizard session.
type State struct {
	ActiveStep int             `json:"active_step"`
	Payloads   map[int]Payload `json:"payloads"`
	Validity   map[int]bool    `json:"validity"`
	// Completed holds the steps that went through a successful forward
	// transition. Having a payload does not imply completion.
	Completed map[int]bool `json:"completed"`
	Done      bool         `json:"done"`
}

func newState() State {
	return State{
		Payloads:  make(map[int]Payload),
		Validity:  make(map[int]bool),
		Completed: make(map[int]bool),
	}
}

// CompletedCount returns how many steps are completed.
func (s State) CompletedCount() int {
	n := 0
	for _, done := range s.Completed {
		if done {
			n++
		}
	}
	return n
}

// Merged flattens the payloads of all steps, later steps overriding earlier
// ones, e.g. to hand the website URL from the website step to research.
func (s State) Merged() Payload {
	indices := make([]int, 0, len(s.Payloads))
	for i := range s.Payloads {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := Payload{}
	for _, i := range indices {
		for k, v := range s.Payloads[i] {
			out[k] = v
		}
	}
	return out
}

func (s State) clone() State {
	c := State{
		ActiveStep: s.ActiveStep,
		Payloads:   make(map[int]Payload, len(s.Payloads)),
		Validity:   make(map[int]bool, len(s.Validity)),
		Completed:  make(map[int]bool, len(s.Completed)),
		Done:       s.Done,
	}
	for i, p := range s.Payloads {
		c.Payloads[i] = Payload(cloneValue(map[string]any(p)).(map[string]any))
	}
	for i, v := range s.Validity {
		c.Validity[i] = v
	}
	for i, v := range s.Completed {
		c.Completed[i] = v
	}
	return c
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Payload:
		return Payload(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	default:
		return v
	}
}
