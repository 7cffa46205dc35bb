package wizard

import (
	"errors"
	"fmt"
	"maps"
)

// Reducer names how a reported field combines with the stored one.
type Reducer string

const (
	ReduceReplace      Reducer = "replace"
	ReduceMergeMap     Reducer = "merge_map"
	ReduceAppendUnique Reducer = "append_unique"
)

var (
	ErrUnexpectedField = errors.New("unexpected field")
	ErrFieldType       = errors.New("field has the wrong type")
)

func (r Reducer) valid() bool {
	switch r {
	case ReduceReplace, ReduceMergeMap, ReduceAppendUnique:
		return true
	}
	return false
}

// Merge combines the stored payload of a step with a newly reported one using
// the reducers the step declares. prev is never modified. Fields the step does
// not declare are rejected.
func Merge(desc StepDescriptor, prev, next Payload) (Payload, error) {
	out := make(Payload, len(prev)+len(next))
	maps.Copy(out, prev)

	for name, value := range next {
		reducer, ok := desc.Fields[name]
		if !ok {
			return nil, fmt.Errorf("%w %q for step %q", ErrUnexpectedField, name, desc.Label)
		}
		merged, err := reduce(reducer, out[name], value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = merged
	}
	return out, nil
}

func reduce(r Reducer, prev, next any) (any, error) {
	switch r {
	case ReduceReplace:
		return next, nil

	case ReduceMergeMap:
		nm, ok := asMap(next)
		if !ok {
			return nil, fmt.Errorf("%w: want object, got %T", ErrFieldType, next)
		}
		out := map[string]any{}
		if prev != nil {
			pm, ok := asMap(prev)
			if !ok {
				return nil, fmt.Errorf("%w: stored value is %T", ErrFieldType, prev)
			}
			maps.Copy(out, pm)
		}
		maps.Copy(out, nm)
		return out, nil

	case ReduceAppendUnique:
		nl, ok := asStrings(next)
		if !ok {
			return nil, fmt.Errorf("%w: want list of strings, got %T", ErrFieldType, next)
		}
		var out []string
		if prev != nil {
			pl, ok := asStrings(prev)
			if !ok {
				return nil, fmt.Errorf("%w: stored value is %T", ErrFieldType, prev)
			}
			out = append(out, pl...)
		}
		seen := make(map[string]bool, len(out)+len(nl))
		for _, s := range out {
			seen[s] = true
		}
		for _, s := range nl {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown reducer %q", r)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Payload:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func asStrings(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
