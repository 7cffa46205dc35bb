package wizard

import (
	"reflect"
	"strings"
)

// Report is the validity a delegated step reported about itself.
type Report int

const (
	ReportUnknown Report = iota
	ReportValid
	ReportInvalid
)

// ReportOf converts a reported flag.
func ReportOf(valid bool) Report {
	if valid {
		return ReportValid
	}
	return ReportInvalid
}

// Engine validates payloads against a step catalog.
type Engine struct {
	steps []StepDescriptor
}

func NewEngine(steps []StepDescriptor) Engine {
	return Engine{steps: steps}
}

// Valid reports whether the wizard may advance past step index given its
// accumulated payload and, for delegated steps, the step's own report.
// Unknown indices are invalid.
func (e Engine) Valid(index int, payload Payload, report Report) bool {
	if index < 0 || index >= len(e.steps) {
		return false
	}
	return Validate(e.steps[index], payload, report)
}

// Validate is the pure per-step validity function. A nil payload is invalid
// for every policy that inspects payloads; the report of a delegated step wins
// over what its payload shape suggests.
func Validate(desc StepDescriptor, payload Payload, report Report) bool {
	switch desc.Policy {
	case PolicyAlwaysValid:
		return true
	case PolicyDelegated:
		if payload == nil {
			return false
		}
		if report != ReportUnknown {
			return report == ReportValid
		}
		return len(desc.Required) > 0 && hasFields(payload, desc.Required)
	case PolicyFieldPresence:
		return payload != nil && hasFields(payload, desc.Required)
	default:
		return false
	}
}

func hasFields(payload Payload, fields []string) bool {
	for _, name := range fields {
		if isEmpty(payload[name]) {
			return false
		}
	}
	return true
}

// isEmpty treats nil, blank strings, empty collections and maps holding only
// empty values as absent, so {"openai": ""} does not count as credentials.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if !isEmpty(iter.Value().Interface()) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
