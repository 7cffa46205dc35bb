package governance

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Actions the onboarding steps perform on user input.
const (
	ActionAnalyzeWebsite     = "analyze_website"
	ActionResearchCompetitor = "research_competitor"
	ActionGeneratePersona    = "generate_persona"
)

// Request describes an outbound action a step wants to take on behalf of
// the user.
type Request struct {
	Action    string
	Target    string // URL for fetches, query text otherwise
	SessionID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// PolicyEngine evaluates step actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies configured actions and targets matching denied
// patterns. URL targets must be public http(s) addresses unless
// AllowPrivateHosts is set.
type DefaultPolicyEngine struct {
	DeniedActions     map[string]bool
	DeniedRegex       []*regexp.Regexp
	AllowPrivateHosts bool
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedActions: make(map[string]bool),
		DeniedRegex:   make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyAction(name string) {
	e.DeniedActions[name] = true
}

func (e *DefaultPolicyEngine) DenyTargets(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedActions[req.Action] {
		return deny("Action '%s' is restricted by system policy", req.Action), nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Target) {
			return deny("Target matches restricted pattern: %s", re.String()), nil
		}
	}

	if req.Action == ActionAnalyzeWebsite {
		if reason := e.checkURL(req.Target); reason != "" {
			return deny("%s", reason), nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

func (e *DefaultPolicyEngine) checkURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Sprintf("Invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("Scheme '%s' is not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "URL has no host"
	}
	if e.AllowPrivateHosts {
		return ""
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Sprintf("Host '%s' is not public", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Sprintf("Address '%s' is not public", host)
		}
	}
	return ""
}

func deny(format string, args ...any) Result {
	return Result{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}
