// Package steps holds the work behind each onboarding step and a terminal
// driver that runs the wizard.
package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/contentpilot/internal/agent"
	"github.com/rahul/contentpilot/internal/research"
	"github.com/rahul/contentpilot/internal/wizard"
)

// Step collects the data of one wizard step. prev is what the step stored
// last time, merged holds the payloads of all steps. Delegated steps call
// report whenever their own validity changes. Returning an empty payload for
// a step that was completed before keeps the stored data.
type Step interface {
	Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(valid bool)) (wizard.Payload, error)
}

type WebsiteAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) (research.Analysis, error)
}

type CompetitorResearcher interface {
	Research(ctx context.Context, q research.Query) (research.Report, error)
}

type PersonaGenerator interface {
	Generate(ctx context.Context, b agent.Brief, onStage agent.StageFunc) (agent.PersonaSet, error)
}

// APIKeys asks for provider credentials.
type APIKeys struct {
	Providers []string
}

var DefaultProviders = []string{"openai", "gemini", "anthropic"}

func (s *APIKeys) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	providers := s.Providers
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	stored, _ := prev["api_keys"].(map[string]any)

	keys := map[string]any{}
	for _, p := range providers {
		label := fmt.Sprintf("%s API key", p)
		if v, ok := stored[p].(string); ok && v != "" {
			label += " (saved, leave empty to keep)"
		} else {
			label += " (leave empty to skip)"
		}
		v, err := c.Secret(label)
		if err != nil {
			return nil, err
		}
		if v != "" {
			keys[p] = v
		}
	}
	if len(keys) == 0 {
		return wizard.Payload{}, nil
	}
	return wizard.Payload{"api_keys": keys}, nil
}

// Website analyzes the user's site.
type Website struct {
	Analyzer WebsiteAnalyzer
}

func (s *Website) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	def, _ := merged["website_url"].(string)
	raw, err := c.Ask("Website URL", def)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return wizard.Payload{}, nil
	}

	c.Printf("Analyzing %s ...\n", raw)
	a, err := s.Analyzer.Analyze(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("website analysis failed: %w", err)
	}
	c.Printf("  %s (%d words)\n", orDefault(a.Title, a.URL), a.WordCount)
	if len(a.Keywords) > 0 {
		c.Printf("  keywords: %s\n", strings.Join(a.Keywords, ", "))
	}

	use, err := c.Confirm("Use this analysis for content generation?", true)
	if err != nil {
		return nil, err
	}
	return wizard.Payload{
		"website_url":            a.URL,
		"analysis":               a.Map(),
		"use_analysis_for_genai": use,
	}, nil
}

// Research looks up competitors for the user's market.
type Research struct {
	Researcher CompetitorResearcher
}

func (s *Research) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	defKeywords := toStrings(merged["keywords"])
	if len(defKeywords) == 0 {
		if analysis, ok := merged["analysis"].(map[string]any); ok {
			defKeywords = toStrings(analysis["keywords"])
			if len(defKeywords) > 5 {
				defKeywords = defKeywords[:5]
			}
		}
	}
	industryCtx, _ := merged["industry_context"].(map[string]any)
	defIndustry, _ := industryCtx["industry"].(string)
	defAudience, _ := industryCtx["audience"].(string)

	kw, err := c.Ask("Keywords (comma separated)", strings.Join(defKeywords, ", "))
	if err != nil {
		return nil, err
	}
	industry, err := c.Ask("Industry", defIndustry)
	if err != nil {
		return nil, err
	}
	audience, err := c.Ask("Target audience", defAudience)
	if err != nil {
		return nil, err
	}

	website, _ := merged["website_url"].(string)
	q := research.Query{
		Keywords:   splitList(kw),
		Industry:   industry,
		Audience:   audience,
		WebsiteURL: website,
	}
	c.Printf("Researching competitors ...\n")
	rep, err := s.Researcher.Research(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("competitor research failed: %w", err)
	}
	competitors := make([]any, 0, len(rep.Competitors))
	for i, comp := range rep.Competitors {
		c.Printf("  %d. %s (%s)\n", i+1, comp.Name, comp.Domain)
		competitors = append(competitors, map[string]any{
			"name":        comp.Name,
			"url":         comp.URL,
			"domain":      comp.Domain,
			"description": comp.Description,
		})
	}

	payload := wizard.Payload{
		"competitors":      competitors,
		"research_summary": rep.Summary(),
		"industry_context": map[string]any{"industry": rep.Query.Industry, "audience": rep.Query.Audience},
	}
	if website != "" {
		payload["website_url"] = website
	}
	if len(rep.Query.Keywords) > 0 {
		payload["keywords"] = rep.Query.Keywords
	}
	return payload, nil
}

// Persona generates the writing personas. It reports its own validity:
// invalid while generating or after a failure, valid once a core persona
// exists.
type Persona struct {
	Generator PersonaGenerator
	Platforms []string
}

func (s *Persona) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	if _, ok := prev["core_persona"]; ok {
		regen, err := c.Confirm("Personas exist. Regenerate?", false)
		if err != nil {
			return nil, err
		}
		if !regen {
			report(true)
			return nil, nil
		}
	}

	report(false)
	analysis, _ := merged["analysis"].(map[string]any)
	if use, ok := merged["use_analysis_for_genai"].(bool); ok && !use {
		analysis = nil
	}
	summary, _ := merged["research_summary"].(map[string]any)
	website, _ := merged["website_url"].(string)
	brief := agent.Brief{
		WebsiteURL: website,
		Analysis:   analysis,
		Research:   summary,
		Keywords:   toStrings(merged["keywords"]),
		Platforms:  s.Platforms,
	}

	c.Printf("Generating personas ...\n")
	set, err := s.Generator.Generate(ctx, brief, func(stage string, err error) {
		if err != nil {
			c.Printf("  %-9s failed: %v\n", stage, err)
			return
		}
		c.Printf("  %-9s done\n", stage)
	})
	if err != nil {
		return nil, fmt.Errorf("persona generation failed: %w", err)
	}
	c.Printf("  persona: %s (%s)\n", set.Core.Name, set.Core.Tone)
	report(true)
	return set.Payload(), nil
}

// Integrations records which publishing integrations to connect. It is
// optional.
type Integrations struct {
	Available []string
}

var DefaultIntegrations = []string{"wordpress", "linkedin", "facebook", "google_search_console"}

func (s *Integrations) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	available := s.Available
	if len(available) == 0 {
		available = DefaultIntegrations
	}
	answer, err := c.Ask(fmt.Sprintf("Integrations to connect (%s), empty to skip", strings.Join(available, ", ")), "")
	if err != nil {
		return nil, err
	}
	chosen := map[string]any{}
	for _, name := range splitList(answer) {
		name = strings.ToLower(name)
		if !contains(available, name) {
			c.Printf("  ignoring unknown integration %q\n", name)
			continue
		}
		chosen[name] = true
	}
	if len(chosen) == 0 {
		return wizard.Payload{}, nil
	}
	return wizard.Payload{"integrations": chosen}, nil
}

// Finish asks for the final confirmation. Declining goes back one step.
type Finish struct{}

func (s *Finish) Collect(ctx context.Context, c *Console, prev, merged wizard.Payload, report func(bool)) (wizard.Payload, error) {
	ok, err := c.Confirm("Finish onboarding?", true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBack
	}
	return wizard.Payload{"confirmed": true}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toStrings(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
