// Package agent generates writing personas with a language model.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/contentpilot/internal/governance"
	"github.com/rahul/contentpilot/internal/observability"
)

// Generation stages. The core persona comes first; every platform persona is
// derived from it.
const (
	StageCore     = "core"
	StageFacebook = "facebook"
	StageLinkedIn = "linkedin"
	StageBlog     = "blog"
)

var platformStages = map[string]bool{
	StageFacebook: true,
	StageLinkedIn: true,
	StageBlog:     true,
}

// DefaultPlatforms are generated when the brief names none.
var DefaultPlatforms = []string{StageFacebook, StageLinkedIn, StageBlog}

var (
	ErrNoPersona       = errors.New("agent: model did not return a persona")
	ErrUnknownPlatform = errors.New("agent: unknown platform")
	ErrDenied          = errors.New("agent: persona generation denied by policy")
)

// maxBriefContent bounds how much page text goes into a prompt.
const maxBriefContent = 4000

type Persona struct {
	Name           string   `json:"name"`
	Summary        string   `json:"summary"`
	Audience       string   `json:"audience"`
	Tone           string   `json:"tone"`
	ContentPillars []string `json:"content_pillars"`
	Dos            []string `json:"dos"`
	Donts          []string `json:"donts"`
}

type PlatformPersona struct {
	Platform   string   `json:"platform"`
	Voice      string   `json:"voice"`
	Format     string   `json:"format"`
	PostLength string   `json:"post_length"`
	Hashtags   []string `json:"hashtags"`
	Examples   []string `json:"examples"`
}

type QualityMetrics struct {
	Completeness     float64 `json:"completeness"`
	PlatformCoverage float64 `json:"platform_coverage"`
}

// PersonaSet is the full result of a generation run.
type PersonaSet struct {
	Core      Persona                    `json:"core_persona"`
	Platforms map[string]PlatformPersona `json:"platform_personas"`
	Quality   QualityMetrics             `json:"quality_metrics"`
}

// Payload returns the set in the shape the persona step stores.
func (s PersonaSet) Payload() map[string]any {
	selected := make([]any, 0, len(s.Platforms))
	for _, p := range DefaultPlatforms {
		if _, ok := s.Platforms[p]; ok {
			selected = append(selected, p)
		}
	}
	return map[string]any{
		"core_persona":       toMap(s.Core),
		"platform_personas":  toMap(s.Platforms),
		"selected_platforms": selected,
		"quality_metrics":    toMap(s.Quality),
	}
}

// Brief is what the model knows about the brand.
type Brief struct {
	SessionID  string
	WebsiteURL string
	Analysis   map[string]any
	Research   map[string]any
	Keywords   []string
	Platforms  []string
}

// StageFunc is called after every stage with its outcome.
type StageFunc func(stage string, err error)

// PersonaGenerator asks the model for a core persona and then one persona
// per platform, each through a structured submit call.
type PersonaGenerator struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
	Policy  governance.PolicyEngine
}

func NewPersonaGenerator(model llms.Model, prompts *PromptManager, logger *observability.Logger, policy governance.PolicyEngine) *PersonaGenerator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &PersonaGenerator{
		Model:   model,
		Prompts: prompts,
		Logger:  logger,
		Policy:  policy,
	}
}

// Generate runs every stage in order. On a platform failure the set built so
// far is returned together with the error.
func (g *PersonaGenerator) Generate(ctx context.Context, b Brief, onStage StageFunc) (PersonaSet, error) {
	if onStage == nil {
		onStage = func(string, error) {}
	}
	platforms := b.Platforms
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}
	for _, p := range platforms {
		if !platformStages[p] {
			return PersonaSet{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
		}
	}

	if g.Policy != nil {
		res, err := g.Policy.Evaluate(ctx, governance.Request{Action: governance.ActionGeneratePersona, Target: b.WebsiteURL, SessionID: b.SessionID})
		if err != nil {
			return PersonaSet{}, err
		}
		if !res.Allowed() {
			return PersonaSet{}, fmt.Errorf("%w: %s", ErrDenied, res.Reason)
		}
	}

	system, err := g.Prompts.GetSystemPrompt()
	if err != nil {
		log.Printf("Warning: Failed to load system prompt: %v", err)
	}
	brief := briefText(b)

	var core Persona
	err = g.run(ctx, b.SessionID, StageCore, system, brief, corePersonaTool, &core)
	if err == nil && strings.TrimSpace(core.Name) == "" && strings.TrimSpace(core.Summary) == "" {
		err = ErrNoPersona
	}
	onStage(StageCore, err)
	if err != nil {
		return PersonaSet{}, fmt.Errorf("core persona: %w", err)
	}

	set := PersonaSet{Core: core, Platforms: make(map[string]PlatformPersona)}
	coreJSON, _ := json.MarshalIndent(core, "", "  ")
	for _, p := range platforms {
		var pp PlatformPersona
		input := fmt.Sprintf("%s\n\n## Core persona\n%s", brief, coreJSON)
		err := g.run(ctx, b.SessionID, p, system, input, platformPersonaTool, &pp)
		onStage(p, err)
		if err != nil {
			set.Quality = score(set, platforms)
			return set, fmt.Errorf("%s persona: %w", p, err)
		}
		pp.Platform = p
		set.Platforms[p] = pp
	}
	set.Quality = score(set, platforms)
	return set, nil
}

func (g *PersonaGenerator) run(ctx context.Context, sessionID, stage, system, input string, tool llms.Tool, out any) error {
	stagePrompt, err := g.Prompts.GetStagePrompt(stage)
	if err != nil {
		return err
	}

	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(stagePrompt + "\n\n" + input)},
	})

	resp, err := g.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{tool}))
	if err != nil {
		return err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ErrNoPersona
	}
	choice := resp.Choices[0]

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != tool.Function.Name {
			continue
		}
		g.Logger.LogLLM(sessionID, stage, messages, tc.FunctionCall.Arguments)
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), out); err != nil {
			return fmt.Errorf("failed to parse %s arguments: %v", tool.Function.Name, err)
		}
		return nil
	}

	// Some models answer with plain JSON instead of calling the function.
	g.Logger.LogLLM(sessionID, stage, messages, choice.Content)
	content := stripFences(choice.Content)
	if content != "" && json.Unmarshal([]byte(content), out) == nil {
		return nil
	}
	return ErrNoPersona
}

func briefText(b Brief) string {
	var sb strings.Builder
	sb.WriteString("## Brand brief\n")
	if b.WebsiteURL != "" {
		fmt.Fprintf(&sb, "Website: %s\n", b.WebsiteURL)
	}
	if len(b.Keywords) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(b.Keywords, ", "))
	}
	if len(b.Analysis) > 0 {
		analysis := make(map[string]any, len(b.Analysis))
		for k, v := range b.Analysis {
			analysis[k] = v
		}
		if s, ok := analysis["content"].(string); ok {
			analysis["content"] = truncate(s, maxBriefContent)
		}
		data, _ := json.MarshalIndent(analysis, "", "  ")
		fmt.Fprintf(&sb, "\n## Website analysis\n%s\n", data)
	}
	if len(b.Research) > 0 {
		data, _ := json.MarshalIndent(b.Research, "", "  ")
		fmt.Fprintf(&sb, "\n## Competitor research\n%s\n", data)
	}
	return sb.String()
}

func score(set PersonaSet, platforms []string) QualityMetrics {
	c := set.Core
	filled := 0
	for _, ok := range []bool{
		c.Name != "", c.Summary != "", c.Audience != "", c.Tone != "",
		len(c.ContentPillars) > 0, len(c.Dos) > 0, len(c.Donts) > 0,
	} {
		if ok {
			filled++
		}
	}
	q := QualityMetrics{Completeness: float64(filled) / 7}
	if len(platforms) > 0 {
		q.PlatformCoverage = float64(len(set.Platforms)) / float64(len(platforms))
	}
	return q
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

var stringList = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string"},
}

var corePersonaTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "submit_core_persona",
		Description: "Submit the core writing persona of the brand.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":            map[string]any{"type": "string"},
				"summary":         map[string]any{"type": "string"},
				"audience":        map[string]any{"type": "string"},
				"tone":            map[string]any{"type": "string"},
				"content_pillars": stringList,
				"dos":             stringList,
				"donts":           stringList,
			},
			"required": []string{"name", "summary", "audience", "tone"},
		},
	},
}

var platformPersonaTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "submit_platform_persona",
		Description: "Submit the persona adapted to one publishing platform.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"voice":       map[string]any{"type": "string"},
				"format":      map[string]any{"type": "string"},
				"post_length": map[string]any{"type": "string"},
				"hashtags":    stringList,
				"examples":    stringList,
			},
			"required": []string{"voice", "format"},
		},
	},
}
