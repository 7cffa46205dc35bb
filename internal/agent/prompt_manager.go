package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Built-in prompts used when the prompts directory does not override them.
var defaultPrompts = map[string]string{
	"identity.md": "You are a senior brand strategist. You write writing personas that content " +
		"writers can follow without further briefing.",
	"rules.md": "Base every statement on the website analysis and competitor research you are " +
		"given. Do not invent products, prices or customers. Always answer by calling the " +
		"submit function exactly once.",
	StageCore + ".md": "Create the core writing persona for this brand: who is speaking, to " +
		"whom, in what tone, and which content pillars it returns to.",
	StageFacebook + ".md": "Adapt the core persona to Facebook: conversational, community " +
		"oriented, short posts with a clear call to action.",
	StageLinkedIn + ".md": "Adapt the core persona to LinkedIn: professional, insight led, " +
		"posts that open with a strong first line.",
	StageBlog + ".md": "Adapt the core persona to long form blog articles: structured, search " +
		"aware, with headings and a consistent point of view.",
}

// systemOrder fixes the order of the shared prompt files.
var systemOrder = map[string]int{
	"identity.md": 1,
	"rules.md":    2,
	"brand.md":    3,
}

type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetSystemPrompt joins the shared prompt files. Stage prompts are excluded.
func (pm *PromptManager) GetSystemPrompt() (string, error) {
	files := map[string]string{
		"identity.md": defaultPrompts["identity.md"],
		"rules.md":    defaultPrompts["rules.md"],
	}

	if pm.Directory != "" {
		entries, err := os.ReadDir(pm.Directory)
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompts directory: %v", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".md") || isStagePrompt(name) {
				continue
			}
			path := filepath.Join(pm.Directory, name)
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
				continue
			}
			files[name] = string(data)
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, okI := systemOrder[names[i]]
		oj, okJ := systemOrder[names[j]]
		if okI && okJ {
			return oi < oj
		}
		if okI != okJ {
			return okI
		}
		return names[i] < names[j]
	})

	contents := make([]string, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(files[name]) != "" {
			contents = append(contents, files[name])
		}
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// GetStagePrompt returns the instructions for one generation stage.
func (pm *PromptManager) GetStagePrompt(stage string) (string, error) {
	name := stage + ".md"
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read %s prompt: %v", stage, err)
		}
	}
	if p, ok := defaultPrompts[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("no prompt for stage %q", stage)
}

func isStagePrompt(name string) bool {
	stage := strings.TrimSuffix(name, ".md")
	if stage == StageCore {
		return true
	}
	_, ok := platformStages[stage]
	return ok
}
