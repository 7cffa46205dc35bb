// Package gateway delivers onboarding notifications to chat platforms.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/wizard"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
}

// Target is one chat a notification goes to.
type Target struct {
	Channel   string // "telegram", "discord"
	ChatID    string
	Messenger Messenger
}

// Notifier announces finished onboardings. It implements
// wizard.CompletionNotifier.
type Notifier struct {
	Targets []Target
	Logger  *observability.Logger
}

func NewNotifier(logger *observability.Logger, targets ...Target) *Notifier {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Notifier{Targets: targets, Logger: logger}
}

// OnboardingComplete sends the summary to every target. A failing target
// does not stop the others.
func (n *Notifier) OnboardingComplete(ctx context.Context, s wizard.State) error {
	text := FormatCompletion(s)
	var errs []error
	for _, t := range n.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.Messenger.Send(t.ChatID, text)
		n.Logger.LogNotify(t.Channel, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Channel, err))
		}
	}
	return errors.Join(errs...)
}

// FormatCompletion renders the onboarding summary as Markdown. Values taken
// from the onboarding data are escaped.
func FormatCompletion(s wizard.State) string {
	merged := s.Merged()
	var sb strings.Builder
	sb.WriteString("✅ *Onboarding complete*\n")
	fmt.Fprintf(&sb, "Steps completed: %d\n", s.CompletedCount())

	if url, ok := merged["website_url"].(string); ok && url != "" {
		fmt.Fprintf(&sb, "Website: %s\n", escape(url))
	}
	if summary, ok := merged["research_summary"].(map[string]any); ok {
		if n, ok := summary["competitor_count"]; ok {
			fmt.Fprintf(&sb, "Competitors found: %s\n", escape(fmt.Sprint(n)))
		}
	}
	if core, ok := merged["core_persona"].(map[string]any); ok {
		if name, ok := core["name"].(string); ok && name != "" {
			fmt.Fprintf(&sb, "Persona: %s\n", escape(name))
		}
	}
	if platforms, ok := merged["selected_platforms"]; ok {
		if list := joinList(platforms); list != "" {
			fmt.Fprintf(&sb, "Platforms: %s\n", escape(list))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// escape neutralizes Markdown entities. Discord accepts the same backslash
// escapes as Telegram's legacy Markdown mode.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func joinList(v any) string {
	switch l := v.(type) {
	case []string:
		return strings.Join(l, ", ")
	case []any:
		parts := make([]string, 0, len(l))
		for _, item := range l {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
