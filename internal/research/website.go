// Package research implements the data gathering behind the website and
// competitor steps of onboarding.
package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/contentpilot/internal/governance"
)

var (
	ErrDenied    = errors.New("research: target denied by policy")
	ErrNoContent = errors.New("research: page has no readable content")
	ErrEmptyURL  = errors.New("research: website url is empty")
)

// minReadableWords is the amount of text below which a page is assumed to be
// rendered client side.
const minReadableWords = 50

// Analysis is what the website step learns about the user's site.
type Analysis struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Excerpt   string   `json:"excerpt"`
	SiteName  string   `json:"site_name"`
	Language  string   `json:"language"`
	Content   string   `json:"content"`
	WordCount int      `json:"word_count"`
	Keywords  []string `json:"keywords"`
	Rendered  bool     `json:"rendered"`
}

// Map returns the analysis as a step payload value.
func (a Analysis) Map() map[string]any {
	keywords := make([]any, len(a.Keywords))
	for i, k := range a.Keywords {
		keywords[i] = k
	}
	return map[string]any{
		"url":        a.URL,
		"title":      a.Title,
		"excerpt":    a.Excerpt,
		"site_name":  a.SiteName,
		"language":   a.Language,
		"content":    a.Content,
		"word_count": a.WordCount,
		"keywords":   keywords,
		"rendered":   a.Rendered,
	}
}

// WebsiteAnalyzer extracts the readable content of a website.
type WebsiteAnalyzer struct {
	Fetcher  Fetcher
	Renderer Fetcher // optional, used when the plain fetch yields too little text
	Policy   governance.PolicyEngine
	// MaxContent limits the stored page text.
	MaxContent  int
	MaxKeywords int
}

func NewWebsiteAnalyzer(policy governance.PolicyEngine) *WebsiteAnalyzer {
	return &WebsiteAnalyzer{
		Fetcher:     NewHTTPFetcher(),
		Renderer:    NewChromeRenderer(),
		Policy:      policy,
		MaxContent:  20000,
		MaxKeywords: 10,
	}
}

// NormalizeURL trims the input and defaults the scheme to https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}

func (a *WebsiteAnalyzer) Analyze(ctx context.Context, rawURL string) (Analysis, error) {
	rawURL = NormalizeURL(rawURL)
	if rawURL == "" {
		return Analysis{}, ErrEmptyURL
	}
	if err := allow(ctx, a.Policy, governance.ActionAnalyzeWebsite, rawURL); err != nil {
		return Analysis{}, err
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to parse URL: %w", err)
	}

	html, err := a.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Analysis{}, err
	}
	analysis, err := a.extract(html, pageURL)
	if analysis.WordCount < minReadableWords && a.Renderer != nil {
		log.Printf("[research] %s has %d readable words, rendering in browser", rawURL, analysis.WordCount)
		rendered, rerr := a.Renderer.Fetch(ctx, rawURL)
		if rerr != nil {
			log.Printf("[research] render failed: %v", rerr)
		} else if r, xerr := a.extract(rendered, pageURL); xerr == nil && r.WordCount > analysis.WordCount {
			r.Rendered = true
			analysis, err = r, nil
		}
	}
	if err != nil {
		return Analysis{}, err
	}
	return analysis, nil
}

func (a *WebsiteAnalyzer) extract(html string, pageURL *url.URL) (Analysis, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to parse article: %w", err)
	}

	p := bluemonday.StrictPolicy()
	text := strings.TrimSpace(p.Sanitize(article.TextContent))
	words := strings.Fields(text)

	analysis := Analysis{
		URL:       pageURL.String(),
		Title:     strings.TrimSpace(p.Sanitize(article.Title)),
		Excerpt:   strings.TrimSpace(p.Sanitize(article.Excerpt)),
		SiteName:  strings.TrimSpace(p.Sanitize(article.SiteName)),
		Language:  article.Language,
		WordCount: len(words),
		Keywords:  Keywords(text, a.MaxKeywords),
	}
	if a.MaxContent > 0 && len(text) > a.MaxContent {
		text = text[:a.MaxContent] + "\n... (content truncated) ..."
	}
	analysis.Content = text

	if analysis.WordCount == 0 {
		return analysis, ErrNoContent
	}
	return analysis, nil
}

func allow(ctx context.Context, policy governance.PolicyEngine, action, target string) error {
	if policy == nil {
		return nil
	}
	res, err := policy.Evaluate(ctx, governance.Request{Action: action, Target: target})
	if err != nil {
		return fmt.Errorf("policy check failed: %w", err)
	}
	if !res.Allowed() {
		return fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return nil
}
