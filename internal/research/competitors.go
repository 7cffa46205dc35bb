package research

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools/duckduckgo"

	"github.com/rahul/contentpilot/internal/cache"
	"github.com/rahul/contentpilot/internal/governance"
	"github.com/rahul/contentpilot/internal/store"
)

var ErrEmptyQuery = errors.New("research: need keywords or an industry")

// Searcher runs a web search and returns the results as text.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// NewSearcher returns a DuckDuckGo searcher.
func NewSearcher(maxResults int) (Searcher, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return ddg, nil
}

// Query describes the market to research.
type Query struct {
	Keywords   []string `json:"keywords"`
	Industry   string   `json:"industry"`
	Audience   string   `json:"audience"`
	WebsiteURL string   `json:"website_url"`
}

type Competitor struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

// Report is the result of competitor research.
type Report struct {
	Query       Query        `json:"query"`
	SearchQuery string       `json:"search_query"`
	Competitors []Competitor `json:"competitors"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Summary returns the research summary stored with the research step.
func (r Report) Summary() map[string]any {
	names := make([]any, 0, len(r.Competitors))
	domains := make([]any, 0, len(r.Competitors))
	for _, c := range r.Competitors {
		names = append(names, c.Name)
		domains = append(domains, c.Domain)
	}
	return map[string]any{
		"competitor_count": len(r.Competitors),
		"competitors":      names,
		"domains":          domains,
		"industry":         r.Query.Industry,
		"audience":         r.Query.Audience,
		"search_query":     r.SearchQuery,
		"generated_at":     r.GeneratedAt.Format(time.RFC3339),
	}
}

// NewResearchCache creates the cache competitor reports are kept in.
func NewResearchCache(kv store.KV, opts ...cache.Option) (*cache.Cache[Report], error) {
	return cache.New[Report](kv, "research", cache.DefaultPolicy(), opts...)
}

// CompetitorResearcher finds competing sites for a market. Reports are
// cached by keywords, industry and audience.
type CompetitorResearcher struct {
	Search         Searcher
	Cache          *cache.Cache[Report] // optional
	Policy         governance.PolicyEngine
	MaxCompetitors int
	Now            func() time.Time
}

func NewCompetitorResearcher(search Searcher, reports *cache.Cache[Report], policy governance.PolicyEngine) *CompetitorResearcher {
	return &CompetitorResearcher{
		Search:         search,
		Cache:          reports,
		Policy:         policy,
		MaxCompetitors: 8,
		Now:            time.Now,
	}
}

func (r *CompetitorResearcher) Research(ctx context.Context, q Query) (Report, error) {
	q = cleanQuery(q)
	if len(q.Keywords) == 0 && q.Industry == "" {
		return Report{}, ErrEmptyQuery
	}
	search := searchQuery(q)
	if err := allow(ctx, r.Policy, governance.ActionResearchCompetitor, search); err != nil {
		return Report{}, err
	}

	load := func(ctx context.Context) (Report, error) {
		raw, err := r.Search.Call(ctx, search)
		if err != nil {
			return Report{}, fmt.Errorf("search failed: %w", err)
		}
		return Report{
			Query:       q,
			SearchQuery: search,
			Competitors: r.pick(ParseResults(raw), q.WebsiteURL),
			GeneratedAt: r.Now(),
		}, nil
	}
	if r.Cache == nil {
		return load(ctx)
	}
	lookup := cache.Lookup{"keywords": q.Keywords, "industry": q.Industry, "audience": q.Audience}
	return r.Cache.GetOrLoad(ctx, lookup, load)
}

// pick drops the user's own site, keeps one result per domain and caps the
// list.
func (r *CompetitorResearcher) pick(results []Competitor, own string) []Competitor {
	ownDomain := domainOf(NormalizeURL(own))
	seen := map[string]bool{}
	out := []Competitor{}
	for _, c := range results {
		if c.Domain == "" || c.Domain == ownDomain || seen[c.Domain] {
			continue
		}
		seen[c.Domain] = true
		out = append(out, c)
		if r.MaxCompetitors > 0 && len(out) == r.MaxCompetitors {
			break
		}
	}
	return out
}

func cleanQuery(q Query) Query {
	var keywords []string
	seen := map[string]bool{}
	for _, k := range q.Keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		keywords = append(keywords, k)
	}
	return Query{
		Keywords:   keywords,
		Industry:   strings.TrimSpace(q.Industry),
		Audience:   strings.TrimSpace(q.Audience),
		WebsiteURL: strings.TrimSpace(q.WebsiteURL),
	}
}

func searchQuery(q Query) string {
	parts := append([]string{}, q.Keywords...)
	if q.Industry != "" {
		parts = append(parts, q.Industry)
	}
	if q.Audience != "" {
		parts = append(parts, "for "+q.Audience)
	}
	return strings.Join(parts, " ") + " competitors"
}

// ParseResults reads the Title/Description/URL blocks the search tool
// returns.
func ParseResults(raw string) []Competitor {
	var out []Competitor
	var cur Competitor
	flush := func() {
		if cur.URL != "" {
			cur.Domain = domainOf(cur.URL)
			if cur.Name == "" {
				cur.Name = cur.Domain
			}
			out = append(out, cur)
		}
		cur = Competitor{}
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "Title:"):
			if cur.Name != "" || cur.URL != "" {
				flush()
			}
			cur.Name = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Description:"):
			cur.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}
	flush()
	return out
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
