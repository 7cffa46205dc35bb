package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rahul/contentpilot/internal/governance"
	"github.com/rahul/contentpilot/internal/store"
)

const articleHTML = `<html><head><title>Acme Analytics</title>
<meta name="description" content="Marketing analytics for small teams"></head>
<body><article><h1>Acme Analytics</h1>
<p>Acme analytics helps marketing teams measure campaigns. Our analytics dashboards show campaign
performance, audience growth and content engagement across every channel you publish to.</p>
<p>Marketing teams use Acme analytics to plan content, compare campaigns and report results to
stakeholders. Campaign reports are generated automatically every week with clear charts.</p>
<p>Start measuring marketing campaigns today with a free trial of the analytics platform. Setup
takes minutes and works with the tools your marketing team already uses.<script>alert(1)</script></p>
</article></body></html>`

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	s.calls++
	return s.html, s.err
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.UserAgent(), "Mozilla") {
			t.Errorf("unexpected user agent %q", r.UserAgent())
		}
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	html, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "Acme Analytics") {
		t.Error("page body missing")
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestWebsiteAnalyzer_Analyze(t *testing.T) {
	fetcher := &stubFetcher{html: articleHTML}
	renderer := &stubFetcher{}
	a := &WebsiteAnalyzer{Fetcher: fetcher, Renderer: renderer, MaxKeywords: 3}

	got, err := a.Analyze(context.Background(), "acme.io")
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://acme.io" {
		t.Errorf("expected https default, got %s", got.URL)
	}
	if got.WordCount < minReadableWords {
		t.Errorf("expected readable article, got %d words", got.WordCount)
	}
	if strings.Contains(got.Content, "<script>") || strings.Contains(got.Content, "alert(1)") {
		t.Error("content must be sanitized")
	}
	if len(got.Keywords) != 3 || got.Keywords[0] != "analytics" {
		t.Errorf("unexpected keywords %v", got.Keywords)
	}
	if renderer.calls != 0 || got.Rendered {
		t.Error("renderer must not be used for readable pages")
	}
	if m := got.Map(); m["url"] != "https://acme.io" || m["word_count"] != got.WordCount {
		t.Errorf("unexpected payload map %v", m)
	}
}

func TestWebsiteAnalyzer_FallsBackToRenderer(t *testing.T) {
	fetcher := &stubFetcher{html: `<html><body><div id="root"></div></body></html>`}
	renderer := &stubFetcher{html: articleHTML}
	a := &WebsiteAnalyzer{Fetcher: fetcher, Renderer: renderer, MaxKeywords: 5}

	got, err := a.Analyze(context.Background(), "https://spa.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if renderer.calls != 1 || !got.Rendered {
		t.Error("expected the rendered page to be used")
	}
}

func TestWebsiteAnalyzer_Errors(t *testing.T) {
	ctx := context.Background()

	a := &WebsiteAnalyzer{Fetcher: &stubFetcher{html: "<html></html>"}}
	if _, err := a.Analyze(ctx, "   "); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := a.Analyze(ctx, "https://empty.example.com"); err == nil {
		t.Error("expected an error for a page without text")
	}

	a = &WebsiteAnalyzer{Fetcher: &stubFetcher{err: fmt.Errorf("boom")}}
	if _, err := a.Analyze(ctx, "https://down.example.com"); err == nil {
		t.Error("expected fetch error")
	}

	fetcher := &stubFetcher{html: articleHTML}
	a = &WebsiteAnalyzer{Fetcher: fetcher, Policy: governance.NewDefaultPolicyEngine()}
	if _, err := a.Analyze(ctx, "http://127.0.0.1:8080"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Error("denied targets must not be fetched")
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("Growth growth GROWTH marketing marketing with with with the seo", 2)
	if len(got) != 2 || got[0] != "growth" || got[1] != "marketing" {
		t.Errorf("unexpected keywords %v", got)
	}
	if got := Keywords("anything", 0); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}

const searchOutput = `Title: Rival One - Analytics
Description: Analytics for marketers
URL: https://www.rival-one.com/

Title: Rival One pricing
Description: Pricing page
URL: https://rival-one.com/pricing

Title: Acme
Description: Our own site
URL: https://acme.io/

Title: Second Rival
Description: Campaign reporting
URL: https://second.example.org/home
`

type stubSearcher struct {
	out     string
	err     error
	queries []string
}

func (s *stubSearcher) Call(ctx context.Context, input string) (string, error) {
	s.queries = append(s.queries, input)
	return s.out, s.err
}

func TestParseResults(t *testing.T) {
	got := ParseResults(searchOutput)
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
	if got[0].Name != "Rival One - Analytics" || got[0].Domain != "rival-one.com" || got[0].Description != "Analytics for marketers" {
		t.Errorf("unexpected first result %+v", got[0])
	}
	if ParseResults("") != nil {
		t.Error("expected no results for empty output")
	}
}

func TestCompetitorResearcher_Research(t *testing.T) {
	search := &stubSearcher{out: searchOutput}
	reports, err := NewResearchCache(store.NewMemoryKV())
	if err != nil {
		t.Fatal(err)
	}
	r := NewCompetitorResearcher(search, reports, nil)
	r.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	q := Query{Keywords: []string{"analytics", " Analytics", "seo"}, Industry: "SaaS", WebsiteURL: "acme.io"}
	rep, err := r.Research(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Competitors) != 2 || rep.Competitors[0].Domain != "rival-one.com" || rep.Competitors[1].Domain != "second.example.org" {
		t.Errorf("unexpected competitors %+v", rep.Competitors)
	}
	if search.queries[0] != "analytics seo SaaS competitors" {
		t.Errorf("unexpected search query %q", search.queries[0])
	}
	sum := rep.Summary()
	if sum["competitor_count"] != 2 || sum["industry"] != "SaaS" {
		t.Errorf("unexpected summary %v", sum)
	}

	// Same market with different spelling is served from cache.
	again, err := r.Research(context.Background(), Query{Keywords: []string{"SEO", "analytics"}, Industry: "saas "})
	if err != nil {
		t.Fatal(err)
	}
	if len(search.queries) != 1 {
		t.Errorf("expected cached report, got %d searches", len(search.queries))
	}
	if len(again.Competitors) != 2 {
		t.Errorf("cached report lost competitors: %+v", again)
	}
}

func TestCompetitorResearcher_Errors(t *testing.T) {
	ctx := context.Background()
	r := NewCompetitorResearcher(&stubSearcher{err: fmt.Errorf("rate limited")}, nil, nil)
	if _, err := r.Research(ctx, Query{}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := r.Research(ctx, Query{Industry: "fintech"}); err == nil {
		t.Error("expected search error")
	}

	policy := governance.NewDefaultPolicyEngine()
	policy.DenyAction(governance.ActionResearchCompetitor)
	search := &stubSearcher{out: searchOutput}
	r = NewCompetitorResearcher(search, nil, policy)
	if _, err := r.Research(ctx, Query{Industry: "fintech"}); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
	if len(search.queries) != 0 {
		t.Error("denied research must not search")
	}
}
