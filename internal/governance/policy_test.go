package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := engine.Evaluate(ctx, Request{Action: ActionResearchCompetitor, Target: "seo tools"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyAction(ActionGeneratePersona)
	res2, err := engine.Evaluate(ctx, Request{Action: ActionGeneratePersona})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyTargets(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyTargets(`(?i)competitor-blocked\.com`); err != nil {
		t.Fatal(err)
	}
	if err := engine.DenyTargets(`(`); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}

	res, _ := engine.Evaluate(context.Background(), Request{Action: ActionAnalyzeWebsite, Target: "https://Competitor-Blocked.com/about"})
	if res.Allowed() {
		t.Error("Expected denied target")
	}
}

func TestDefaultPolicyEngine_WebsiteURLs(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	cases := map[string]bool{
		"https://acme.io":           true,
		"http://acme.io/pricing":    true,
		"ftp://acme.io":             false,
		"acme.io":                   false,
		"http://localhost:8080":     false,
		"http://127.0.0.1":          false,
		"http://10.0.0.5/admin":     false,
		"http://192.168.1.1":        false,
		"http://169.254.169.254/":   false,
		"http://metadata.internal/": false,
		"https://8.8.8.8":           true,
	}
	for target, want := range cases {
		res, err := engine.Evaluate(ctx, Request{Action: ActionAnalyzeWebsite, Target: target})
		if err != nil {
			t.Fatalf("Evaluate(%s) failed: %v", target, err)
		}
		if res.Allowed() != want {
			t.Errorf("%s: allowed=%v, want %v (%s)", target, res.Allowed(), want, res.Reason)
		}
	}

	engine.AllowPrivateHosts = true
	res, _ := engine.Evaluate(ctx, Request{Action: ActionAnalyzeWebsite, Target: "http://localhost:3000"})
	if !res.Allowed() {
		t.Errorf("Expected private host to be allowed when configured: %s", res.Reason)
	}
}
