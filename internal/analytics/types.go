// Package analytics reads the billing and usage aggregates shown next to the
// onboarding flow. Every response is normalized so that callers never have to
// check optional fields.
package analytics

import (
	"sort"
	"time"
)

// Dashboard is the aggregated usage snapshot for the current billing period.
type Dashboard struct {
	Period      string          `json:"period"`
	Summary     UsageSummary    `json:"summary"`
	Providers   []ProviderUsage `json:"providers"`
	Daily       []DailyUsage    `json:"daily"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type UsageSummary struct {
	TotalCalls        int64   `json:"total_calls"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	MonthlyBudget     float64 `json:"monthly_budget"`
	BudgetUsedPercent float64 `json:"budget_used_percent"`
}

type ProviderUsage struct {
	Provider string  `json:"provider"`
	Calls    int64   `json:"calls"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

type DailyUsage struct {
	Date  string  `json:"date"`
	Calls int64   `json:"calls"`
	Cost  float64 `json:"cost"`
}

// SystemHealth reports the state of the backend and the providers it uses.
type SystemHealth struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	CheckedAt time.Time         `json:"checked_at"`
}

// UsageAlert is a budget or quota warning.
type UsageAlert struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Threshold float64   `json:"threshold"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	DefaultPeriod   = "month"
	StatusUnknown   = "unknown"
	SeverityInfo    = "info"
	ProviderUnknown = "unknown"
)

// Normalize fills missing optional fields. now is used for timestamps the
// service left out.
func (d *Dashboard) Normalize(now time.Time) {
	if d.Period == "" {
		d.Period = DefaultPeriod
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = now
	}
	if d.Providers == nil {
		d.Providers = []ProviderUsage{}
	}
	if d.Daily == nil {
		d.Daily = []DailyUsage{}
	}
	for i := range d.Providers {
		if d.Providers[i].Provider == "" {
			d.Providers[i].Provider = ProviderUnknown
		}
	}
	sort.SliceStable(d.Providers, func(i, j int) bool {
		return d.Providers[i].Cost > d.Providers[j].Cost
	})

	s := &d.Summary
	if s.TotalCalls == 0 && s.TotalCost == 0 && len(d.Providers) > 0 {
		for _, p := range d.Providers {
			s.TotalCalls += p.Calls
			s.TotalTokens += p.Tokens
			s.TotalCost += p.Cost
		}
	}
	if s.BudgetUsedPercent == 0 && s.MonthlyBudget > 0 {
		s.BudgetUsedPercent = s.TotalCost / s.MonthlyBudget * 100
	}
}

func (h *SystemHealth) Normalize(now time.Time) {
	if h.Status == "" {
		h.Status = StatusUnknown
	}
	if h.Services == nil {
		h.Services = map[string]string{}
	}
	for name, status := range h.Services {
		if status == "" {
			h.Services[name] = StatusUnknown
		}
	}
	if h.CheckedAt.IsZero() {
		h.CheckedAt = now
	}
}

func (a *UsageAlert) Normalize(now time.Time) {
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

func sortAlerts(alerts []UsageAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Read != alerts[j].Read {
			return !alerts[i].Read
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
