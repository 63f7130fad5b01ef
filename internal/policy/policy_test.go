package policy

import (
	"strings"
	"testing"
)

func TestEveryOutOfScopeCategoryHasRouting(t *testing.T) {
	for _, e := range Categories {
		if e.InScope {
			continue
		}
		// out-of-scope is the generic fallback and intentionally has no
		// dedicated template
		if e.Category == CategoryOutOfScope {
			continue
		}
		if e.RoutingMessage == "" {
			t.Errorf("out-of-scope category %q has no routing message", e.Category)
		}
		if e.RoutesTo == "" {
			t.Errorf("out-of-scope category %q has no destination team", e.Category)
		}
	}
}

func TestLookup(t *testing.T) {
	testCases := []struct {
		name     string
		category Category
		found    bool
		inScope  bool
	}{
		{"in-scope category", CategoryTechnicalTroubleshooting, true, true},
		{"out-of-scope category", CategoryBillingPricing, true, false},
		{"generic fallback", CategoryOutOfScope, true, false},
		{"unknown category", Category("made-up"), false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, ok := Lookup(tc.category)
			if ok != tc.found {
				t.Fatalf("Lookup(%q) found=%v, want %v", tc.category, ok, tc.found)
			}
			if ok && e.InScope != tc.inScope {
				t.Errorf("Lookup(%q) InScope=%v, want %v", tc.category, e.InScope, tc.inScope)
			}
		})
	}
}

func TestCategoryNamesMatchTaxonomy(t *testing.T) {
	names := CategoryNames()
	if len(names) != len(Categories) {
		t.Fatalf("expected %d category names, got %d", len(Categories), len(names))
	}

	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate category name %q", n)
		}
		seen[n] = true
	}

	for _, want := range []string{"technical-troubleshooting", "billing-pricing-commercial", "out-of-scope"} {
		if !seen[want] {
			t.Errorf("expected category %q in taxonomy", want)
		}
	}
}

func TestClassifierSystemPromptCoversAllCategories(t *testing.T) {
	prompt := ClassifierSystemPrompt()

	for _, e := range Categories {
		if !strings.Contains(prompt, string(e.Category)) {
			t.Errorf("system prompt missing category %q", e.Category)
		}
	}

	if !strings.Contains(prompt, "IN SCOPE") || !strings.Contains(prompt, "OUT OF SCOPE") {
		t.Errorf("system prompt missing scope sections")
	}
}

func TestBuildRoutingMessageDeterministic(t *testing.T) {
	a := BuildRoutingMessage(CategoryBillingPricing, "Deal Desk", "contract question")
	b := BuildRoutingMessage(CategoryBillingPricing, "Deal Desk", "contract question")
	if a != b {
		t.Errorf("routing message is not deterministic")
	}
}

func TestBuildRoutingMessage(t *testing.T) {
	testCases := []struct {
		name          string
		category      Category
		suggestedTeam string
		wantContains  string
	}{
		{
			name:         "billing routes to commercial teams",
			category:     CategoryBillingPricing,
			wantContains: "Sales Engineering / FinOps",
		},
		{
			name:         "incidents route to support",
			category:     CategorySupportIncidents,
			wantContains: "Support team",
		},
		{
			name:         "implementation routes to professional services",
			category:     CategoryImplementationWork,
			wantContains: "Professional Services",
		},
		{
			name:          "fallback uses suggested team",
			category:      CategoryOutOfScope,
			suggestedTeam: "AI Enablement",
			wantContains:  "best handled by the AI Enablement",
		},
		{
			name:          "unknown category uses suggested team",
			category:      Category("nonsense"),
			suggestedTeam: "Security team",
			wantContains:  "best handled by the Security team",
		},
		{
			name:         "no suggested team falls back to support",
			category:     CategoryOutOfScope,
			wantContains: "contact the Support team",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildRoutingMessage(tc.category, tc.suggestedTeam, "because")
			if !strings.Contains(got, tc.wantContains) {
				t.Errorf("BuildRoutingMessage(%q) = %q, want substring %q", tc.category, got, tc.wantContains)
			}
			if !strings.Contains(got, "Developer Success") {
				t.Errorf("routing message missing intro")
			}
		})
	}
}
