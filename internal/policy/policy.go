// Package policy is the single source of truth for the Developer Success
// scope taxonomy. The classifier's category enum, its system prompt and
// the routing-message table are all derived from the Categories table so
// the three surfaces cannot drift apart.
package policy

import (
	"fmt"
	"strings"
)

// Category tags a support request with the area it falls under.
type Category string

const (
	CategoryTechnicalTroubleshooting Category = "technical-troubleshooting"
	CategoryOnboardingEnablement     Category = "onboarding-enablement"
	CategoryPerformanceOptimization  Category = "performance-optimization"
	CategoryUsageCostGuidance        Category = "usage-cost-guidance"
	CategoryProductFeatureGuidance   Category = "product-feature-guidance"
	CategoryImplementationWork       Category = "implementation-work"
	CategoryLongTermOwnership        Category = "long-term-ownership"
	CategoryBillingPricing           Category = "billing-pricing-commercial"
	CategoryThirdPartySystems        Category = "third-party-systems"
	CategorySupportIncidents         Category = "support-incidents"
	CategoryGeneralSupport           Category = "general-support"
	CategoryOutOfScope               Category = "out-of-scope"
)

// Entry describes one category of the scope policy: whether the DS team
// owns it, who handles it otherwise, and the criteria the classifier model
// is instructed with.
type Entry struct {
	Category Category
	InScope  bool
	// Team that should own out-of-scope requests of this category.
	RoutesTo string
	// Criteria is the natural-language description shown to the classifier.
	Criteria string
	// RoutingMessage is the canned redirection text for this category.
	// Empty for in-scope categories.
	RoutingMessage string
}

// Categories is the ordered scope taxonomy. Order matters only for prompt
// rendering; lookups go through Lookup.
var Categories = []Entry{
	{
		Category: CategoryTechnicalTroubleshooting,
		InScope:  true,
		RoutesTo: "DS team",
		Criteria: "Deep technical debugging: cold starts, latency, routing, caching, ISR behavior, runtime configuration issues; reproducing issues and determining whether they are platform vs application related.",
	},
	{
		Category: CategoryOnboardingEnablement,
		InScope:  true,
		RoutesTo: "DS team",
		Criteria: "Time-boxed onboarding, go-live or hypercare: structured or ad-hoc enablement sessions for platform features and best practices; high-leverage, time-bounded technical acceleration (not embedded consulting).",
	},
	{
		Category: CategoryPerformanceOptimization,
		InScope:  true,
		RoutesTo: "DS team",
		Criteria: "Performance investigations: observability, tracing, logs or code inspection to diagnose slowness; what's normal vs what's worth optimizing (build times, routing latency, cold starts).",
	},
	{
		Category: CategoryUsageCostGuidance,
		InScope:  true,
		RoutesTo: "DS team",
		Criteria: "Technical usage, cost and efficiency guidance: reviews of usage drivers (data transfer, edge requests, ISR writes, runtime duration); analysis of overage spikes after framework upgrades or config changes; performance vs cost recommendations.",
	},
	{
		Category: CategoryProductFeatureGuidance,
		InScope:  true,
		RoutesTo: "DS team",
		Criteria: "Product and feature guidance: how to use platform features (skew protection, session tracing, bot protection, preview domains, build caching) and framework behavior on the platform (caching, routing, prefetching).",
	},
	{
		Category: CategoryImplementationWork,
		InScope:  false,
		RoutesTo: "Professional Services",
		Criteria: "Full implementation or delivery work: DS provides guidance and patterns, not full feature builds or app ownership. Implementation capacity needs go to Professional Services or partners.",
		RoutingMessage: "This looks like full implementation or delivery work. The DS team provides guidance and patterns rather than building features end to end — please engage Professional Services or a partner for implementation capacity.",
	},
	{
		Category: CategoryLongTermOwnership,
		InScope:  false,
		RoutesTo: "Platform Architects",
		Criteria: "Long-term or embedded technical ownership: DS does not act as an ongoing technical contact. Long-term ownership belongs to Platform Architects or designated technical contacts on Enterprise accounts.",
		RoutingMessage: "Ongoing or embedded technical ownership sits with the Platform Architects (or the designated technical contact on Enterprise accounts). Please reach out to them for long-term engagement.",
	},
	{
		Category: CategoryBillingPricing,
		InScope:  false,
		RoutesTo: "Sales Engineering / FinOps",
		Criteria: "Pricing, commercial or contract operations: pricing models and cost calculations go to Sales Engineering / FinOps; contract changes, entitlements and team moves go to Deal Desk; seat management goes to the customer admin and AE.",
		RoutingMessage: "For pricing, commercial or contract questions, please reach out to Sales Engineering / FinOps (pricing and cost modeling) or the Deal Desk (contract changes and entitlements) via your account team.",
	},
	{
		Category: CategoryThirdPartySystems,
		InScope:  false,
		RoutesTo: "Professional Services",
		Criteria: "Deep work in non-platform or third-party systems: DS does not design or implement external CDNs/WAFs, Sitecore, or partner-managed infrastructure. DS scope is limited to how those systems integrate with the platform.",
		RoutingMessage: "Deep work inside third-party systems is outside DS scope — we can only advise on how they integrate with the platform. Professional Services or the relevant partner can help with the system itself.",
	},
	{
		Category: CategorySupportIncidents,
		InScope:  false,
		RoutesTo: "Support team",
		Criteria: "Support queue ownership or incident management: DS is not first-line support and does not own ticket queues. Platform incidents are owned by the infra and product teams.",
		RoutingMessage: "This needs the Support team: DS is not first-line support and does not own incident response. Please open a support ticket so the on-call team can engage.",
	},
	{
		Category: CategoryGeneralSupport,
		InScope:  false,
		RoutesTo: "Support team",
		Criteria: "General account support questions that do not need deep technical engagement.",
		RoutingMessage: "For general account support, please contact the Support team through your dashboard — they can resolve this faster than the DS queue.",
	},
	{
		Category: CategoryOutOfScope,
		InScope:  false,
		RoutesTo: "",
		Criteria: "Anything else that does not match a category above, including white-glove hand-holding when async guidance is sufficient and prolonged training for low-ARR accounts.",
	},
}

// Lookup returns the policy entry for a category. The second return is
// false for categories outside the closed set.
func Lookup(c Category) (Entry, bool) {
	for _, e := range Categories {
		if e.Category == c {
			return e, true
		}
	}
	return Entry{}, false
}

// CategoryNames returns every category tag in taxonomy order, for use as
// the classifier's closed output enum.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, e := range Categories {
		names[i] = string(e.Category)
	}
	return names
}

// ClassifierSystemPrompt renders the policy document the scope classifier
// is instructed with. Both the in-scope and out-of-scope halves come from
// the Categories table.
func ClassifierSystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are a request classifier for the Developer Success (DS) team.\n\n")
	b.WriteString("Your job is to determine if a request is within the DS team's scope of support.\n\n")

	b.WriteString("## IN SCOPE - Engage DS team when the request involves:\n\n")
	for _, e := range Categories {
		if !e.InScope {
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", e.Category, e.Criteria)
	}

	b.WriteString("## OUT OF SCOPE - Re-route these requests:\n\n")
	for _, e := range Categories {
		if e.InScope {
			continue
		}
		if e.RoutesTo != "" {
			fmt.Fprintf(&b, "### %s (routes to: %s)\n%s\n\n", e.Category, e.RoutesTo, e.Criteria)
		} else {
			fmt.Fprintf(&b, "### %s\n%s\n\n", e.Category, e.Criteria)
		}
	}

	b.WriteString("## Summary:\n")
	b.WriteString("Engage DS when the ask is time-boxed, technical, and high-leverage for adoption, performance, cost efficiency, or smooth onboarding/go-live.\n")
	b.WriteString("Re-route when long-term, commercial, implementation-heavy, operational, or better served by Professional Services, SE/FinOps, Support, or partners.\n\n")
	b.WriteString("Analyze the user's request and classify it.")

	return b.String()
}
