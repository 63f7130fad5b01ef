package policy

import "fmt"

const routingIntro = `Hi there! 👋

I'm the Developer Success AI assistant, and I specialize in technical troubleshooting, best practices, and platform implementation questions.

`

const routingOutro = `

If you have questions about platform issues, framework behavior, performance, or need architecture guidance, I'm here to help! Feel free to ask about those topics anytime.`

// BuildRoutingMessage maps an out-of-scope category to a canned
// redirection message. Pure and deterministic: identical inputs always
// produce identical output. Categories without a dedicated template fall
// back to a generic message parameterized by suggestedTeam.
func BuildRoutingMessage(category Category, suggestedTeam, reasoning string) string {
	var body string

	if e, ok := Lookup(category); ok && e.RoutingMessage != "" {
		body = e.RoutingMessage
	} else if suggestedTeam != "" {
		body = fmt.Sprintf("This question would be best handled by the %s. Please reach out to them for assistance.", suggestedTeam)
	} else {
		body = "This question is outside my area of expertise. Please contact the Support team for assistance."
	}

	return routingIntro + body + routingOutro
}
