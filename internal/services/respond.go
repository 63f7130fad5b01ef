package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// maxToolSteps bounds the tool-use loop to prevent runaway model calls.
const maxToolSteps = 5

// Fixed user-facing warnings. The parent event handler must always
// receive renderable text, never an error.
const (
	emptyResponseWarning = "⚠️ Error: Unable to generate response. Please try again."
	generationWarning    = "⚠️ An error occurred while processing your request. Please check the logs or try again."
)

// StatusFunc receives human-readable progress strings at phase
// transitions. Advisory only; may be nil.
type StatusFunc func(status string)

// RespondOptions carries the per-request context for generation.
type RespondOptions struct {
	Status          StatusFunc
	ThreadURL       string
	HistoryDigest   string
	EnrichedContext string
}

// ResponseGenerator runs the tool-calling model that produces the final
// reply for in-scope requests.
type ResponseGenerator struct {
	client  ChatCompleter
	tickets *TicketPoster
	search  WebSearcher   // nil when no search key is configured
	weather WeatherLookup

	now func() time.Time
}

func NewResponseGenerator(client ChatCompleter, tickets *TicketPoster, search WebSearcher, weather WeatherLookup) *ResponseGenerator {
	return &ResponseGenerator{
		client:  client,
		tickets: tickets,
		search:  search,
		weather: weather,
		now:     time.Now,
	}
}

func (g *ResponseGenerator) systemPrompt(opts RespondOptions) string {
	var b strings.Builder

	b.WriteString(`You are the Developer Success (DS) team AI assistant in Slack.

Your expertise includes:
- Technical troubleshooting for platform and Next.js issues
- Best practices and architecture guidance for web applications
- Customer-specific technical issues with the platform

Guidelines:
- Keep responses concise and to the point
- Focus on actionable solutions and clear explanations
- Use examples and code snippets when helpful
- Do not tag users
- When using web search, ALWAYS include sources inline in your response
- If you're unsure about something, be honest and suggest where to find more information

Customer Context Extraction:
- Pay close attention to any customer identifiers, company names, or account information mentioned
- Look for team IDs (format: team_XXXXXXXXXXXXXXXXXXXXXXXX)
- Look for project IDs (format: prj_XXXXXXXXXXXXXXXXXXXXXXXX)
- Note the customer segment if mentioned (Enterprise, Pro, Hobby)
- Assess urgency and impact to determine priority (production issues = higher priority)

After providing your initial response to in-scope requests, you can offer to create a ticket for tracking and follow-up by using the createTicket tool. Extract as much customer context as possible from the conversation. Use searchChannelHistory to find team or project IDs mentioned earlier in the channel.`)

	fmt.Fprintf(&b, "\n\nCurrent date is: %s", g.now().UTC().Format("2006-01-02"))

	if opts.EnrichedContext != "" {
		fmt.Fprintf(&b, "\n\n%s", opts.EnrichedContext)
	}

	return b.String()
}

// Respond drives the tool-calling loop and returns renderable reply
// text. Errors never escape: they are converted to a fixed warning.
func (g *ResponseGenerator) Respond(ctx context.Context, turns []slackint.ConversationTurn, opts RespondOptions) string {
	messages := toChatMessages(g.systemPrompt(opts), turns)

	var text string
	for step := 0; step < maxToolSteps; step++ {
		start := time.Now()
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    generatorModel,
			Messages: messages,
			Tools:    g.toolDefinitions(),
		})
		metrics.OpenAIAPICallDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.OpenAIAPICalls.WithLabelValues("generation", "error").Inc()
			slog.Error("Response generation failed", "error", err)
			return generationWarning
		}
		metrics.OpenAIAPICalls.WithLabelValues("generation", "success").Inc()

		if len(resp.Choices) == 0 {
			return emptyResponseWarning
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			text = msg.Content
			break
		}

		// The model asked for tools: run each one, feed results back, and
		// let it resume.
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			result := g.executeTool(ctx, call, turns, opts)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    result,
			})
		}
	}

	text = markdownToMrkdwn(text)
	if strings.TrimSpace(text) == "" {
		return emptyResponseWarning
	}

	return text
}

// markdownToMrkdwn converts inline markdown links and bold emphasis to
// Slack's native markup. The two substitutions are order-independent.
var markdownLinkRe = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)

func markdownToMrkdwn(text string) string {
	text = markdownLinkRe.ReplaceAllString(text, "<$2|$1>")
	return strings.ReplaceAll(text, "**", "*")
}

func (g *ResponseGenerator) toolDefinitions() []openai.Tool {
	fn := func(name, description string, params *jsonschema.Definition) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  params,
			},
		}
	}

	return []openai.Tool{
		fn("createTicket",
			"Post a DS support ticket request to the ticket channel. Use this AFTER providing your initial response when the request is in-scope and may need follow-up or tracking. Extract as much customer context as possible from the conversation.",
			&jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"customer":     {Type: jsonschema.String, Description: "Customer identifier or email of the person requesting support"},
					"customerName": {Type: jsonschema.String, Description: "Customer's company/organization name"},
					"customerSegment": {
						Type: jsonschema.String,
						Enum: []string{"Enterprise", "Pro", "Hobby", "Unknown"},
						Description: "Customer's plan segment if known from context",
					},
					"teamId": {Type: jsonschema.String, Description: "Customer's team ID in format team_XXXXXXXXXXXXXXXXXXXXXXXX. If not provided in conversation, use 'team_unknown'"},
					"notionLink": {Type: jsonschema.String, Description: "Notion link for account tracking if the customer account is known"},
					"projectId":  {Type: jsonschema.String, Description: "Customer's project ID in format prj_XXXXXXXXXXXXXXXXXXXXXXXX if mentioned in the conversation"},
					"priority": {
						Type: jsonschema.String,
						Enum: []string{"🔴 SEV 1/Urgent", "🟠 SEV 2/High", "🟡 SEV 3/Non-Urgent"},
						Description: "Priority level based on urgency and customer impact. Default to SEV 3 unless customer is blocked or experiencing production issues",
					},
					"elevatedPriorityContext": {Type: jsonschema.String, Description: "If priority is SEV 1 or SEV 2, context explaining why it's urgent (e.g. production down, customer escalation)"},
					"issueCategory": {
						Type: jsonschema.String,
						Enum: []string{"technical-troubleshooting", "best-practices", "customer-issue", "ai-sdk-support"},
						Description: "Category of the issue for internal tracking",
					},
					"issueTitle": {Type: jsonschema.String, Description: "Concise title for the ticket"},
				},
				Required: []string{"customer", "customerName", "teamId", "issueCategory", "issueTitle"},
			}),
		fn("searchWeb",
			"Use this to search the web for information",
			&jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {Type: jsonschema.String},
					"specificDomain": {
						Type:        jsonschema.String,
						Description: "a domain to search if the user specifies e.g. bbc.com. Should be only the domain name without the protocol",
					},
				},
				Required: []string{"query"},
			}),
		fn("getWeather",
			"Get the current weather at a location",
			&jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"latitude":  {Type: jsonschema.Number},
					"longitude": {Type: jsonschema.Number},
					"city":      {Type: jsonschema.String},
				},
				Required: []string{"latitude", "longitude", "city"},
			}),
		fn("searchChannelHistory",
			"Search recent channel history for keywords, customer names, or team_/prj_ identifiers",
			&jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {Type: jsonschema.String, Description: "Keyword, customer name, or identifier to look for"},
				},
				Required: []string{"query"},
			}),
	}
}

// executeTool dispatches one tool call. Tool failures are reported back
// to the model as error payloads, never raised.
func (g *ResponseGenerator) executeTool(ctx context.Context, call openai.ToolCall, turns []slackint.ConversationTurn, opts RespondOptions) string {
	switch call.Function.Name {
	case "createTicket":
		return g.runCreateTicket(ctx, call.Function.Arguments, turns, opts)
	case "searchWeb":
		return g.runSearchWeb(ctx, call.Function.Arguments, opts)
	case "getWeather":
		return g.runGetWeather(ctx, call.Function.Arguments, opts)
	case "searchChannelHistory":
		return g.runHistorySearch(call.Function.Arguments, opts)
	default:
		metrics.ToolInvocations.WithLabelValues(call.Function.Name, "unknown").Inc()
		return toolError(fmt.Sprintf("unknown tool %q", call.Function.Name))
	}
}

func toolError(msg string) string {
	payload, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return string(payload)
}

func toolResult(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return toolError("failed to encode tool result")
	}
	return string(payload)
}

func (g *ResponseGenerator) runCreateTicket(ctx context.Context, args string, turns []slackint.ConversationTurn, opts RespondOptions) string {
	var input struct {
		Customer                string `json:"customer"`
		CustomerName            string `json:"customerName"`
		CustomerSegment         string `json:"customerSegment"`
		TeamID                  string `json:"teamId"`
		NotionLink              string `json:"notionLink"`
		ProjectID               string `json:"projectId"`
		Priority                string `json:"priority"`
		ElevatedPriorityContext string `json:"elevatedPriorityContext"`
		IssueCategory           string `json:"issueCategory"`
		IssueTitle              string `json:"issueTitle"`
	}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		metrics.ToolInvocations.WithLabelValues("createTicket", "error").Inc()
		return toolError("invalid createTicket arguments")
	}

	if opts.Status != nil {
		opts.Status("is posting ticket to DS team channel...")
	}

	// The ticket body is the user's side of the conversation, with a
	// pointer back to the originating thread.
	var userParts []string
	for _, turn := range turns {
		if turn.Role == slackint.RoleUser {
			userParts = append(userParts, turn.Content)
		}
	}
	request := strings.Join(userParts, "\n\n")
	if opts.ThreadURL != "" {
		request = fmt.Sprintf("%s\n\n_Slack Thread:_ %s", request, opts.ThreadURL)
	}

	result, err := g.tickets.Post(ctx, TicketDetails{
		Customer:                input.Customer,
		CustomerName:            input.CustomerName,
		CustomerSegment:         input.CustomerSegment,
		TeamID:                  input.TeamID,
		NotionLink:              input.NotionLink,
		ProjectID:               input.ProjectID,
		Priority:                input.Priority,
		ElevatedPriorityContext: input.ElevatedPriorityContext,
		Request:                 request,
		SlackThreadURL:          opts.ThreadURL,
		IssueCategory:           input.IssueCategory,
		IssueTitle:              input.IssueTitle,
	})
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("createTicket", "error").Inc()
		slog.Error("Failed to post ticket creation message", "error", err)
		return toolError(fmt.Sprintf("Failed to post ticket: %v", err))
	}
	metrics.ToolInvocations.WithLabelValues("createTicket", "success").Inc()

	return toolResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("✅ Posted ticket to DS team channel! The team can now create a ticket with:\n- Customer: %s\n- Team ID: %s\n- Priority: %s",
			input.CustomerName, input.TeamID, priorityOrDefault(input.Priority)),
		"channelId": result.ChannelID,
	})
}

func (g *ResponseGenerator) runSearchWeb(ctx context.Context, args string, opts RespondOptions) string {
	if g.search == nil {
		metrics.ToolInvocations.WithLabelValues("searchWeb", "error").Inc()
		return toolError("web search is not configured")
	}

	var input struct {
		Query          string `json:"query"`
		SpecificDomain string `json:"specificDomain"`
	}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		metrics.ToolInvocations.WithLabelValues("searchWeb", "error").Inc()
		return toolError("invalid searchWeb arguments")
	}

	if opts.Status != nil {
		opts.Status(fmt.Sprintf("is searching the web for %s...", input.Query))
	}

	results, err := g.search.Search(ctx, input.Query, input.SpecificDomain)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("searchWeb", "error").Inc()
		slog.Warn("Web search failed", "error", err, "query", input.Query)
		return toolError(fmt.Sprintf("search failed: %v", err))
	}
	metrics.ToolInvocations.WithLabelValues("searchWeb", "success").Inc()

	return toolResult(map[string]any{"results": results})
}

func (g *ResponseGenerator) runGetWeather(ctx context.Context, args string, opts RespondOptions) string {
	var input struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		City      string  `json:"city"`
	}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		metrics.ToolInvocations.WithLabelValues("getWeather", "error").Inc()
		return toolError("invalid getWeather arguments")
	}

	if opts.Status != nil {
		opts.Status(fmt.Sprintf("is getting weather for %s...", input.City))
	}

	report, err := g.weather.Current(ctx, input.Latitude, input.Longitude, input.City)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("getWeather", "error").Inc()
		slog.Warn("Weather lookup failed", "error", err, "city", input.City)
		return toolError(fmt.Sprintf("weather lookup failed: %v", err))
	}
	metrics.ToolInvocations.WithLabelValues("getWeather", "success").Inc()

	return toolResult(report)
}

var idPatternRe = regexp.MustCompile(`(?:team|prj)_[A-Za-z0-9]{24,}`)

// runHistorySearch scans the history digest for the query string or any
// team_/prj_ identifiers it contains. Read-only: the digest is never
// parsed back into structured data.
func (g *ResponseGenerator) runHistorySearch(args string, opts RespondOptions) string {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		metrics.ToolInvocations.WithLabelValues("searchChannelHistory", "error").Inc()
		return toolError("invalid searchChannelHistory arguments")
	}

	if opts.Status != nil {
		opts.Status("is searching channel history...")
	}

	const maxMatches = 20
	query := strings.ToLower(strings.TrimSpace(input.Query))
	ids := idPatternRe.FindAllString(input.Query, -1)

	var matches []string
	for _, line := range strings.Split(opts.HistoryDigest, "\n") {
		if line == "" {
			continue
		}

		matched := query != "" && strings.Contains(strings.ToLower(line), query)
		for _, id := range ids {
			if strings.Contains(line, id) {
				matched = true
			}
		}

		if matched {
			matches = append(matches, line)
			if len(matches) == maxMatches {
				break
			}
		}
	}
	metrics.ToolInvocations.WithLabelValues("searchChannelHistory", "success").Inc()

	return toolResult(map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}
