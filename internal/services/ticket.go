package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"
	"dshelp/internal/storage"

	slackapi "github.com/slack-go/slack"
)

// ErrTicketChannelNotConfigured indicates a deployment misconfiguration,
// not a runtime condition to recover from.
var ErrTicketChannelNotConfigured = errors.New("SLACK_TICKET_CHANNEL_ID not configured")

const defaultPriority = "🟡 SEV 3/Non-Urgent"

// notProvided is the stable placeholder for absent optional fields. The
// downstream ticket integration parses the plain-text body positionally,
// so every field label must appear whether or not a value exists.
const notProvided = "-"

// TicketDetails carries the model-extracted fields of a support ticket.
type TicketDetails struct {
	Customer                string
	CustomerName            string
	CustomerSegment         string
	TeamID                  string
	NotionLink              string
	ProjectID               string
	Priority                string
	ElevatedPriorityContext string
	Request                 string
	SlackThreadURL          string
	IssueCategory           string
	IssueTitle              string
}

// TicketResult reports where the ticket message landed.
type TicketResult struct {
	Success   bool   `json:"success"`
	ChannelID string `json:"channelId"`
	MessageTS string `json:"messageTs"`
}

// TicketPoster formats tickets and posts them to the configured ticket
// channel. Posting failures propagate: ticket creation failure must be
// visible to whoever requested it.
type TicketPoster struct {
	api       slackint.API
	channelID string
	store     storage.Store // optional audit log; nil disables recording
}

func NewTicketPoster(api slackint.API, channelID string, store storage.Store) *TicketPoster {
	return &TicketPoster{
		api:       api,
		channelID: channelID,
		store:     store,
	}
}

// Post publishes the ticket as a rich block layout plus a plain-text
// fallback, then records it in the audit log best-effort.
func (p *TicketPoster) Post(ctx context.Context, details TicketDetails) (TicketResult, error) {
	if p.channelID == "" {
		return TicketResult{}, ErrTicketChannelNotConfigured
	}

	plainText := BuildTicketText(details)
	blocks := BuildTicketBlocks(details)

	ts, err := p.api.PostMessage(ctx, p.channelID, "", plainText, blocks)
	if err != nil {
		metrics.TicketsPosted.WithLabelValues("error").Inc()
		return TicketResult{}, fmt.Errorf("failed to post ticket message: %w", err)
	}
	metrics.TicketsPosted.WithLabelValues("success").Inc()

	if p.store != nil {
		rec := &storage.TicketRecord{
			ChannelID:    p.channelID,
			MessageTS:    ts,
			CustomerName: details.CustomerName,
			TeamID:       details.TeamID,
			Priority:     priorityOrDefault(details.Priority),
			Category:     details.IssueCategory,
			RequestHash:  storage.HashRequest(details.Request),
		}
		if err := p.store.RecordTicket(ctx, rec); err != nil {
			// Audit trail is best-effort; the ticket is already posted.
			slog.Warn("Failed to record ticket in audit log", "error", err, "message_ts", ts)
			metrics.TicketRecordsStored.WithLabelValues("error").Inc()
		} else {
			metrics.TicketRecordsStored.WithLabelValues("success").Inc()
		}
	}

	return TicketResult{Success: true, ChannelID: p.channelID, MessageTS: ts}, nil
}

func priorityOrDefault(priority string) string {
	if priority == "" {
		return defaultPriority
	}
	return priority
}

func orPlaceholder(value string) string {
	if value == "" {
		return notProvided
	}
	return value
}

// BuildTicketText builds the plain-text form of the ticket. The
// downstream consumer collapses all whitespace before pattern-matching,
// so field boundaries use delimiters that survive collapsing: backticks
// around the customer name, brackets around the team id, and a fixed
// "Label: value •" segment per field. Optional fields always emit their
// label with a placeholder so the field order never shifts.
func BuildTicketText(details TicketDetails) string {
	var b strings.Builder

	b.WriteString("**Request Form** submission • ")
	fmt.Fprintf(&b, "Title: %s • ", orPlaceholder(details.IssueTitle))
	fmt.Fprintf(&b, "Customer: `%s` • ", details.CustomerName)
	fmt.Fprintf(&b, "Segment: %s • ", orPlaceholder(details.CustomerSegment))
	fmt.Fprintf(&b, "Priority: %s • ", priorityOrDefault(details.Priority))
	fmt.Fprintf(&b, "Elevated Context: %s • ", orPlaceholder(details.ElevatedPriorityContext))
	fmt.Fprintf(&b, "Notion: %s • ", orPlaceholder(details.NotionLink))
	fmt.Fprintf(&b, "Project: %s • ", orPlaceholder(details.ProjectID))
	fmt.Fprintf(&b, "[Team: %s] • ", details.TeamID)

	if details.TeamID != "" && details.TeamID != "team_unknown" {
		fmt.Fprintf(&b, "URL: https://admin.vercel.com/team/%s • ", details.TeamID)
	}

	fmt.Fprintf(&b, "\n\n**Request:** %s", details.Request)

	if details.IssueCategory != "" {
		fmt.Fprintf(&b, "\n\n_AI Classification: %s_", details.IssueCategory)
	}

	return b.String()
}

// BuildTicketBlocks builds the rich Block Kit layout of the ticket.
func BuildTicketBlocks(details TicketDetails) []slackapi.Block {
	mrkdwn := func(text string) *slackapi.TextBlockObject {
		return slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false)
	}

	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(slackapi.NewTextBlockObject(slackapi.PlainTextType, "🎫 DS Support Ticket Ready for Linear", true, false)),
		slackapi.NewSectionBlock(mrkdwn("_✅ Pre-debugging steps have been considered by the AI agent_\n\nUse Linear's Slack bot to create a ticket with the following details:"), nil, nil),
		slackapi.NewDividerBlock(),
	}

	if details.IssueTitle != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(mrkdwn(fmt.Sprintf("*Title:*\n%s", details.IssueTitle)), nil, nil))
	}

	customerFields := []*slackapi.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Customer:*\n%s", details.Customer)),
		mrkdwn(fmt.Sprintf("*Customer Name:*\n%s", details.CustomerName)),
	}
	if details.CustomerSegment != "" {
		customerFields = append(customerFields, mrkdwn(fmt.Sprintf("*Customer Segment:*\n%s", details.CustomerSegment)))
	}
	blocks = append(blocks, slackapi.NewSectionBlock(nil, customerFields, nil))

	projectField := mrkdwn("*Project ID:*\n_Not provided_")
	if details.ProjectID != "" {
		projectField = mrkdwn(fmt.Sprintf("*Project ID:*\n`%s`", details.ProjectID))
	}
	blocks = append(blocks, slackapi.NewSectionBlock(nil, []*slackapi.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Team ID:*\n`%s`", details.TeamID)),
		projectField,
	}, nil))

	if details.NotionLink != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(mrkdwn(fmt.Sprintf("*Notion Link:*\n%s", details.NotionLink)), nil, nil))
	}

	blocks = append(blocks,
		slackapi.NewDividerBlock(),
		slackapi.NewSectionBlock(nil, []*slackapi.TextBlockObject{
			mrkdwn(fmt.Sprintf("*Priority:*\n%s", priorityOrDefault(details.Priority))),
		}, nil),
	)

	if details.ElevatedPriorityContext != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(mrkdwn(fmt.Sprintf("*Context on Elevated Priority:*\n%s", details.ElevatedPriorityContext)), nil, nil))
	}

	blocks = append(blocks,
		slackapi.NewDividerBlock(),
		slackapi.NewSectionBlock(mrkdwn(fmt.Sprintf("*Request:*\n%s", details.Request)), nil, nil),
	)

	if details.SlackThreadURL != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(mrkdwn(fmt.Sprintf("*Slack Thread:*\n<%s|View original conversation>", details.SlackThreadURL)), nil, nil))
	}

	if details.IssueCategory != "" {
		blocks = append(blocks, slackapi.NewContextBlock("", mrkdwn(fmt.Sprintf("_AI Classification: %s_", details.IssueCategory))))
	}

	return blocks
}
