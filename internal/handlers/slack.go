package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"
	"dshelp/internal/policy"
	"dshelp/internal/services"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// processTimeout bounds one full mention pipeline: context discovery,
// classification, and generation with tool calls.
const processTimeout = 3 * time.Minute

const analysisErrorWarning = "⚠️ An error occurred while processing your request. Please check the logs or try again."

// SlackEventsHandler terminates the Slack Events API webhook: it
// verifies request signatures, answers URL verification challenges, and
// dispatches callback events to the pipeline in the background so Slack
// gets its 200 within the 3-second delivery window.
type SlackEventsHandler struct {
	api           slackint.API
	signingSecret string
	classifier    *services.ScopeClassifier
	discovery     *services.ThreadDiscovery
	generator     *services.ResponseGenerator
}

func NewSlackEventsHandler(api slackint.API, signingSecret string, classifier *services.ScopeClassifier, discovery *services.ThreadDiscovery, generator *services.ResponseGenerator) *SlackEventsHandler {
	return &SlackEventsHandler{
		api:           api,
		signingSecret: signingSecret,
		classifier:    classifier,
		discovery:     discovery,
		generator:     generator,
	}
}

func (h *SlackEventsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		slog.Warn("Rejected Slack event with bad signature", "error", err)
		metrics.SlackEventsReceived.WithLabelValues("unknown", "bad_signature").Inc()
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.Error("Failed to parse Slack event", "error", err)
		metrics.SlackEventsReceived.WithLabelValues("unknown", "parse_error").Inc()
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, challenge.Challenge)

	case slackevents.CallbackEvent:
		h.dispatchCallback(event.InnerEvent)
		w.WriteHeader(http.StatusOK)

	default:
		metrics.SlackEventsReceived.WithLabelValues(event.Type, "ignored").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

// verifySignature checks the v0 HMAC request signature. The verifier
// also rejects stale timestamps, which closes the replay window.
func (h *SlackEventsHandler) verifySignature(header http.Header, body []byte) error {
	verifier, err := slackapi.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("failed to build signature verifier: %w", err)
	}
	if _, err := verifier.Write(body); err != nil {
		return fmt.Errorf("failed to feed verifier: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}

	return nil
}

func (h *SlackEventsHandler) dispatchCallback(inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		metrics.SlackEventsReceived.WithLabelValues("app_mention", "accepted").Inc()
		// Slack redelivers on slow responses; process off the request path.
		go h.processAppMention(*ev)

	case *slackevents.MessageEvent:
		if !h.wantsThreadMessage(ev) {
			metrics.SlackEventsReceived.WithLabelValues("message", "ignored").Inc()
			return
		}
		metrics.SlackEventsReceived.WithLabelValues("message", "accepted").Inc()
		go h.processThreadMessage(*ev)

	default:
		metrics.SlackEventsReceived.WithLabelValues(inner.Type, "ignored").Inc()
	}
}

// wantsThreadMessage filters message events down to plain user replies
// inside threads. Everything else (bot echo, edits, joins, top-level
// messages) is noise.
func (h *SlackEventsHandler) wantsThreadMessage(ev *slackevents.MessageEvent) bool {
	if ev.ThreadTimeStamp == "" || ev.SubType != "" {
		return false
	}
	if ev.BotID != "" || ev.User == "" || ev.User == h.api.SelfID() {
		return false
	}
	return true
}

// processAppMention runs the full pipeline for one @mention. All agent
// output is ephemeral so customers in shared channels never see internal
// routing discussion; only ticket messages to the ticket channel are
// public.
func (h *SlackEventsHandler) processAppMention(ev slackevents.AppMentionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	metrics.SlackMentions.Inc()
	selfID := h.api.SelfID()

	if ev.User == "" || ev.User == selfID {
		return
	}

	status := func(text string) {
		if strings.TrimSpace(text) == "" {
			text = "⚠️ Error: Unable to generate response. Please try again."
		}
		if err := h.api.PostEphemeral(ctx, ev.Channel, ev.User, text); err != nil {
			slog.Warn("Failed to post ephemeral status", "error", err, "channel", ev.Channel)
		}
	}

	status("is analyzing your request...")

	turns, err := h.conversationTurns(ctx, ev, selfID)
	if err != nil {
		slog.Error("Failed to build conversation from mention", "error", err, "channel", ev.Channel)
		status(analysisErrorWarning)
		return
	}

	result := h.runPipeline(ctx, pipelineInput{
		channel:  ev.Channel,
		threadTS: threadTSOf(ev),
		turns:    turns,
		status:   status,
	})

	status(result)
}

// processThreadMessage handles a follow-up reply in a thread the bot is
// part of. Unlike mentions, the answer is posted publicly in the thread
// so the conversation stays readable.
func (h *SlackEventsHandler) processThreadMessage(ev slackevents.MessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	selfID := h.api.SelfID()

	replies, err := h.api.GetThreadReplies(ctx, ev.Channel, ev.ThreadTimeStamp, 50)
	if err != nil {
		slog.Error("Failed to fetch thread for follow-up", "error", err, "channel", ev.Channel)
		return
	}

	// Only answer threads the bot already participates in; otherwise
	// every reply in the channel would summon it.
	if !threadHasBot(replies, selfID) {
		return
	}

	turns, err := slackint.BuildThreadMessages(replies, selfID)
	if err != nil {
		slog.Error("Failed to build thread conversation", "error", err, "thread_ts", ev.ThreadTimeStamp)
		return
	}

	status := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if err := h.api.PostEphemeral(ctx, ev.Channel, ev.User, text); err != nil {
			slog.Warn("Failed to post ephemeral status", "error", err, "channel", ev.Channel)
		}
	}

	status("is analyzing your request...")

	result := h.runPipeline(ctx, pipelineInput{
		channel:  ev.Channel,
		threadTS: ev.ThreadTimeStamp,
		turns:    turns,
		status:   status,
	})

	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(slackapi.NewTextBlockObject(slackapi.MarkdownType, result, false, false), nil, nil),
	}
	if _, err := h.api.PostMessage(ctx, ev.Channel, ev.ThreadTimeStamp, result, blocks); err != nil {
		slog.Error("Failed to post thread reply", "error", err, "channel", ev.Channel)
	}
}

type pipelineInput struct {
	channel  string
	threadTS string
	turns    []slackint.ConversationTurn
	status   services.StatusFunc
}

// runPipeline classifies the request, then either routes it out of
// scope or generates a full answer with channel context. It always
// returns renderable text.
func (h *SlackEventsHandler) runPipeline(ctx context.Context, in pipelineInput) string {
	userPrompt := lastUserContent(in.turns)

	classification, err := h.classifier.Classify(ctx, in.turns)
	if err != nil {
		slog.Error("Classification failed", "error", err, "channel", in.channel)
		return analysisErrorWarning
	}

	slog.Info("Request classified",
		"category", classification.Category,
		"in_scope", classification.IsInScope,
		"channel", in.channel)

	if !classification.IsInScope {
		return policy.BuildRoutingMessage(classification.Category, classification.SuggestedTeam, classification.Reasoning)
	}

	in.status("is working on your request...")

	// Context enrichment degrades silently: a missing digest or empty
	// discovery result never blocks an answer.
	var digest string
	if history, err := h.api.GetChannelHistory(ctx, in.channel, 100); err != nil {
		slog.Warn("Channel history unavailable for context", "error", err, "channel", in.channel)
	} else {
		digest = slackint.BuildHistoryDigest(history, h.api.SelfID())
	}

	discovery := h.discovery.Discover(ctx, in.channel, userPrompt)
	slog.Info("Context discovery finished", "summary", discovery.Summary, "threads", len(discovery.Threads))

	threadURL := fmt.Sprintf("https://slack.com/app_redirect?channel=%s&thread_ts=%s", in.channel, in.threadTS)

	return h.generator.Respond(ctx, in.turns, services.RespondOptions{
		Status:          in.status,
		ThreadURL:       threadURL,
		HistoryDigest:   digest,
		EnrichedContext: discovery.ContextBlock(),
	})
}

// conversationTurns assembles the model conversation for a mention:
// the whole thread when the mention is threaded, otherwise just the
// mention text itself.
func (h *SlackEventsHandler) conversationTurns(ctx context.Context, ev slackevents.AppMentionEvent, selfID string) ([]slackint.ConversationTurn, error) {
	if ev.ThreadTimeStamp != "" {
		replies, err := h.api.GetThreadReplies(ctx, ev.Channel, ev.ThreadTimeStamp, 50)
		if err != nil {
			return nil, err
		}
		return slackint.BuildThreadMessages(replies, selfID)
	}

	content := strings.TrimSpace(strings.Replace(ev.Text, "<@"+selfID+">", "", 1))
	return []slackint.ConversationTurn{{Role: slackint.RoleUser, Content: content}}, nil
}

func threadTSOf(ev slackevents.AppMentionEvent) string {
	if ev.ThreadTimeStamp != "" {
		return ev.ThreadTimeStamp
	}
	return ev.TimeStamp
}

func threadHasBot(msgs []slackapi.Message, selfID string) bool {
	for _, msg := range msgs {
		if msg.User == selfID || msg.BotID == selfID {
			return true
		}
	}
	return false
}

func lastUserContent(turns []slackint.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == slackint.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
