package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"

	slackapi "github.com/slack-go/slack"
)

// historyWindow bounds how much channel history is considered for
// context discovery.
const historyWindow = 100

// threadReplyLimit bounds how many replies are fetched per thread.
const threadReplyLimit = 50

// ThreadContext is one relevant thread, formatted for model context.
type ThreadContext struct {
	RootMessageID   string
	RootMessageText string
	Replies         []string
	RelevanceReason string
}

// DiscoveryResult aggregates the threads worth showing the model plus a
// human-readable summary of what was found.
type DiscoveryResult struct {
	Threads []ThreadContext
	Summary string
}

// ThreadDiscovery finds recent channel threads relevant to a request:
// it scores channel history, then fetches the threads of the top-scored
// messages concurrently, racing them against one soft timeout. Partial
// results are expected and acceptable; discovery never returns an error.
type ThreadDiscovery struct {
	api          slackint.API
	scorer       *RelevanceScorer
	maxThreads   int
	fetchTimeout time.Duration
}

func NewThreadDiscovery(api slackint.API, scorer *RelevanceScorer, maxThreads int, fetchTimeout time.Duration) *ThreadDiscovery {
	return &ThreadDiscovery{
		api:          api,
		scorer:       scorer,
		maxThreads:   maxThreads,
		fetchTimeout: fetchTimeout,
	}
}

// Discover fetches and scores recent channel history, then pulls in the
// threads of relevant messages that actually have replies.
func (d *ThreadDiscovery) Discover(ctx context.Context, channelID, userPrompt string) DiscoveryResult {
	selfID := d.api.SelfID()

	history, err := d.api.GetChannelHistory(ctx, channelID, historyWindow)
	if err != nil {
		slog.Warn("Channel history fetch failed during context discovery", "error", err, "channel", channelID)
		return DiscoveryResult{Summary: "Context discovery unavailable: could not fetch channel history."}
	}

	candidates := d.scorer.Score(ctx, userPrompt, history, selfID)
	if len(candidates) == 0 {
		return DiscoveryResult{Summary: "No relevant messages found in recent channel history."}
	}

	byID := make(map[string]slackapi.Message, len(history))
	for _, msg := range history {
		byID[msg.Timestamp] = msg
	}

	// Threads only exist for messages with replies; fetching a zero-reply
	// message's thread always returns nothing useful.
	var threaded []RelevanceCandidate
	for _, c := range candidates {
		if byID[c.MessageID].ReplyCount == 0 {
			continue
		}
		threaded = append(threaded, c)
		if len(threaded) == d.maxThreads {
			break
		}
	}

	if len(threaded) == 0 {
		return DiscoveryResult{Summary: "No relevant threaded discussions found in recent channel history."}
	}

	threads := d.fetchThreads(ctx, channelID, selfID, threaded, byID)
	if len(threads) == 0 {
		return DiscoveryResult{Summary: "No relevant threads could be fetched in time."}
	}

	return DiscoveryResult{
		Threads: threads,
		Summary: fmt.Sprintf("Found %d relevant thread(s) in recent channel history.", len(threads)),
	}
}

type fetchedThread struct {
	index  int
	thread ThreadContext
	ok     bool
}

// fetchThreads pulls every candidate's thread concurrently and waits at
// most fetchTimeout for the batch. The timeout is soft: it stops the
// wait, it does not abort in-flight fetches.
func (d *ThreadDiscovery) fetchThreads(ctx context.Context, channelID, selfID string, candidates []RelevanceCandidate, byID map[string]slackapi.Message) []ThreadContext {
	results := make(chan fetchedThread, len(candidates))

	for i, c := range candidates {
		go func(index int, cand RelevanceCandidate) {
			replies, err := d.api.GetThreadReplies(ctx, channelID, cand.MessageID, threadReplyLimit)
			if err != nil {
				slog.Warn("Thread fetch failed", "error", err, "thread_ts", cand.MessageID)
				metrics.ThreadFetches.WithLabelValues("error").Inc()
				results <- fetchedThread{index: index}
				return
			}
			metrics.ThreadFetches.WithLabelValues("success").Inc()

			thread := formatThread(replies, cand, byID[cand.MessageID], selfID)
			results <- fetchedThread{index: index, thread: thread, ok: len(thread.Replies) > 0}
		}(i, c)
	}

	timer := time.NewTimer(d.fetchTimeout)
	defer timer.Stop()

	collected := make([]*ThreadContext, len(candidates))
	received := 0
collect:
	for received < len(candidates) {
		select {
		case r := <-results:
			received++
			if r.ok {
				t := r.thread
				collected[r.index] = &t
			}
		case <-timer.C:
			metrics.ThreadFetches.WithLabelValues("timeout").Add(float64(len(candidates) - received))
			slog.Warn("Thread fetch deadline reached with partial results",
				"received", received, "expected", len(candidates))
			break collect
		}
	}

	// Preserve candidate rank order for deterministic output
	var threads []ThreadContext
	for _, t := range collected {
		if t != nil {
			threads = append(threads, *t)
		}
	}

	return threads
}

// formatThread renders a fetched thread: the root message is dropped
// (the candidate text already carries it) and each reply is tagged with
// a coarse author role and a truncated timestamp.
func formatThread(replies []slackapi.Message, cand RelevanceCandidate, root slackapi.Message, selfID string) ThreadContext {
	var lines []string
	for _, msg := range replies {
		if msg.Timestamp == cand.MessageID {
			continue
		}
		if msg.Text == "" {
			continue
		}

		role := "user"
		if msg.BotID != "" || msg.SubType == "bot_message" || msg.User == selfID {
			role = "bot"
		}

		lines = append(lines, fmt.Sprintf("[%s] %s: %s", slackint.ShortTimestamp(msg.Timestamp), role, msg.Text))
	}

	return ThreadContext{
		RootMessageID:   cand.MessageID,
		RootMessageText: root.Text,
		Replies:         lines,
		RelevanceReason: cand.Reason,
	}
}

// ContextBlock renders the discovery result as a prompt-context string.
func (r DiscoveryResult) ContextBlock() string {
	if len(r.Threads) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant prior threads from this channel:\n")
	for _, t := range r.Threads {
		fmt.Fprintf(&b, "\nThread (relevance: %s)\nRoot: %s\n", t.RelevanceReason, t.RootMessageText)
		for _, reply := range t.Replies {
			b.WriteString(reply)
			b.WriteString("\n")
		}
	}

	return b.String()
}
