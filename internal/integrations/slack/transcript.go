package slack

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// minDigestLength filters out single-word acknowledgements ("ok",
// "thanks", reactions) that add no retrievable signal to the digest.
const minDigestLength = 10

var (
	labeledLinkRe = regexp.MustCompile(`<(https?://[^|>]+)\|[^>]+>`)
	bareLinkRe    = regexp.MustCompile(`<(https?://[^>]+)>`)
	userMentionRe = regexp.MustCompile(`<@(U[A-Z0-9]+)>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// BuildThreadMessages turns raw thread messages into role-tagged
// conversation turns. Bot-authored messages become assistant turns; a
// leading self-mention is stripped from user turns; empty messages are
// dropped. An empty input thread is a hard error.
func BuildThreadMessages(msgs []slack.Message, selfID string) ([]ConversationTurn, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	mention := "<@" + selfID + ">"

	var turns []ConversationTurn
	for _, msg := range msgs {
		if msg.Text == "" {
			continue
		}

		isBot := msg.BotID != "" || msg.SubType == "bot_message"

		content := msg.Text
		if !isBot && strings.Contains(content, mention) {
			content = strings.Replace(content, mention+" ", "", 1)
		}

		role := RoleUser
		if isBot {
			role = RoleAssistant
		}

		turns = append(turns, ConversationTurn{Role: role, Content: content})
	}

	return turns, nil
}

// BuildHistoryDigest flattens raw channel history (newest first, as the
// API returns it) into a denoised chronological text blob for model
// context. The digest is read-only context: nothing in the system parses
// it back into structured data.
func BuildHistoryDigest(msgs []slack.Message, selfID string) string {
	selfMentionRe := regexp.MustCompile(`<@` + regexp.QuoteMeta(selfID) + `>\s*`)

	var lines []string
	// Walk backwards so the digest reads oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Text == "" {
			continue
		}

		// Drop this bot's own messages; keep other bots.
		if msg.BotID == selfID || msg.User == selfID {
			continue
		}

		trimmed := strings.TrimSpace(msg.Text)
		if len(trimmed) < minDigestLength {
			continue
		}

		content := selfMentionRe.ReplaceAllString(trimmed, "")

		// Simplify links: <http://example.com|example.com> -> http://example.com
		content = labeledLinkRe.ReplaceAllString(content, "$1")
		content = bareLinkRe.ReplaceAllString(content, "$1")

		// Keep user IDs readable without Slack's mention markup
		content = userMentionRe.ReplaceAllString(content, "@$1")

		content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
		if content == "" {
			continue
		}

		lines = append(lines, fmt.Sprintf("[%s] %s", ShortTimestamp(msg.Timestamp), content))
	}

	return strings.Join(lines, "\n")
}

// ShortTimestamp shortens a Slack ts ("1234567890.123456") to a
// minute-granularity UTC stamp.
func ShortTimestamp(ts string) string {
	if ts == "" {
		return ""
	}

	secs := ts
	if dot := strings.Index(secs, "."); dot != -1 {
		secs = secs[:dot]
	}

	unix, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return ""
	}

	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
