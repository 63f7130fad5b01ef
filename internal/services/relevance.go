package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	slackint "dshelp/internal/integrations/slack"

	"github.com/sashabaranov/go-openai/jsonschema"
	slackapi "github.com/slack-go/slack"
)

// RelevanceCandidate is one channel message the model judged relevant to
// the current request. Transient: produced per batch, never persisted.
type RelevanceCandidate struct {
	MessageID string  `json:"messageId"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

// RelevanceScorer asks a classification model which recent channel
// messages matter for the current request. Degrades to empty on any
// model failure: context discovery is enrichment, never a hard
// dependency.
type RelevanceScorer struct {
	client     ChatCompleter
	threshold  float64
	maxResults int
}

func NewRelevanceScorer(client ChatCompleter, threshold float64, maxResults int) *RelevanceScorer {
	return &RelevanceScorer{
		client:     client,
		threshold:  threshold,
		maxResults: maxResults,
	}
}

var relevanceSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"matches": {
			Type:        jsonschema.Array,
			Description: "Messages relevant to the request, ordered by descending relevance",
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"messageId": {
						Type:        jsonschema.String,
						Description: "The ts identifier of the message, exactly as given in the input",
					},
					"reason": {
						Type:        jsonschema.String,
						Description: "Why this message is relevant",
					},
					"score": {
						Type:        jsonschema.Number,
						Description: "Relevance score between 0 and 1",
					},
				},
				Required:             []string{"messageId", "reason", "score"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"matches"},
	AdditionalProperties: false,
}

const relevanceSystemPrompt = `You score how relevant historical Slack channel messages are to a new support request.

A message is relevant when it:
- contains a customer team ID (format: team_ followed by 24 or more alphanumeric characters) or project ID (format: prj_ followed by 24 or more alphanumeric characters)
- names a company or customer that the request appears to be about
- discusses the same topic, symptom, or feature as the request

Score each candidate between 0 and 1. Return only messages scoring at or above the threshold, at most the requested number, ordered by descending relevance. Only ever use messageId values that appear in the candidate list.`

// Score returns the relevant subset of candidates, scored and capped.
// Self-authored and empty messages are filtered before the model sees
// them; ids the model invents are dropped on the way back.
func (s *RelevanceScorer) Score(ctx context.Context, userPrompt string, candidates []slackapi.Message, selfID string) []RelevanceCandidate {
	valid := make(map[string]bool, len(candidates))
	var listing strings.Builder

	for _, msg := range candidates {
		if msg.Text == "" {
			continue
		}
		if msg.User == selfID || msg.BotID == selfID {
			continue
		}
		valid[msg.Timestamp] = true
		fmt.Fprintf(&listing, "id=%s replies=%d text=%s\n", msg.Timestamp, msg.ReplyCount, msg.Text)
	}

	// Nothing to score: skip the model call entirely
	if len(valid) == 0 {
		return nil
	}

	prompt := fmt.Sprintf("Request:\n%s\n\nThreshold: %.2f\nMax results: %d\n\nCandidate messages:\n%s",
		userPrompt, s.threshold, s.maxResults, listing.String())

	var scored struct {
		Matches []RelevanceCandidate `json:"matches"`
	}
	err := generateObject(ctx, s.client, "relevance", relevanceSystemPrompt,
		[]slackint.ConversationTurn{{Role: slackint.RoleUser, Content: prompt}},
		"relevance_scores", relevanceSchema, &scored)
	if err != nil {
		slog.Warn("Relevance scoring failed, continuing without channel context", "error", err)
		return nil
	}

	// Defensive join: the model's ids are suggestions, not trusted keys.
	var result []RelevanceCandidate
	for _, m := range scored.Matches {
		if !valid[m.MessageID] {
			slog.Warn("Dropping relevance match with unknown message id", "message_id", m.MessageID)
			continue
		}
		if m.Score < s.threshold {
			continue
		}
		result = append(result, m)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})

	if len(result) > s.maxResults {
		result = result[:s.maxResults]
	}

	return result
}
