package services

import (
	"context"
	"fmt"
	"strconv"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"
	"dshelp/internal/policy"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ClassificationResult is the scope decision for one request. It drives
// the in-scope/out-of-scope branch and nothing else; it is not
// persisted.
type ClassificationResult struct {
	IsInScope     bool            `json:"isInScope"`
	Category      policy.Category `json:"category"`
	Reasoning     string          `json:"reasoning"`
	SuggestedTeam string          `json:"suggestedTeam"`
}

// ScopeClassifier decides whether a request falls inside the DS team's
// responsibilities. Failures propagate: guessing scope is unsafe because
// the result controls routing.
type ScopeClassifier struct {
	client ChatCompleter
}

func NewScopeClassifier(client ChatCompleter) *ScopeClassifier {
	return &ScopeClassifier{client: client}
}

func classificationSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"isInScope": {
				Type:        jsonschema.Boolean,
				Description: "True if the request is within DS team scope, false otherwise",
			},
			"category": {
				Type:        jsonschema.String,
				Enum:        policy.CategoryNames(),
				Description: "The category that best matches the request",
			},
			"reasoning": {
				Type:        jsonschema.String,
				Description: "Brief explanation of why this classification was chosen, referencing the specific guideline",
			},
			"suggestedTeam": {
				Type:        jsonschema.String,
				Description: "If out of scope, which team should handle this (e.g. 'Professional Services', 'Platform Architects', 'Sales Engineering / FinOps', 'Support team'). If in scope, return 'DS team'",
			},
		},
		Required:             []string{"isInScope", "category", "reasoning", "suggestedTeam"},
		AdditionalProperties: false,
	}
}

// Classify runs a single structured-output call over the conversation.
func (c *ScopeClassifier) Classify(ctx context.Context, turns []slackint.ConversationTurn) (ClassificationResult, error) {
	var result ClassificationResult
	err := generateObject(ctx, c.client, "classification", policy.ClassifierSystemPrompt(),
		turns, "scope_classification", classificationSchema(), &result)
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("failed to classify request: %w", err)
	}

	metrics.Classifications.WithLabelValues(string(result.Category), strconv.FormatBool(result.IsInScope)).Inc()

	return result, nil
}
