package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/metrics"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Models used by the pipeline. Classification and relevance scoring use
// the same structured-output model as generation.
const (
	classifierModel = openai.GPT4o
	generatorModel  = openai.GPT4o
)

// ChatCompleter is the slice of the OpenAI client the services depend
// on. *openai.Client satisfies it; tests substitute fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// toChatMessages converts conversation turns to OpenAI chat messages,
// prepending the system prompt.
func toChatMessages(system string, turns []slackint.ConversationTurn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})

	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == slackint.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	return msgs
}

// generateObject performs a structured-output chat completion and
// unmarshals the result into out.
func generateObject(ctx context.Context, client ChatCompleter, purpose, system string, turns []slackint.ConversationTurn, schemaName string, schema *jsonschema.Definition, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    classifierModel,
		Messages: toChatMessages(system, turns),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: schema,
				Strict: true,
			},
		},
	})
	metrics.OpenAIAPICallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OpenAIAPICalls.WithLabelValues(purpose, "error").Inc()
		return fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	metrics.OpenAIAPICalls.WithLabelValues(purpose, "success").Inc()

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no completion choices returned")
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("failed to decode structured output: %w", err)
	}

	return nil
}
