package services

import (
	"context"
	"errors"
	"sync"

	"dshelp/internal/storage"

	"github.com/sashabaranov/go-openai"
	slackapi "github.com/slack-go/slack"
)

// fakeChatCompleter replays canned responses in order and records every
// request it receives.
type fakeChatCompleter struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	err       error
	requests  []openai.ChatCompletionRequest
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(f.responses) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("fake: no responses left")
	}

	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeChatCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func toolCallResponse(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{
						ID:       id,
						Type:     openai.ToolTypeFunction,
						Function: openai.FunctionCall{Name: name, Arguments: args},
					},
				},
			}},
		},
	}
}

// fakeSlackAPI records calls and serves canned data. Thread fetches can
// be made to block on a channel to exercise timeout paths.
type fakeSlackAPI struct {
	mu sync.Mutex

	selfID     string
	history    []slackapi.Message
	historyErr error

	replies    map[string][]slackapi.Message
	repliesErr error
	blockUntil chan struct{} // when set, GetThreadReplies waits on it

	postedChannels []string
	postedTexts    []string
	postedBlocks   [][]slackapi.Block
	postErr        error

	ephemeralTexts []string
	threadFetches  int
}

func (f *fakeSlackAPI) SelfID() string { return f.selfID }

func (f *fakeSlackAPI) GetChannelHistory(ctx context.Context, channelID string, limit int) ([]slackapi.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeSlackAPI) GetThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slackapi.Message, error) {
	f.mu.Lock()
	f.threadFetches++
	block := f.blockUntil
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.repliesErr != nil {
		return nil, f.repliesErr
	}
	return f.replies[threadTS], nil
}

func (f *fakeSlackAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadFetches
}

func (f *fakeSlackAPI) PostMessage(ctx context.Context, channelID, threadTS, text string, blocks []slackapi.Block) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.postErr != nil {
		return "", f.postErr
	}
	f.postedChannels = append(f.postedChannels, channelID)
	f.postedTexts = append(f.postedTexts, text)
	f.postedBlocks = append(f.postedBlocks, blocks)
	return "1700000100.000100", nil
}

func (f *fakeSlackAPI) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemeralTexts = append(f.ephemeralTexts, text)
	return nil
}

func (f *fakeSlackAPI) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	return nil
}

func (f *fakeSlackAPI) DeleteMessage(ctx context.Context, channelID, ts string) error {
	return nil
}

// fakeStore records tickets in memory.
type fakeStore struct {
	mu      sync.Mutex
	records []storage.TicketRecord
	err     error
}

func (f *fakeStore) RecordTicket(ctx context.Context, rec *storage.TicketRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) RecentTickets(ctx context.Context, limit int) ([]storage.TicketRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

func (f *fakeStore) Close() error { return nil }
