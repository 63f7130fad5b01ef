package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"dshelp/internal/services"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

// fakeSlackAPI records outbound Slack calls. Ephemeral posts are pushed
// onto a channel so tests can wait for the async pipeline.
type fakeSlackAPI struct {
	mu        sync.Mutex
	selfID    string
	history   []slackapi.Message
	replies   map[string][]slackapi.Message
	posted    []string
	ephemeral chan string
}

func newFakeSlackAPI() *fakeSlackAPI {
	return &fakeSlackAPI{
		selfID:    "BOT1",
		replies:   map[string][]slackapi.Message{},
		ephemeral: make(chan string, 16),
	}
}

func (f *fakeSlackAPI) SelfID() string { return f.selfID }

func (f *fakeSlackAPI) GetChannelHistory(ctx context.Context, channelID string, limit int) ([]slackapi.Message, error) {
	return f.history, nil
}

func (f *fakeSlackAPI) GetThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slackapi.Message, error) {
	return f.replies[threadTS], nil
}

func (f *fakeSlackAPI) PostMessage(ctx context.Context, channelID, threadTS, text string, blocks []slackapi.Block) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, text)
	return "1700000100.000100", nil
}

func (f *fakeSlackAPI) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	f.ephemeral <- text
	return nil
}

func (f *fakeSlackAPI) UpdateMessage(ctx context.Context, channelID, ts, text string) error { return nil }
func (f *fakeSlackAPI) DeleteMessage(ctx context.Context, channelID, ts string) error       { return nil }

func (f *fakeSlackAPI) waitEphemeral(t *testing.T) string {
	t.Helper()
	select {
	case text := <-f.ephemeral:
		return text
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for an ephemeral message")
		return ""
	}
}

// fakeChatCompleter replays canned responses in order.
type fakeChatCompleter struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	err       error
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func newTestHandler(api *fakeSlackAPI, client *fakeChatCompleter) *SlackEventsHandler {
	scorer := services.NewRelevanceScorer(client, 0.6, 10)
	return NewSlackEventsHandler(
		api,
		testSigningSecret,
		services.NewScopeClassifier(client),
		services.NewThreadDiscovery(api, scorer, 10, time.Second),
		services.NewResponseGenerator(client, services.NewTicketPoster(api, "C_TICKETS", nil), nil, services.NewOpenMeteoClient()),
	)
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewBufferString(body))
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)

	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	handler := newTestHandler(newFakeSlackAPI(), &fakeChatCompleter{})

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(`{}`))
	req.Header.Set("X-Slack-Request-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandleEventRejectsStaleTimestamp(t *testing.T) {
	handler := newTestHandler(newFakeSlackAPI(), &fakeChatCompleter{})

	body := `{"type":"url_verification","challenge":"x"}`
	timestamp := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())

	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for stale timestamp, got %d", rec.Code)
	}
}

func TestHandleEventURLVerification(t *testing.T) {
	handler := newTestHandler(newFakeSlackAPI(), &fakeChatCompleter{})

	body := `{"type":"url_verification","token":"tok","challenge":"challenge-token-123"}`
	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "challenge-token-123" {
		t.Errorf("expected challenge echoed back, got %q", rec.Body.String())
	}
}

func TestHandleEventOutOfScopeMentionRoutes(t *testing.T) {
	api := newFakeSlackAPI()
	client := &fakeChatCompleter{
		responses: []openai.ChatCompletionResponse{textResponse(
			`{"isInScope":false,"category":"billing-pricing-commercial","reasoning":"invoice question","suggestedTeam":"Sales Engineering / FinOps"}`)},
	}
	handler := newTestHandler(api, client)

	body := `{"type":"event_callback","event":{"type":"app_mention","user":"U123","text":"<@BOT1> why was I double charged?","ts":"1700000000.000100","channel":"C123"}}`
	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// First ephemeral is the analyzing status, second is the routing
	// guidance.
	first := api.waitEphemeral(t)
	if !strings.Contains(first, "analyzing your request") {
		t.Errorf("unexpected first status: %q", first)
	}
	second := api.waitEphemeral(t)
	if !strings.Contains(second, "Developer Success AI assistant") {
		t.Errorf("routing response missing intro: %q", second)
	}
	if !strings.Contains(second, "Sales Engineering / FinOps") {
		t.Errorf("routing response does not route anywhere: %q", second)
	}
}

func TestHandleEventClassifierFailureWarnsUser(t *testing.T) {
	api := newFakeSlackAPI()
	client := &fakeChatCompleter{err: errors.New("api down")}
	handler := newTestHandler(api, client)

	body := `{"type":"event_callback","event":{"type":"app_mention","user":"U123","text":"<@BOT1> help","ts":"1700000000.000100","channel":"C123"}}`
	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	api.waitEphemeral(t) // analyzing status
	warning := api.waitEphemeral(t)
	if !strings.Contains(warning, "An error occurred while processing your request") {
		t.Errorf("expected the fixed error warning, got %q", warning)
	}
}

func TestWantsThreadMessage(t *testing.T) {
	handler := newTestHandler(newFakeSlackAPI(), &fakeChatCompleter{})

	tests := []struct {
		name string
		ev   slackMessageEvent
		want bool
	}{
		{"plain thread reply", slackMessageEvent{ThreadTS: "1.0", User: "U123"}, true},
		{"top-level message", slackMessageEvent{User: "U123"}, false},
		{"bot message", slackMessageEvent{ThreadTS: "1.0", User: "U123", BotID: "B999"}, false},
		{"own message", slackMessageEvent{ThreadTS: "1.0", User: "BOT1"}, false},
		{"edited message", slackMessageEvent{ThreadTS: "1.0", User: "U123", SubType: "message_changed"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handler.wantsThreadMessage(tt.ev.toEvent())
			if got != tt.want {
				t.Errorf("wantsThreadMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

// slackMessageEvent keeps the filter table readable.
type slackMessageEvent struct {
	ThreadTS string
	User     string
	BotID    string
	SubType  string
}

func (e slackMessageEvent) toEvent() *slackevents.MessageEvent {
	return &slackevents.MessageEvent{
		ThreadTimeStamp: e.ThreadTS,
		User:            e.User,
		BotID:           e.BotID,
		SubType:         e.SubType,
	}
}
