package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the bot depends on. Services
// take this interface so tests can substitute fakes.
type API interface {
	SelfID() string
	GetChannelHistory(ctx context.Context, channelID string, limit int) ([]slack.Message, error)
	GetThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slack.Message, error)
	PostMessage(ctx context.Context, channelID, threadTS, text string, blocks []slack.Block) (string, error)
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
	DeleteMessage(ctx context.Context, channelID, ts string) error
}

// Client wraps the slack-go client. Constructed once at startup and
// shared across requests; the underlying client is safe for concurrent
// use.
type Client struct {
	api    *slack.Client
	selfID string
}

// NewClient builds a Client and resolves the bot's own user ID via
// auth.test. A failed auth.test is a configuration error.
func NewClient(ctx context.Context, botToken string) (*Client, error) {
	api := slack.New(botToken)

	authTest, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot identity: %w", err)
	}

	return &Client{
		api:    api,
		selfID: authTest.UserID,
	}, nil
}

func (c *Client) SelfID() string {
	return c.selfID
}

func (c *Client) GetChannelHistory(ctx context.Context, channelID string, limit int) ([]slack.Message, error) {
	history, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel history: %w", err)
	}

	return history.Messages, nil
}

func (c *Client) GetThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slack.Message, error) {
	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
		Inclusive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get thread replies: %w", err)
	}

	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string, blocks []slack.Block) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	_, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}

	return ts, nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post ephemeral message: %w", err)
	}

	return nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}

	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	_, _, err := c.api.DeleteMessageContext(ctx, channelID, ts)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}
