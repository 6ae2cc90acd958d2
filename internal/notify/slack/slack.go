// Package slack implements the notify Adapter for Slack via the Web API.
package slack

import (
	"context"
	"fmt"

	"github.com/groveapp/grove/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts notification summaries to one Slack channel.
type Adapter struct {
	client    slackClient
	channelID string
}

// Opts holds parameters for creating a Slack Adapter.
type Opts struct {
	BotToken  string // xoxb-... bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Adapter.
func New(opts Opts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel ID is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Adapter{client: client, channelID: opts.ChannelID}, nil
}

// Name implements notify.Adapter.
func (a *Adapter) Name() string { return notify.ChannelSlack }

// Post implements notify.Adapter.
func (a *Adapter) Post(ctx context.Context, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack: post to %s: %w", a.channelID, err)
	}
	return nil
}

// Close implements notify.Adapter. The Web API client holds no connection.
func (a *Adapter) Close() error { return nil }
