// Package discord implements the notify Adapter for Discord via the REST API.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/groveapp/grove/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Adapter posts notification summaries to one Discord channel.
type Adapter struct {
	session   session
	channelID string
}

// Opts holds parameters for creating a Discord Adapter.
type Opts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of a real one.
	Session session
}

// New creates a Discord Adapter.
func New(opts Opts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel ID is required")
	}
	sess := opts.Session
	if sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	return &Adapter{session: sess, channelID: opts.ChannelID}, nil
}

// Name implements notify.Adapter.
func (a *Adapter) Name() string { return notify.ChannelDiscord }

// Post implements notify.Adapter. Message sends go over REST, so no gateway
// connection is opened.
func (a *Adapter) Post(ctx context.Context, text string) error {
	_, err := a.session.ChannelMessageSend(a.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: post to %s: %w", a.channelID, err)
	}
	return nil
}

// Close implements notify.Adapter.
func (a *Adapter) Close() error {
	return a.session.Close()
}
