package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gorm.io/gorm"
)

// Adapter posts notification summaries to an external chat channel.
type Adapter interface {
	// Name returns the preference channel this adapter serves
	// ("slack" or "discord").
	Name() string
	// Post sends one message to the adapter's configured channel.
	Post(ctx context.Context, text string) error
	// Close releases the adapter's connection, if any.
	Close() error
}

// Outbound fans event summaries out to external channels. Channels are
// shared (one Slack/Discord channel per deployment), so an event posts at
// most once per adapter, and only when at least one recipient has that
// channel enabled for the event's type.
type Outbound struct {
	adapters []Adapter
	out      io.Writer
}

// NewOutbound creates an Outbound over the given adapters. A nil or empty
// adapter list is valid and makes Announce a no-op.
func NewOutbound(out io.Writer, adapters ...Adapter) *Outbound {
	return &Outbound{adapters: adapters, out: out}
}

// Announce posts the event summary to each adapter whose channel is enabled
// for at least one recipient. Called after the triggering transaction has
// committed; a failed post is reported but never fails the caller.
func (o *Outbound) Announce(ctx context.Context, gdb *gorm.DB, ev Event, summary string) {
	if o == nil || len(o.adapters) == 0 || summary == "" {
		return
	}
	for _, a := range o.adapters {
		if !o.anyRecipientEnabled(gdb, ev, a.Name()) {
			continue
		}
		if err := a.Post(ctx, summary); err != nil && o.out != nil {
			fmt.Fprintf(o.out, "notify: %s post failed: %v\n", a.Name(), err)
		}
	}
}

func (o *Outbound) anyRecipientEnabled(gdb *gorm.DB, ev Event, channel string) bool {
	for _, uid := range ev.Recipients {
		if uid == ev.ActorID {
			continue
		}
		allowed, err := Allowed(gdb, uid, ev.WorkspaceID, ev.Type, channel)
		if err != nil {
			continue
		}
		if allowed {
			return true
		}
	}
	return false
}

// Close closes all adapters.
func (o *Outbound) Close() {
	if o == nil {
		return
	}
	for _, a := range o.adapters {
		a.Close()
	}
}

// MockAdapter records posts for tests.
type MockAdapter struct {
	ChannelName string
	PostErr     error

	mu    sync.Mutex
	posts []string
}

// Name implements Adapter.
func (m *MockAdapter) Name() string {
	if m.ChannelName == "" {
		return ChannelSlack
	}
	return m.ChannelName
}

// Post implements Adapter, recording the message.
func (m *MockAdapter) Post(ctx context.Context, text string) error {
	if m.PostErr != nil {
		return m.PostErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, text)
	return nil
}

// Close implements Adapter.
func (m *MockAdapter) Close() error { return nil }

// Posts returns a copy of the recorded messages.
func (m *MockAdapter) Posts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posts...)
}
