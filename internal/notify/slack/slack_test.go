package slack

import (
	"context"
	"errors"
	"testing"

	"github.com/groveapp/grove/internal/notify"
	slackapi "github.com/slack-go/slack"
)

type mockClient struct {
	channels []string
	err      error
}

func (m *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	m.channels = append(m.channels, channelID)
	return channelID, "123.456", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "C01"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := New(Opts{BotToken: "xoxb-1"}); err == nil {
		t.Error("expected error without channel")
	}
	if _, err := New(Opts{BotToken: "xoxb-1", ChannelID: "C01"}); err != nil {
		t.Errorf("New: %v", err)
	}
}

func TestName(t *testing.T) {
	a, err := New(Opts{Client: &mockClient{}, ChannelID: "C01"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Name() != notify.ChannelSlack {
		t.Errorf("Name = %q, want %q", a.Name(), notify.ChannelSlack)
	}
}

func TestPost(t *testing.T) {
	mock := &mockClient{}
	a, err := New(Opts{Client: mock, ChannelID: "C0123"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Post(context.Background(), "hello"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(mock.channels) != 1 || mock.channels[0] != "C0123" {
		t.Errorf("posted channels = %v", mock.channels)
	}
}

func TestPost_Error(t *testing.T) {
	mock := &mockClient{err: errors.New("channel_not_found")}
	a, _ := New(Opts{Client: mock, ChannelID: "C0123"})
	if err := a.Post(context.Background(), "hello"); err == nil {
		t.Error("expected wrapped post error")
	}
}
