package notify

import (
	"context"
	"errors"
	"testing"
)

func TestOutbound_PostsWhenRecipientEnabled(t *testing.T) {
	gdb := openTestDB(t)

	mock := &MockAdapter{ChannelName: ChannelSlack}
	out := NewOutbound(nil, mock)

	// Slack is opt-in by default (no pref rows = enabled).
	ev := baseEvent("u1")
	out.Announce(context.Background(), gdb, ev, "task created: refactor the gate")

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if posts[0] != "task created: refactor the gate" {
		t.Errorf("post = %q", posts[0])
	}
}

func TestOutbound_SkipsWhenAllRecipientsOptedOut(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := UpsertPref(gdb, "u1", nil, nil, ChannelSlack, false); err != nil {
		t.Fatalf("UpsertPref: %v", err)
	}

	mock := &MockAdapter{ChannelName: ChannelSlack}
	out := NewOutbound(nil, mock)
	out.Announce(context.Background(), gdb, baseEvent("u1"), "should not post")

	if len(mock.Posts()) != 0 {
		t.Errorf("posts = %d, want 0", len(mock.Posts()))
	}
}

func TestOutbound_ActorOnlyEventDoesNotPost(t *testing.T) {
	gdb := openTestDB(t)

	mock := &MockAdapter{}
	out := NewOutbound(nil, mock)
	out.Announce(context.Background(), gdb, baseEvent("actor"), "self notification")

	if len(mock.Posts()) != 0 {
		t.Errorf("posts = %d, want 0 (actor is the only recipient)", len(mock.Posts()))
	}
}

func TestOutbound_PostErrorDoesNotPanic(t *testing.T) {
	gdb := openTestDB(t)

	mock := &MockAdapter{PostErr: errors.New("rate limited")}
	out := NewOutbound(nil, mock)
	out.Announce(context.Background(), gdb, baseEvent("u1"), "text")
	// Post failure is logged, never propagated.
}

func TestOutbound_NilSafe(t *testing.T) {
	var out *Outbound
	out.Announce(context.Background(), nil, Event{}, "x")
	out.Close()
}
