package core

import (
	"context"
	"testing"
	"time"
)

const quiet = 150 * time.Millisecond

func TestHubJoinSendScenario(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := connect(t, hub, "c1", "alice")

	joined := joinChannel(t, alice, 1)
	if joined.Channel.Name != "general" || len(joined.Messages) != 0 {
		t.Fatalf("unexpected channel_joined: %+v", joined)
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "hi"}
	first := mustEvent(t, alice.Events, EventNewMessage)
	if first.Message.Username != "alice" || first.Message.Content != "hi" || first.Message.ChannelID != 1 {
		t.Fatalf("unexpected new_message: %+v", first)
	}
	if first.Message.Timestamp.IsZero() {
		t.Fatal("new_message without timestamp")
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "again"}
	second := mustEvent(t, alice.Events, EventNewMessage)
	if second.Message.ID <= first.Message.ID {
		t.Fatalf("message ids not increasing: %d then %d", first.Message.ID, second.Message.ID)
	}

	// Rejoining returns the persisted history, oldest first.
	history := joinChannel(t, alice, 1)
	if len(history.Messages) != 2 || history.Messages[0].Content != "hi" || history.Messages[1].Content != "again" {
		t.Fatalf("unexpected history: %+v", history.Messages)
	}
}

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	joinChannel(t, alice, 1)
	joinChannel(t, bob, 1)

	// Alice sees Bob join; Bob does not see his own join.
	joinEv := mustEvent(t, alice.Events, EventUserJoined)
	if joinEv.Username != "bob" || joinEv.Channel.ID != 1 {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}
	noEvent(t, bob.Events, EventUserJoined, quiet)

	alice.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "hi"}
	msgEv := mustEvent(t, bob.Events, EventNewMessage)
	if msgEv.Message.Content != "hi" || msgEv.Message.Username != "alice" {
		t.Fatalf("unexpected message event: %+v", msgEv)
	}
	// The sender is a member too.
	mustEvent(t, alice.Events, EventNewMessage)

	alice.Commands <- &Command{Kind: CommandLeaveChannel, ChannelID: 1}
	leftEv := mustEvent(t, bob.Events, EventUserLeft)
	if leftEv.Username != "alice" || leftEv.Channel.ID != 1 {
		t.Fatalf("unexpected leave event: %+v", leftEv)
	}

	// Leaving again is a no-op.
	alice.Commands <- &Command{Kind: CommandLeaveChannel, ChannelID: 1}
	noEvent(t, bob.Events, EventUserLeft, quiet)

	// Alice no longer receives channel traffic.
	bob.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "still here?"}
	mustEvent(t, bob.Events, EventNewMessage)
	noEvent(t, alice.Events, EventNewMessage, quiet)

	if got := hub.members.ChannelsOf("a"); len(got) != 0 {
		t.Fatalf("alice still a member of %v", got)
	}
}

func TestHubDoubleJoinResendsHistoryOnly(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	joinChannel(t, bob, 2)

	joinChannel(t, alice, 2)
	joinChannel(t, alice, 2)

	mustEvent(t, bob.Events, EventUserJoined)
	noEvent(t, bob.Events, EventUserJoined, quiet)
}

func TestHubAnonymousCommandsDropped(t *testing.T) {
	hub, st := newTestHub(t)

	anon := NewClient("anon", 0)
	hub.RegisterClient(anon)

	anon.Commands <- &Command{Kind: CommandJoinChannel, ChannelID: 1}
	anon.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "hello"}
	anon.Commands <- &Command{Kind: CommandCreateChannel, Name: "sneaky"}
	anon.Commands <- &Command{Kind: CommandJoinApp, Username: "   "}

	noEvent(t, anon.Events, EventChannelJoined, quiet)

	msgs, err := st.ListRecentMessages(context.Background(), 1, 50)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("anonymous message persisted: %v %v", msgs, err)
	}
	if _, err := st.GetChannelByName(context.Background(), "sneaky"); err == nil {
		t.Fatal("anonymous client created a channel")
	}
	if _, ok := hub.Sessions().Resolve("anon"); ok {
		t.Fatal("blank username was bound")
	}
}

func TestHubBlankMessageIgnored(t *testing.T) {
	hub, st := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	joinChannel(t, alice, 1)

	alice.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: " \t\n "}
	alice.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 99, Content: "lost"}
	noEvent(t, alice.Events, EventNewMessage, quiet)

	msgs, err := st.ListRecentMessages(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("blank message persisted: %+v", msgs)
	}
}

func TestHubJoinUnknownChannelIgnored(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- &Command{Kind: CommandJoinChannel, ChannelID: 404}
	noEvent(t, alice.Events, EventChannelJoined, quiet)

	if got := hub.members.ChannelsOf("a"); len(got) != 0 {
		t.Fatalf("joined unknown channel: %v", got)
	}
}

func TestHubDisconnectNotifiesJoinedChannels(t *testing.T) {
	hub, st := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	joinChannel(t, bob, 1)
	joinChannel(t, bob, 2)
	joinChannel(t, alice, 1)
	joinChannel(t, alice, 2)

	hub.UnregisterClient(alice)

	seen := map[int64]int{}
	for range 2 {
		ev := mustEvent(t, bob.Events, EventUserLeft)
		if ev.Username != "alice" {
			t.Fatalf("unexpected user_left: %+v", ev)
		}
		seen[ev.Channel.ID]++
	}
	if seen[1] != 1 || seen[2] != 1 {
		t.Fatalf("expected one user_left per channel, got %v", seen)
	}
	noEvent(t, bob.Events, EventUserLeft, quiet)

	if _, ok := hub.Sessions().Resolve("a"); ok {
		t.Fatal("alice still bound after disconnect")
	}
	if got := hub.members.ChannelsOf("a"); len(got) != 0 {
		t.Fatalf("membership outlived session: %v", got)
	}
	user, err := st.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if user.ConnectionID != nil {
		t.Fatalf("connection reference not cleared: %q", *user.ConnectionID)
	}
}

func TestHubCreateChannel(t *testing.T) {
	hub, st := newTestHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	anon := NewClient("anon", 0)
	hub.RegisterClient(anon)

	alice.Commands <- &Command{Kind: CommandCreateChannel, Name: "general"}
	errEv := mustEvent(t, alice.Events, EventError)
	if errEv.Error == nil || errEv.Error.Code != ErrCodeChannelExists {
		t.Fatalf("expected channel_exists error, got %+v", errEv)
	}
	noEvent(t, bob.Events, EventChannelCreated, quiet)

	desc := "tunes"
	alice.Commands <- &Command{Kind: CommandCreateChannel, Name: "music", Description: &desc}
	for _, c := range []*Client{alice, bob, anon} {
		ev := mustEvent(t, c.Events, EventChannelCreated)
		if ev.Channel.Name != "music" || ev.Channel.Description != "tunes" || ev.Channel.ID == 0 {
			t.Fatalf("unexpected channel_created for %s: %+v", c.ID, ev)
		}
	}
	noEvent(t, bob.Events, EventError, quiet)

	channels, err := st.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 4 {
		t.Fatalf("expected 4 channels, got %d", len(channels))
	}
}

func TestHubRebindDisplacesOldConnection(t *testing.T) {
	hub, st := newTestHub(t)

	bob := connect(t, hub, "b", "bob")
	joinChannel(t, bob, 1)

	first := connect(t, hub, "c1", "alice")
	joinChannel(t, first, 1)
	mustEvent(t, bob.Events, EventUserJoined)

	second := connect(t, hub, "c2", "alice")

	if _, ok := hub.Sessions().Resolve("c1"); ok {
		t.Fatal("displaced connection still bound")
	}
	if id, ok := hub.Sessions().Resolve("c2"); !ok || id.Username != "alice" {
		t.Fatalf("new connection not bound: %+v", id)
	}
	user, err := st.GetUserByUsername(context.Background(), "alice")
	if err != nil || user.ConnectionID == nil || *user.ConnectionID != "c2" {
		t.Fatalf("connection reference not overwritten: %+v %v", user, err)
	}

	// The displaced connection is anonymous again: commands are dropped and
	// it no longer receives channel traffic.
	first.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "ghost"}
	noEvent(t, bob.Events, EventNewMessage, quiet)

	bob.Commands <- &Command{Kind: CommandSendMessage, ChannelID: 1, Content: "hello"}
	mustEvent(t, bob.Events, EventNewMessage)
	noEvent(t, first.Events, EventNewMessage, quiet)

	// Closing it later does not announce alice leaving.
	hub.UnregisterClient(first)
	noEvent(t, bob.Events, EventUserLeft, quiet)

	if id, ok := hub.Sessions().Resolve("c2"); !ok || id.Username != "alice" {
		t.Fatal("closing the displaced connection unbound the new one")
	}
	_ = second
}

func TestHubRebindSameConnection(t *testing.T) {
	hub, _ := newTestHub(t)

	c := connect(t, hub, "c", "alice")
	joinChannel(t, c, 1)

	c.Commands <- &Command{Kind: CommandJoinApp, Username: "bob"}
	ev := mustEvent(t, c.Events, EventJoinedApp)
	if ev.Username != "bob" {
		t.Fatalf("unexpected joined_app: %+v", ev)
	}

	online := hub.Sessions().Online()
	if len(online) != 1 || online[0].Username != "bob" {
		t.Fatalf("expected only bob online, got %+v", online)
	}
	if got := hub.members.ChannelsOf("c"); len(got) != 0 {
		t.Fatalf("memberships survived rebind: %v", got)
	}
}

func TestHubUnregisterTwice(t *testing.T) {
	hub, _ := newTestHub(t)

	c := connect(t, hub, "a", "alice")
	hub.UnregisterClient(c)
	hub.UnregisterClient(c)

	deadline := time.Now().Add(2 * time.Second)
	for hub.Sessions().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRegisterAfterStop(t *testing.T) {
	hub := NewHub(nil, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if hub.RegisterClient(NewClient("late", 0)) {
		t.Fatal("stopped hub accepted a client")
	}
}
