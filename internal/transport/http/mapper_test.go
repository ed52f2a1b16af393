package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore-server/internal/core"
	"github.com/vovakirdan/chatcore-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name    string
		inbound proto.Inbound
		want    *core.Command
		wantErr bool
	}{
		{
			name:    "join app",
			inbound: proto.Inbound{Type: "join_app", Data: json.RawMessage(`{"username":"alice"}`)},
			want:    &core.Command{Kind: core.CommandJoinApp, Username: "alice"},
		},
		{
			name:    "join channel",
			inbound: proto.Inbound{Type: "join_channel", Data: json.RawMessage(`{"channel_id":2}`)},
			want:    &core.Command{Kind: core.CommandJoinChannel, ChannelID: 2},
		},
		{
			name:    "leave channel",
			inbound: proto.Inbound{Type: "leave_channel", Data: json.RawMessage(`{"channel_id":3}`)},
			want:    &core.Command{Kind: core.CommandLeaveChannel, ChannelID: 3},
		},
		{
			name:    "send message",
			inbound: proto.Inbound{Type: "send_message", Data: json.RawMessage(`{"channel_id":1,"content":"hi"}`)},
			want:    &core.Command{Kind: core.CommandSendMessage, ChannelID: 1, Content: "hi"},
		},
		{
			name:    "create channel without description",
			inbound: proto.Inbound{Type: "create_channel", Data: json.RawMessage(`{"name":"ops"}`)},
			want:    &core.Command{Kind: core.CommandCreateChannel, Name: "ops"},
		},
		{
			name:    "missing data",
			inbound: proto.Inbound{Type: "join_app"},
			wantErr: true,
		},
		{
			name:    "missing username",
			inbound: proto.Inbound{Type: "join_app", Data: json.RawMessage(`{}`)},
			wantErr: true,
		},
		{
			name:    "non-positive channel",
			inbound: proto.Inbound{Type: "join_channel", Data: json.RawMessage(`{"channel_id":0}`)},
			wantErr: true,
		},
		{
			name:    "wrong field type",
			inbound: proto.Inbound{Type: "join_channel", Data: json.RawMessage(`{"channel_id":"one"}`)},
			wantErr: true,
		},
		{
			name:    "unknown type",
			inbound: proto.Inbound{Type: "typing", Data: json.RawMessage(`{}`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inboundToCommand(tt.inbound)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInboundCreateChannelDescription(t *testing.T) {
	got, err := inboundToCommand(proto.Inbound{
		Type: "create_channel",
		Data: json.RawMessage(`{"name":"ops","description":"on-call"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	require.Equal(t, "on-call", *got.Description)
}

func TestOutboundFromEvent(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 250_000_000, time.FixedZone("X", 3600))

	out := outboundFromEvent(&core.Event{
		Kind:    core.EventChannelJoined,
		Channel: core.Channel{ID: 1, Name: "general"},
		Messages: []core.Message{
			{ID: 7, ChannelID: 1, Username: "alice", Content: "hi", Timestamp: ts},
		},
	})
	require.Equal(t, proto.OutboundTypeEvent, out.Type)
	require.Equal(t, proto.EventChannelJoined, out.Event)
	joined, ok := out.Data.(proto.ChannelJoined)
	require.True(t, ok)
	require.Equal(t, "general", joined.ChannelName)
	require.Len(t, joined.Messages, 1)
	require.Equal(t, "2024-03-01T11:30:00.25Z", joined.Messages[0].Timestamp)

	out = outboundFromEvent(&core.Event{
		Kind:  core.EventError,
		Error: &core.CoreError{Code: core.ErrCodeChannelExists, Message: "taken"},
	})
	require.Equal(t, proto.OutboundTypeError, out.Type)
	require.Equal(t, proto.Error{Code: core.ErrCodeChannelExists, Message: "taken"}, out.Data)
}

func TestOutboundEmptyHistoryIsArray(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventChannelJoined, Channel: core.Channel{ID: 2, Name: "random"}})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"messages":[]`)
}
