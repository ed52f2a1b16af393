package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore-server/internal/proto"
	"github.com/vovakirdan/chatcore-server/internal/store"
)

func getJSON(t *testing.T, client *http.Client, url string, out any) int {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListChannels(t *testing.T) {
	ts, _ := startTestServer(t)

	var channels []proto.ChannelInfo
	status := getJSON(t, ts.Client(), ts.URL+"/api/channels", &channels)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, channels, 3)
	require.Equal(t, "general", channels[0].Name)
	require.NotEmpty(t, channels[0].Description)
}

func TestListMessages(t *testing.T) {
	ts, st := startTestServer(t)
	ctx := context.Background()

	user, err := st.CreateUser(ctx, "alice", "")
	require.NoError(t, err)
	for i := range 5 {
		require.NoError(t, st.SaveMessage(ctx, &store.Message{
			ChannelID: 1,
			UserID:    user.ID,
			Content:   fmt.Sprintf("m%d", i),
		}))
	}

	var messages []proto.ChatMessage
	status := getJSON(t, ts.Client(), ts.URL+"/api/channels/1/messages", &messages)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, messages, 5)
	require.Equal(t, "m0", messages[0].Content)
	require.Equal(t, "alice", messages[4].Username)

	status = getJSON(t, ts.Client(), ts.URL+"/api/channels/1/messages?limit=2", &messages)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, messages, 2)
	require.Equal(t, "m3", messages[0].Content)
	require.Equal(t, "m4", messages[1].Content)
}

func TestListMessagesErrors(t *testing.T) {
	ts, _ := startTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown channel", "/api/channels/99/messages", http.StatusNotFound},
		{"bad id", "/api/channels/abc/messages", http.StatusBadRequest},
		{"zero limit", "/api/channels/1/messages?limit=0", http.StatusOK},
		{"negative limit", "/api/channels/1/messages?limit=-1", http.StatusBadRequest},
		{"limit too large", "/api/channels/1/messages?limit=501", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body json.RawMessage
			status := getJSON(t, ts.Client(), ts.URL+tt.path, &body)
			require.Equal(t, tt.status, status)
		})
	}
}

func TestPresence(t *testing.T) {
	ts, _ := startTestServer(t)

	var online []PresenceResponse
	status := getJSON(t, ts.Client(), ts.URL+"/api/presence", &online)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, online)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, name := range []string{"zed", "amy"} {
		conn := dial(t, ctx, ts)
		send(t, ctx, conn, proto.InboundTypeJoinApp, proto.JoinAppData{Username: name})
		expectEvent(t, ctx, conn, proto.EventJoinedApp)
	}

	status = getJSON(t, ts.Client(), ts.URL+"/api/presence", &online)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, online, 2)
	require.Equal(t, "amy", online[0].Username)
	require.Equal(t, "zed", online[1].Username)
}
