package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatcore-server/internal/proto"
)

// frame is an outbound envelope with its payload left undecoded.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type smokeOptions struct {
	addr      string
	user      string
	channelID int64
	text      string
	timeout   time.Duration
}

func main() {
	opts := smokeOptions{}
	cmd := &cobra.Command{
		Use:          "ws_smoke",
		Short:        "Join a channel, send one message and wait for its echo",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "ws://localhost:8000/ws", "WebSocket address")
	cmd.Flags().StringVar(&opts.user, "user", "tester", "username to join with")
	cmd.Flags().Int64Var(&opts.channelID, "channel", 1, "channel id")
	cmd.Flags().StringVar(&opts.text, "text", "hello from smoke test", "message text to send")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "total timeout for the run")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ws_smoke: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts smokeOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, opts.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	steps := []struct {
		typ  string
		data any
	}{
		{proto.InboundTypeJoinApp, proto.JoinAppData{Username: opts.user}},
		{proto.InboundTypeJoinChannel, proto.ChannelRef{ChannelID: opts.channelID}},
		{proto.InboundTypeSendMessage, proto.SendMessageData{ChannelID: opts.channelID, Content: opts.text}},
	}
	for _, step := range steps {
		payload, err := json.Marshal(step.data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", step.typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: step.typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", step.typ, err)
		}
	}

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received outbound: type=%s event=%s\n", f.Type, f.Event)

		switch f.Event {
		case proto.EventJoinedApp:
			var evt proto.JoinedApp
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("Joined as %s (id %d)\n", evt.Username, evt.UserID)
			}
		case proto.EventChannelJoined:
			var evt proto.ChannelJoined
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("Channel %s: %d messages of history\n", evt.ChannelName, len(evt.Messages))
			}
		case proto.EventNewMessage:
			var evt proto.ChatMessage
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: channel=%d user=%s content=%q ts=%s\n", evt.ChannelID, evt.Username, evt.Content, evt.Timestamp)
			if evt.Username == opts.user && evt.Content == opts.text {
				return nil
			}
		case proto.EventError:
			var evt proto.Error
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				return errors.New(evt.Message)
			}
		}
	}
}
