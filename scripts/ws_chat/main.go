package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	chatlog "github.com/vovakirdan/chatcore-server/internal/log"
	"github.com/vovakirdan/chatcore-server/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chatOptions struct {
	addr      string
	user      string
	channelID int64
}

func main() {
	opts := chatOptions{}
	cmd := &cobra.Command{
		Use:          "ws_chat",
		Short:        "Interactive chat client: lines from stdin are sent to the joined channel",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "ws://localhost:8000/ws", "WebSocket address")
	cmd.Flags().StringVar(&opts.user, "user", "cli-user", "username")
	cmd.Flags().Int64Var(&opts.channelID, "channel", 1, "channel id to join")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ws_chat: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts chatOptions) error {
	logger := chatlog.NewWithWriter(os.Stderr, "info", "console")

	baseCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, opts.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoinApp, proto.JoinAppData{Username: opts.user}); err != nil {
		return err
	}
	if err := send(ctx, conn, proto.InboundTypeJoinChannel, proto.ChannelRef{ChannelID: opts.channelID}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in channel %d\n", opts.addr, opts.user, opts.channelID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, logger)
	}()

	writeLoop(ctx, conn, opts.channelID, logger)
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, logger *zerolog.Logger) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			logger.Error().Err(err).Msg("read error")
			return
		}

		switch f.Event {
		case proto.EventChannelJoined:
			var evt proto.ChannelJoined
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				logger.Warn().Err(err).Msg("unmarshal channel_joined")
				continue
			}
			fmt.Printf("-- #%s --\n", evt.ChannelName)
			for _, m := range evt.Messages {
				printMessage(m)
			}
		case proto.EventNewMessage:
			var evt proto.ChatMessage
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				logger.Warn().Err(err).Msg("unmarshal new_message")
				continue
			}
			printMessage(evt)
		case proto.EventUserJoined, proto.EventUserLeft:
			var evt proto.Presence
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				logger.Warn().Err(err).Str("event", f.Event).Msg("unmarshal presence")
				continue
			}
			verb := "joined"
			if f.Event == proto.EventUserLeft {
				verb = "left"
			}
			fmt.Printf("[channel %d] %s %s\n", evt.ChannelID, evt.Username, verb)
		case proto.EventError:
			var evt proto.Error
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("error: %s\n", evt.Message)
			}
		default:
			fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
		}
	}
}

func printMessage(m proto.ChatMessage) {
	fmt.Printf("[%d] %s: %s\n", m.ChannelID, m.Username, m.Content)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, channelID int64, logger *zerolog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{ChannelID: channelID, Content: text}); err != nil {
				logger.Error().Err(err).Msg("send error")
				return
			}
		}
	}
}
