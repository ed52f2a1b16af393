package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatcore-server/internal/core"
	"github.com/vovakirdan/chatcore-server/internal/proto"
)

var (
	validate = validator.New()

	errMissingPayload = errors.New("missing data")
	errUnknownType    = errors.New("unknown message type")
)

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) == 0 || string(raw) == "null" {
		return payload, errMissingPayload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("validate payload: %w", err)
	}
	return payload, nil
}

// inboundToCommand decodes and validates a client envelope.
// Any error means the inbound message is dropped.
func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinApp:
		data, err := decodePayload[proto.JoinAppData](inbound.Data)
		if err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandJoinApp, Username: data.Username}, nil
	case proto.InboundTypeJoinChannel:
		data, err := decodePayload[proto.ChannelRef](inbound.Data)
		if err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandJoinChannel, ChannelID: data.ChannelID}, nil
	case proto.InboundTypeLeaveChannel:
		data, err := decodePayload[proto.ChannelRef](inbound.Data)
		if err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandLeaveChannel, ChannelID: data.ChannelID}, nil
	case proto.InboundTypeSendMessage:
		data, err := decodePayload[proto.SendMessageData](inbound.Data)
		if err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			ChannelID: data.ChannelID,
			Content:   data.Content,
		}, nil
	case proto.InboundTypeCreateChannel:
		data, err := decodePayload[proto.CreateChannelData](inbound.Data)
		if err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:        core.CommandCreateChannel,
			Name:        data.Name,
			Description: data.Description,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoinedApp:
		return eventOutbound(proto.EventJoinedApp, proto.JoinedApp{
			Username: event.Username,
			UserID:   event.UserID,
		})
	case core.EventChannelJoined:
		return eventOutbound(proto.EventChannelJoined, proto.ChannelJoined{
			ChannelID:   event.Channel.ID,
			ChannelName: event.Channel.Name,
			Messages: lo.Map(event.Messages, func(m core.Message, _ int) proto.ChatMessage {
				return chatMessage(m)
			}),
		})
	case core.EventUserJoined:
		return eventOutbound(proto.EventUserJoined, proto.Presence{
			Username:  event.Username,
			ChannelID: event.Channel.ID,
		})
	case core.EventUserLeft:
		return eventOutbound(proto.EventUserLeft, proto.Presence{
			Username:  event.Username,
			ChannelID: event.Channel.ID,
		})
	case core.EventNewMessage:
		return eventOutbound(proto.EventNewMessage, chatMessage(event.Message))
	case core.EventChannelCreated:
		return eventOutbound(proto.EventChannelCreated, proto.ChannelInfo{
			ID:          event.Channel.ID,
			Name:        event.Channel.Name,
			Description: event.Channel.Description,
		})
	case core.EventError:
		protoErr := proto.Error{Code: "unknown", Message: "unknown error"}
		if event.Error != nil {
			protoErr = proto.Error{Code: event.Error.Code, Message: event.Error.Message}
		}
		return proto.Outbound{Type: proto.OutboundTypeError, Event: proto.EventError, Data: protoErr}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func chatMessage(m core.Message) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        m.ID,
		Content:   m.Content,
		Username:  m.Username,
		Timestamp: formatTimestamp(m.Timestamp),
		ChannelID: m.ChannelID,
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
