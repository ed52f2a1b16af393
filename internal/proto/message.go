package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinApp       = "join_app"
	InboundTypeJoinChannel   = "join_channel"
	InboundTypeLeaveChannel  = "leave_channel"
	InboundTypeSendMessage   = "send_message"
	InboundTypeCreateChannel = "create_channel"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventJoinedApp      = "joined_app"
	EventChannelJoined  = "channel_joined"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventNewMessage     = "new_message"
	EventChannelCreated = "channel_created"
	EventError          = "error"
)

// JoinAppData binds the connection to a username.
type JoinAppData struct {
	Username string `json:"username" validate:"required,max=64"`
}

// ChannelRef names a channel to join or leave.
type ChannelRef struct {
	ChannelID int64 `json:"channel_id" validate:"required,gt=0"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ChannelID int64  `json:"channel_id" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required"`
}

// CreateChannelData requests a new channel.
type CreateChannelData struct {
	Name        string  `json:"name" validate:"required,max=64"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=256"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinedApp confirms the bound identity.
type JoinedApp struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

// ChannelJoined carries the channel name and its recent history.
type ChannelJoined struct {
	ChannelID   int64         `json:"channel_id"`
	ChannelName string        `json:"channel_name"`
	Messages    []ChatMessage `json:"messages"`
}

// Presence notifies that a user joined or left a channel.
type Presence struct {
	Username  string `json:"username"`
	ChannelID int64  `json:"channel_id"`
}

// ChatMessage is a persisted message as seen by clients.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	ChannelID int64  `json:"channel_id"`
}

// ChannelInfo describes a channel.
type ChannelInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Error describes a rejected request.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
