package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinedApp confirms the identity bound to a connection.
	EventJoinedApp EventKind = iota
	// EventChannelJoined delivers channel name and history to the joining client.
	EventChannelJoined
	// EventUserJoined notifies channel members about a user joining.
	EventUserJoined
	// EventUserLeft notifies channel members about a user leaving or disconnecting.
	EventUserLeft
	// EventNewMessage delivers a persisted chat message.
	EventNewMessage
	// EventChannelCreated announces a new channel to every connection.
	EventChannelCreated
	// EventError notifies a single client about a rejected request.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJoinedApp:
		return "joined_app"
	case EventChannelJoined:
		return "channel_joined"
	case EventUserJoined:
		return "user_joined"
	case EventUserLeft:
		return "user_left"
	case EventNewMessage:
		return "new_message"
	case EventChannelCreated:
		return "channel_created"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after Emit.
type Event struct {
	Kind     EventKind
	Username string
	UserID   int64
	Channel  Channel
	Message  Message
	Messages []Message // EventChannelJoined
	Error    *CoreError
}

// Channel is the public view of a channel.
type Channel struct {
	ID          int64
	Name        string
	Description string
}

// Message is the public view of a chat message.
type Message struct {
	ID        int64
	ChannelID int64
	Username  string
	Content   string
	Timestamp time.Time
}
