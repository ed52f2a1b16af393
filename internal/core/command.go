package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinApp binds the connection to a username.
	CommandJoinApp CommandKind = iota
	// CommandJoinChannel subscribes the connection to a channel.
	CommandJoinChannel
	// CommandLeaveChannel unsubscribes the connection from a channel.
	CommandLeaveChannel
	// CommandSendMessage posts a message to a channel.
	CommandSendMessage
	// CommandCreateChannel creates a new channel.
	CommandCreateChannel
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinApp:
		return "join_app"
	case CommandJoinChannel:
		return "join_channel"
	case CommandLeaveChannel:
		return "leave_channel"
	case CommandSendMessage:
		return "send_message"
	case CommandCreateChannel:
		return "create_channel"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Only the fields relevant to Kind are set.
type Command struct {
	Kind        CommandKind
	Username    string // join_app
	ChannelID   int64  // join_channel, leave_channel, send_message
	Content     string // send_message
	Name        string // create_channel
	Description *string
}
