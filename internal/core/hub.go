package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore-server/internal/store"
)

// DefaultHistoryLimit is the number of messages sent on channel join.
const DefaultHistoryLimit = 50

// Hub routes client commands: it validates them against the session
// registry, membership table and store, mutates state, and emits events.
// Each registered client is served by its own goroutine so a slow store
// call only stalls the connection that issued it.
type Hub struct {
	store        store.Store
	sessions     *SessionRegistry
	members      *MembershipTable
	dispatch     *Dispatcher
	historyLimit int
	log          *zerolog.Logger

	register chan *Client
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewHub creates a new chat hub instance.
func NewHub(st store.Store, historyLimit int, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	members := NewMembershipTable()
	return &Hub{
		store:        st,
		sessions:     NewSessionRegistry(st),
		members:      members,
		dispatch:     NewDispatcher(members, logger),
		historyLimit: historyLimit,
		log:          logger,
		register:     make(chan *Client),
		stopped:      make(chan struct{}),
	}
}

// Sessions exposes the registry for read-only presence queries.
func (h *Hub) Sessions() *SessionRegistry {
	return h.sessions
}

// Run accepts client registrations until ctx is cancelled, then waits for
// every client goroutine to finish its disconnect handling.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.dispatch.Attach(c)
			h.wg.Add(1)
			go h.serve(ctx, c)
		case <-ctx.Done():
			h.wg.Wait()
			return
		}
	}
}

// RegisterClient connects a client in the anonymous state.
// It returns false if the hub is no longer running.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Stopped is closed once Run has returned.
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}

// UnregisterClient disconnects a client. Its goroutine purges registry and
// membership state and notifies the channels it had joined.
func (h *Hub) UnregisterClient(c *Client) {
	c.close()
}

func (h *Hub) serve(ctx context.Context, c *Client) {
	defer h.wg.Done()
	// Disconnect cleanup must run even when ctx is already cancelled.
	defer h.disconnect(context.WithoutCancel(ctx), c)

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.handle(ctx, c, cmd)
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("conn_id", c.ID).Stringer("command", cmd.Kind).Msg("command handler panicked")
		}
	}()

	var err error
	switch cmd.Kind {
	case CommandJoinApp:
		err = h.handleJoinApp(ctx, c, cmd)
	case CommandJoinChannel:
		err = h.handleJoinChannel(ctx, c, cmd)
	case CommandLeaveChannel:
		err = h.handleLeaveChannel(c, cmd)
	case CommandSendMessage:
		err = h.handleSendMessage(ctx, c, cmd)
	case CommandCreateChannel:
		err = h.handleCreateChannel(ctx, c, cmd)
	default:
		err = fmt.Errorf("unknown command kind %d: %w", cmd.Kind, ErrInvalidArgument)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrStorageFailure):
		h.log.Error().Err(err).Str("conn_id", c.ID).Stringer("command", cmd.Kind).Msg("command aborted")
	default:
		h.log.Debug().Err(err).Str("conn_id", c.ID).Stringer("command", cmd.Kind).Msg("command dropped")
	}
}

func (h *Hub) handleJoinApp(ctx context.Context, c *Client, cmd *Command) error {
	user, displaced, err := h.sessions.Bind(ctx, c.ID, cmd.Username)
	if err != nil {
		return err
	}

	h.members.Open(c.ID)
	if displaced != "" {
		// Last join wins: the older connection stays open but silently
		// loses its identity and memberships.
		h.members.Forget(displaced)
		h.log.Info().Str("username", user.Username).Str("conn_id", c.ID).Str("displaced_conn_id", displaced).Msg("user rebound to new connection")
	}

	h.log.Info().Str("username", user.Username).Int64("user_id", user.ID).Str("conn_id", c.ID).Msg("user joined app")
	h.dispatch.Emit(&Event{
		Kind:     EventJoinedApp,
		Username: user.Username,
		UserID:   user.ID,
	}, ToSession(c.ID))
	return nil
}

func (h *Hub) handleJoinChannel(ctx context.Context, c *Client, cmd *Command) error {
	id, ok := h.sessions.Resolve(c.ID)
	if !ok {
		return errAnonymous
	}

	channel, err := h.lookupChannel(ctx, cmd.ChannelID)
	if err != nil {
		return err
	}

	newlyJoined := h.members.Join(c.ID, channel.ID)

	history, err := h.store.ListRecentMessages(ctx, channel.ID, h.historyLimit)
	if err != nil {
		if newlyJoined {
			h.members.Leave(c.ID, channel.ID)
		}
		return fmt.Errorf("load history for channel %d: %w: %w", channel.ID, ErrStorageFailure, err)
	}

	h.dispatch.Emit(&Event{
		Kind:     EventChannelJoined,
		Channel:  channelView(channel),
		Messages: messageViews(history),
	}, ToSession(c.ID))

	if newlyJoined {
		h.dispatch.Emit(&Event{
			Kind:     EventUserJoined,
			Username: id.Username,
			Channel:  Channel{ID: channel.ID, Name: channel.Name},
		}, ToChannel(channel.ID).Except(c.ID))
	}
	return nil
}

func (h *Hub) handleLeaveChannel(c *Client, cmd *Command) error {
	id, ok := h.sessions.Resolve(c.ID)
	if !ok {
		return errAnonymous
	}

	if !h.members.Leave(c.ID, cmd.ChannelID) {
		return nil
	}

	h.dispatch.Emit(&Event{
		Kind:     EventUserLeft,
		Username: id.Username,
		Channel:  Channel{ID: cmd.ChannelID},
	}, ToChannel(cmd.ChannelID))
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *Command) error {
	id, ok := h.sessions.Resolve(c.ID)
	if !ok {
		return errAnonymous
	}
	if strings.TrimSpace(cmd.Content) == "" {
		return fmt.Errorf("send_message: empty content: %w", ErrInvalidArgument)
	}

	channel, err := h.lookupChannel(ctx, cmd.ChannelID)
	if err != nil {
		return err
	}

	msg := &store.Message{
		ChannelID: channel.ID,
		UserID:    id.UserID,
		Content:   cmd.Content,
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w: %w", ErrStorageFailure, err)
	}

	h.dispatch.Emit(&Event{
		Kind:    EventNewMessage,
		Message: messageView(msg),
	}, ToChannel(channel.ID))
	return nil
}

func (h *Hub) handleCreateChannel(ctx context.Context, c *Client, cmd *Command) error {
	if _, ok := h.sessions.Resolve(c.ID); !ok {
		return errAnonymous
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return fmt.Errorf("create_channel: empty name: %w", ErrInvalidArgument)
	}

	_, err := h.store.GetChannelByName(ctx, name)
	switch {
	case err == nil:
		return h.rejectDuplicateChannel(c, name)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("lookup channel %q: %w: %w", name, ErrStorageFailure, err)
	}

	channel, err := h.store.CreateChannel(ctx, name, cmd.Description)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return h.rejectDuplicateChannel(c, name)
		}
		return fmt.Errorf("create channel %q: %w: %w", name, ErrStorageFailure, err)
	}

	h.log.Info().Str("channel", channel.Name).Int64("channel_id", channel.ID).Str("conn_id", c.ID).Msg("channel created")
	h.dispatch.Emit(&Event{
		Kind:    EventChannelCreated,
		Channel: channelView(channel),
	}, ToAll())
	return nil
}

// rejectDuplicateChannel tells the requester the name is taken. The returned
// error only feeds the drop log.
func (h *Hub) rejectDuplicateChannel(c *Client, name string) error {
	h.dispatch.Emit(&Event{
		Kind:  EventError,
		Error: coreError(ErrCodeChannelExists, fmt.Sprintf("Channel %q already exists", name)),
	}, ToSession(c.ID))
	return fmt.Errorf("create channel %q: %w", name, ErrChannelExists)
}

// disconnect purges all state of a connection and tells every channel it
// had joined that the user left.
func (h *Hub) disconnect(ctx context.Context, c *Client) {
	h.dispatch.Detach(c.ID)
	channels := h.members.Forget(c.ID)

	username, ok, err := h.sessions.Unbind(ctx, c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("clear connection reference")
	}
	if !ok {
		h.log.Debug().Str("conn_id", c.ID).Msg("anonymous client disconnected")
		return
	}

	for _, channelID := range channels {
		h.dispatch.Emit(&Event{
			Kind:     EventUserLeft,
			Username: username,
			Channel:  Channel{ID: channelID},
		}, ToChannel(channelID))
	}
	h.log.Info().Str("username", username).Str("conn_id", c.ID).Int("channels", len(channels)).Msg("user disconnected")
}

func (h *Hub) lookupChannel(ctx context.Context, channelID int64) (*store.Channel, error) {
	channel, err := h.store.GetChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
		}
		return nil, fmt.Errorf("lookup channel %d: %w: %w", channelID, ErrStorageFailure, err)
	}
	return channel, nil
}

var errAnonymous = fmt.Errorf("connection has not joined the app: %w", ErrInvalidArgument)

func channelView(ch *store.Channel) Channel {
	return Channel{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.DescriptionOrEmpty(),
	}
}

func messageView(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}

func messageViews(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m))
	}
	return out
}
