package core

import (
	"sync"

	"github.com/rs/zerolog"
)

type targetMode int

const (
	targetSession targetMode = iota
	targetChannel
	targetAll
)

// Target addresses an Emit: one session, the members of a channel, or everyone.
type Target struct {
	mode    targetMode
	session string
	channel int64
	except  string
}

// ToSession targets a single connection.
func ToSession(connID string) Target {
	return Target{mode: targetSession, session: connID}
}

// ToChannel targets every connection currently joined to channelID.
func ToChannel(channelID int64) Target {
	return Target{mode: targetChannel, channel: channelID}
}

// ToAll targets every connected session, bound or not.
func ToAll() Target {
	return Target{mode: targetAll}
}

// Except skips connID when resolving the target.
func (t Target) Except(connID string) Target {
	t.except = connID
	return t
}

// Dispatcher delivers events to connected clients. Delivery is best-effort:
// a client whose event queue is full misses the event.
type Dispatcher struct {
	members *MembershipTable
	log     *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewDispatcher creates a dispatcher resolving channel targets through members.
func NewDispatcher(members *MembershipTable, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		members: members,
		log:     logger,
		clients: make(map[string]*Client),
	}
}

// Attach makes a client reachable.
func (d *Dispatcher) Attach(c *Client) {
	d.mu.Lock()
	d.clients[c.ID] = c
	d.mu.Unlock()
}

// Detach removes a client. Later emits skip it.
func (d *Dispatcher) Detach(connID string) {
	d.mu.Lock()
	delete(d.clients, connID)
	d.mu.Unlock()
}

// Len returns the number of attached clients.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

// Emit sends the event to every client addressed by target without blocking
// and returns how many clients accepted it.
func (d *Dispatcher) Emit(event *Event, target Target) int {
	var recipients []string
	if target.mode == targetChannel {
		recipients = d.members.Members(target.channel)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	delivered := 0
	send := func(connID string) {
		if connID == target.except {
			return
		}
		client, ok := d.clients[connID]
		if !ok {
			return
		}
		select {
		case client.Events <- event:
			delivered++
		default:
			// Drop if slow consumer.
			d.log.Debug().Str("conn_id", connID).Stringer("event", event.Kind).Msg("event dropped, client queue full")
		}
	}

	switch target.mode {
	case targetSession:
		send(target.session)
	case targetChannel:
		for _, connID := range recipients {
			send(connID)
		}
	case targetAll:
		for connID := range d.clients {
			send(connID)
		}
	}
	return delivered
}
