package core

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

type channelSet map[int64]struct{}

// MembershipTable tracks which channels each bound connection has joined,
// with a reverse index used to resolve channel fan-out targets.
type MembershipTable struct {
	mu        sync.RWMutex
	joined    map[string]channelSet         // connection id -> channels
	byChannel map[int64]map[string]struct{} // channel id -> connections
}

// NewMembershipTable creates an empty table.
func NewMembershipTable() *MembershipTable {
	return &MembershipTable{
		joined:    make(map[string]channelSet),
		byChannel: make(map[int64]map[string]struct{}),
	}
}

// Open starts tracking connID with an empty joined-set, dropping any
// previous memberships silently. The dropped channels are returned.
func (m *MembershipTable) Open(connID string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := m.forgetLocked(connID)
	m.joined[connID] = make(channelSet)
	return dropped
}

// Join adds channelID to the connection's set. It returns false when the
// connection is not tracked or already joined.
func (m *MembershipTable) Join(connID string, channelID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.joined[connID]
	if !ok {
		return false
	}
	if _, exists := set[channelID]; exists {
		return false
	}
	set[channelID] = struct{}{}

	members, ok := m.byChannel[channelID]
	if !ok {
		members = make(map[string]struct{})
		m.byChannel[channelID] = members
	}
	members[connID] = struct{}{}
	return true
}

// Leave removes channelID from the connection's set. Returns true if removed.
func (m *MembershipTable) Leave(connID string, channelID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.joined[connID]
	if !ok {
		return false
	}
	if _, exists := set[channelID]; !exists {
		return false
	}
	delete(set, channelID)
	m.removeMemberLocked(channelID, connID)
	return true
}

// ChannelsOf returns the joined channels sorted ascending.
func (m *MembershipTable) ChannelsOf(connID string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedChannels(m.joined[connID])
}

// Members returns the connections joined to channelID.
func (m *MembershipTable) Members(channelID int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Keys(m.byChannel[channelID])
}

// Forget removes all membership state for connID and returns the channels
// it had joined, sorted ascending.
func (m *MembershipTable) Forget(connID string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.forgetLocked(connID)
}

// Len returns the number of tracked connections.
func (m *MembershipTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.joined)
}

func (m *MembershipTable) forgetLocked(connID string) []int64 {
	set, ok := m.joined[connID]
	if !ok {
		return nil
	}
	delete(m.joined, connID)

	channels := sortedChannels(set)
	for _, channelID := range channels {
		m.removeMemberLocked(channelID, connID)
	}
	return channels
}

func (m *MembershipTable) removeMemberLocked(channelID int64, connID string) {
	members, ok := m.byChannel[channelID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.byChannel, channelID)
	}
}

func sortedChannels(set channelSet) []int64 {
	channels := lo.Keys(set)
	slices.Sort(channels)
	return channels
}
