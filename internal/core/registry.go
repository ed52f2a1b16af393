package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vovakirdan/chatcore-server/internal/store"
)

// Identity is the user bound to a connection.
type Identity struct {
	UserID   int64
	Username string
}

// SessionRegistry maps live connection ids to the users bound on them.
// It is the single source of truth for who is online in this process.
type SessionRegistry struct {
	users store.UserStore

	mu     sync.RWMutex
	active map[string]Identity // connection id -> identity
	byUser map[int64]string    // user id -> connection id
}

// NewSessionRegistry creates an empty registry backed by the given user store.
func NewSessionRegistry(users store.UserStore) *SessionRegistry {
	return &SessionRegistry{
		users:  users,
		active: make(map[string]Identity),
		byUser: make(map[int64]string),
	}
}

// Bind looks up or creates the user and binds it to connID, replacing any
// previous binding of connID. If the user was bound on another connection,
// that connection loses its binding and is returned as displaced.
func (r *SessionRegistry) Bind(ctx context.Context, connID, username string) (*store.User, string, error) {
	username = strings.TrimSpace(username)
	if connID == "" || username == "" {
		return nil, "", fmt.Errorf("bind: username is required: %w", ErrInvalidArgument)
	}

	r.mu.RLock()
	prev, hadPrev := r.active[connID]
	r.mu.RUnlock()

	user, err := r.lookupOrCreate(ctx, connID, username)
	if err != nil {
		return nil, "", err
	}

	// Switching users on one connection releases the old user's reference.
	if hadPrev && prev.UserID != user.ID {
		if _, err := r.users.ClearUserConnection(ctx, prev.UserID, connID); err != nil {
			return nil, "", fmt.Errorf("bind %q: release %q: %w: %w", username, prev.Username, ErrStorageFailure, err)
		}
	}

	r.mu.Lock()
	if prev, ok := r.active[connID]; ok && r.byUser[prev.UserID] == connID {
		delete(r.byUser, prev.UserID)
	}
	displaced := r.byUser[user.ID]
	if displaced == connID {
		displaced = ""
	}
	if displaced != "" {
		delete(r.active, displaced)
	}
	r.active[connID] = Identity{UserID: user.ID, Username: user.Username}
	r.byUser[user.ID] = connID
	r.mu.Unlock()

	return user, displaced, nil
}

func (r *SessionRegistry) lookupOrCreate(ctx context.Context, connID, username string) (*store.User, error) {
	// One retry covers losing a create race for the same username.
	for attempt := 0; attempt < 2; attempt++ {
		user, err := r.users.GetUserByUsername(ctx, username)
		switch {
		case err == nil:
			if err := r.users.UpdateUserConnection(ctx, user.ID, connID); err != nil {
				return nil, fmt.Errorf("bind %q: %w: %w", username, ErrStorageFailure, err)
			}
			user.ConnectionID = &connID
			return user, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("bind %q: %w: %w", username, ErrStorageFailure, err)
		}

		user, err = r.users.CreateUser(ctx, username, connID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("bind %q: %w: %w", username, ErrStorageFailure, err)
		}
	}
	return nil, fmt.Errorf("bind %q: user creation kept conflicting: %w", username, ErrStorageFailure)
}

// Resolve returns the identity bound to connID, if any.
func (r *SessionRegistry) Resolve(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[connID]
	return id, ok
}

// Unbind removes connID from the active set and clears the persisted
// connection reference if it still points at connID. It returns the
// username that was bound, or ok=false if the connection was never bound.
// The in-memory entry is removed even when the store update fails.
func (r *SessionRegistry) Unbind(ctx context.Context, connID string) (string, bool, error) {
	r.mu.Lock()
	id, ok := r.active[connID]
	if ok {
		delete(r.active, connID)
		if r.byUser[id.UserID] == connID {
			delete(r.byUser, id.UserID)
		}
	}
	r.mu.Unlock()

	if !ok {
		return "", false, nil
	}

	if _, err := r.users.ClearUserConnection(ctx, id.UserID, connID); err != nil {
		return id.Username, true, fmt.Errorf("unbind %q: %w: %w", id.Username, ErrStorageFailure, err)
	}
	return id.Username, true, nil
}

// Online returns the bound identities sorted by username.
func (r *SessionRegistry) Online() []Identity {
	r.mu.RLock()
	out := make([]Identity, 0, len(r.active))
	for _, id := range r.active {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}

// Len returns the number of bound connections.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
