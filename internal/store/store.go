package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is wrapped by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is wrapped by inserts that violate a unique constraint.
	ErrConflict = errors.New("already exists")
)

// User represents a chat participant. Users are created on first join and never deleted.
type User struct {
	ID           int64
	Username     string
	ConnectionID *string // nil while offline
	CreatedAt    time.Time
}

// Channel represents a named, persistent chat room.
type Channel struct {
	ID          int64
	Name        string
	Description *string
	CreatedAt   time.Time
}

// DescriptionOrEmpty returns the channel description or "" when unset.
func (c *Channel) DescriptionOrEmpty() string {
	if c == nil || c.Description == nil {
		return ""
	}
	return *c.Description
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	ChannelID int64
	UserID    int64
	Username  string // author, resolved on read
	Content   string
	CreatedAt time.Time
}

// ChannelSeed describes a channel created when the channels table is empty.
type ChannelSeed struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
}

// DefaultChannels are seeded on first start.
func DefaultChannels() []ChannelSeed {
	return []ChannelSeed{
		{Name: "general", Description: "General discussion"},
		{Name: "random", Description: "Random conversations"},
		{Name: "tech", Description: "Technology discussions"},
	}
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a user bound to the given connection.
	CreateUser(ctx context.Context, username, connectionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by exact (case-sensitive) username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUserConnection overwrites the user's connection reference.
	UpdateUserConnection(ctx context.Context, userID int64, connectionID string) error

	// ClearUserConnection nulls the connection reference if it still equals connectionID.
	// Returns false when the reference was already pointing elsewhere.
	ClearUserConnection(ctx context.Context, userID int64, connectionID string) (bool, error)

	// ResetConnections nulls every connection reference. Used at startup since
	// in-memory presence does not survive a restart.
	ResetConnections(ctx context.Context) (int64, error)
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	// CreateChannel creates a new channel. Duplicate names wrap ErrConflict.
	CreateChannel(ctx context.Context, name string, description *string) (*Channel, error)

	// GetChannelByID retrieves a channel by ID.
	GetChannelByID(ctx context.Context, id int64) (*Channel, error)

	// GetChannelByName retrieves a channel by name.
	GetChannelByName(ctx context.Context, name string) (*Channel, error)

	// ListChannels lists all channels in creation order.
	ListChannels(ctx context.Context) ([]*Channel, error)

	// SeedChannels creates the given channels only if no channel exists yet.
	// Returns the number of channels created.
	SeedChannels(ctx context.Context, seeds []ChannelSeed) (int, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage appends a message. ID, CreatedAt and Username are filled in
	// from the committed row.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListRecentMessages returns at most limit of the newest messages of a
	// channel, oldest first.
	ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
